// Command detailcrm serves the persistence gateway over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detailcrm/internal/adapters/httpapi"
	"detailcrm/internal/config"
	"detailcrm/internal/core"
	"detailcrm/internal/obs"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stderr, nil); err != nil {
		fmt.Fprintln(os.Stderr, "detailcrm:", err)
		exitFunc(1)
	}
}

// run starts the server and blocks until ctx is done. ready, when set,
// receives the bound listener address.
func run(ctx context.Context, args []string, stderr io.Writer, ready chan<- string) error {
	fs := flag.NewFlagSet("detailcrm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "listen address (overrides DETAILCRM_HTTP_ADDR)")
	memory := fs.Bool("memory", false, "run fully in memory with no durable state")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *memory {
		secret := cfg.JWTSecret
		cfg = config.Memory()
		cfg.JWTSecret = secret
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	logger := obs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := obs.NewMetrics()
	svc, err := core.Open(ctx, core.Options{Config: cfg, Logger: logger, Metrics: metrics})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	if err := svc.Start(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	srv := &http.Server{
		Handler:           httpapi.New(svc, metrics, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("detailcrm listening", "addr", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("detailcrm stopped")
	return nil
}
