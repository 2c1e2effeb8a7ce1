// Package core assembles the persistence layer: the durable store, the
// change bus, every repository, the document archive, the session and the
// request gateway.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"detailcrm/internal/archive"
	"detailcrm/internal/bus"
	"detailcrm/internal/config"
	"detailcrm/internal/gateway"
	kvredis "detailcrm/internal/infra/kv/redis"
	"detailcrm/internal/kv"
	"detailcrm/internal/obs"
	"detailcrm/internal/repo"
	"detailcrm/internal/retention"
	"detailcrm/internal/seed"
	"detailcrm/internal/session"
	"detailcrm/pkg/domain"
)

// Options configures Open. Zero values fall back to what Config selects.
type Options struct {
	Config config.Config
	// Driver overrides the storage driver named by Config.
	Driver domain.KVStore
	// Archive overrides the archive driver named by Config.
	Archive archive.Store
	// Hub joins the bus to other in-process instances. Ignored when the
	// redis bus driver is selected.
	Hub        *bus.Hub
	Logger     obs.Logger
	Metrics    *obs.Metrics
	Now        func() time.Time
	HTTPClient *http.Client
}

// Service owns the assembled layer.
type Service struct {
	cfg     config.Config
	logger  obs.Logger
	metrics *obs.Metrics

	Store    *kv.Store
	Text     *kv.TextStore
	Bus      *bus.Bus
	Repos    gateway.Services
	Gateway  *gateway.Gateway
	Sweeper  *retention.Scheduler
	archiveS archive.Store
	redis    *goredis.Client
	unsub    func()
	unread   *bus.View[int]
}

// Status summarizes the running layer for health probes.
type Status struct {
	Storage      domain.KVDriver `json:"storage"`
	Archive      string          `json:"archive"`
	Bus          string          `json:"bus"`
	Origin       string          `json:"origin"`
	UnreadAlerts int             `json:"unreadAlerts"`
}

// Open builds the layer and hydrates the text store.
func Open(ctx context.Context, opts Options) (*Service, error) {
	cfg := opts.Config
	logger := obs.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{cfg: cfg, logger: logger, metrics: opts.Metrics}

	driver := opts.Driver
	if driver == nil {
		var err error
		if driver, err = kv.OpenDriver(ctx, cfg); err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
		}
	}
	busOpts := []bus.Option{bus.WithLogger(logger), bus.WithMetrics(opts.Metrics)}
	switch {
	case cfg.BusDriver == "redis":
		client := s.redisClient(driver)
		busOpts = append(busOpts, bus.WithBridge(kvredis.NewBridge(client, cfg.RedisNamespace, logger)))
	case opts.Hub != nil:
		busOpts = append(busOpts, bus.WithBridge(opts.Hub))
	}
	b, err := bus.New(busOpts...)
	if err != nil {
		_ = driver.Close()
		s.closeRedis()
		return nil, fmt.Errorf("start bus: %w", err)
	}
	s.Bus = b
	s.Store = kv.New(driver, kv.WithNotifier(b), kv.WithLogger(logger), kv.WithMetrics(opts.Metrics))
	s.Text = kv.NewTextStore(s.Store)
	if err := s.Text.Hydrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.unsub = b.Subscribe(s.onStorage, bus.KindStorage)

	policy, err := seed.NewPolicy(cfg.SeedPolicy)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	env := repo.Env{
		Store:   s.Store,
		Text:    s.Text,
		Policy:  policy.WithClock(now),
		Logger:  logger,
		Metrics: opts.Metrics,
		Events:  b,
		Now:     now,
	}

	s.archiveS = opts.Archive
	if s.archiveS == nil {
		if s.archiveS, err = archive.Open(ctx, cfg); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open %s archive: %w", cfg.ArchiveDriver, err)
		}
	}

	s.Repos = wire(env, s.archiveS)
	if cfg.JWTSecret == "" {
		logger.Warn("session tokens disabled: no signing secret configured")
	}
	s.Repos.Session = session.New(s.Text, s.Repos.Users, cfg.JWTSecret,
		session.WithClock(now), session.WithPublisher(b), session.WithLogger(logger))
	if err := s.initSnapshots(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	remote, err := gateway.NewRemote(cfg.RemoteBaseURL, cfg.RemoteBackoff, cfg.RemoteTimeout,
		gateway.WithHTTPClient(opts.HTTPClient), gateway.WithRemoteLogger(logger))
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Gateway = gateway.New(s.Repos,
		gateway.WithLogger(logger), gateway.WithMetrics(opts.Metrics),
		gateway.WithRemote(remote), gateway.WithClock(now))

	s.unread = bus.NewView(b, s.Repos.Alerts.UnreadCount, bus.MatchKeys(domain.KeyAdminAlerts), logger)
	s.Sweeper = retention.New(logger,
		retention.Rule{Name: "inventory-usage", Window: retention.Days(cfg.RetentionUsageDays), Prune: s.Repos.Inventory.PruneUsage},
		retention.Rule{Name: "read-alerts", Window: retention.Days(cfg.RetentionAlertDays), Prune: s.Repos.Alerts.PruneRead},
	)
	logger.Info("detailcrm layer ready",
		"storage", s.Store.Driver(), "bus", busName(cfg.BusDriver), "archive", s.archiveS.Driver(), "origin", b.Origin())
	return s, nil
}

func wire(env repo.Env, store archive.Store) gateway.Services {
	alerts := repo.NewAlerts(env)
	customers := repo.NewCustomers(env, alerts)
	employees := repo.NewEmployees(env)
	invoices := repo.NewInvoices(env)
	expenses := repo.NewExpenses(env)
	inventory := repo.NewInventory(env, alerts)
	vehicles := repo.NewVehicleTypes(env, alerts)
	return gateway.Services{
		Customers:  customers,
		Users:      repo.NewUsers(env, alerts),
		Employees:  employees,
		Vehicles:   vehicles,
		Pricing:    repo.NewPricing(env, vehicles),
		FAQs:       repo.NewFAQs(env),
		About:      repo.NewAbout(env),
		Contact:    repo.NewContact(env),
		Inventory:  inventory,
		Checklists: repo.NewChecklists(env, inventory, alerts),
		Payroll:    repo.NewPayroll(env, employees, invoices, expenses, alerts),
		Invoices:   invoices,
		Expenses:   expenses,
		Bookings:   repo.NewBookings(env, alerts),
		Tasks:      repo.NewTasks(env),
		Coupons:    repo.NewCoupons(env),
		Emails:     repo.NewEmails(env, alerts),
		Alerts:     alerts,
		Demo:       repo.NewDemo(env, customers, invoices),
		Archive:    archive.New(store, env.Text, env.Logger),
	}
}

func (s *Service) initSnapshots(ctx context.Context) error {
	if err := s.Repos.Vehicles.Live().Init(ctx); err != nil {
		return err
	}
	return s.Repos.Pricing.Live().Init(ctx)
}

// redisClient reuses the storage driver's connection when it is redis.
func (s *Service) redisClient(driver domain.KVStore) *goredis.Client {
	if rs, ok := driver.(*kvredis.Store); ok {
		return rs.Client()
	}
	s.redis = kvredis.NewClient(kvredis.Options{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	return s.redis
}

func (s *Service) closeRedis() {
	if s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
	}
}

// onStorage keeps the text cache in step with writes made by other
// instances.
func (s *Service) onStorage(ev bus.Event) {
	if !ev.Remote {
		return
	}
	name, ok := strings.CutPrefix(ev.Key, domain.TextKeyPrefix)
	if !ok {
		return
	}
	if err := s.Text.Refresh(context.Background(), name); err != nil {
		s.logger.Warn("text refresh failed", "item", name, "error", err)
	}
}

func busName(driver string) string {
	if driver == "" {
		return "local"
	}
	return driver
}

// Request routes one endpoint call through the gateway.
func (s *Service) Request(ctx context.Context, endpoint string, opts gateway.RequestOptions) any {
	return s.Gateway.Request(ctx, endpoint, opts)
}

// Metrics returns the collector passed to Open, possibly nil.
func (s *Service) Metrics() *obs.Metrics { return s.metrics }

// Status reports the selected drivers and the unread alert count. The
// count is cached and reloaded whenever the alerts table changes.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{
		Storage: s.Store.Driver(),
		Archive: string(s.archiveS.Driver()),
		Bus:     busName(s.cfg.BusDriver),
		Origin:  s.Bus.Origin(),
	}
	if n, err := s.unread.Get(ctx); err == nil {
		st.UnreadAlerts = n
	}
	return st
}

// Start schedules the retention sweeps.
func (s *Service) Start() error {
	return s.Sweeper.Start(s.cfg.RetentionSchedule)
}

// Reset wipes all durable state. The next read of each table reseeds it.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.Store.Clear(ctx); err != nil {
		return err
	}
	if err := s.Text.Hydrate(ctx); err != nil {
		return err
	}
	return errors.Join(
		s.Repos.Vehicles.Live().Reset(ctx),
		s.Repos.Pricing.Live().Reset(ctx),
	)
}

// Close stops the sweeper and releases the bus and the store.
func (s *Service) Close() error {
	if s.Sweeper != nil {
		s.Sweeper.Stop()
	}
	if s.unsub != nil {
		s.unsub()
	}
	if s.unread != nil {
		s.unread.Close()
	}
	var errs []error
	if s.Bus != nil {
		errs = append(errs, s.Bus.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	s.closeRedis()
	return errors.Join(errs...)
}
