// Package gateway dispatches REST-shaped requests to the repositories
// in-process and falls back to a remote backend for unknown endpoints.
//
// Matched routes never fail to the caller: write errors become
// {ok:false, error:<code>} and read errors degrade to empty values.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"detailcrm/internal/archive"
	"detailcrm/internal/obs"
	"detailcrm/internal/repo"
	"detailcrm/internal/session"
	"detailcrm/pkg/domain"
)

// Services is everything the local routes call into.
type Services struct {
	Customers  *repo.Customers
	Users      *repo.Users
	Employees  *repo.Employees
	Vehicles   *repo.VehicleTypes
	Pricing    *repo.Pricing
	FAQs       *repo.FAQs
	About      *repo.About
	Contact    *repo.Contact
	Inventory  *repo.Inventory
	Checklists *repo.Checklists
	Payroll    *repo.Payroll
	Invoices   *repo.Invoices
	Expenses   *repo.Expenses
	Bookings   *repo.Bookings
	Tasks      *repo.Tasks
	Coupons    *repo.Coupons
	Emails     *repo.Emails
	Alerts     *repo.Alerts
	Demo       *repo.Demo
	Archive    *archive.Archive
	Session    *session.Manager
}

// RequestOptions carries the method, body and headers of a request.
type RequestOptions struct {
	Method  string
	Body    any
	Headers map[string]string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l obs.Logger) Option { return func(g *Gateway) { g.logger = obs.OrNop(l) } }

// WithMetrics records per-operation outcomes.
func WithMetrics(m *obs.Metrics) Option { return func(g *Gateway) { g.metrics = m } }

// WithRemote enables the network fallback.
func WithRemote(r *Remote) Option { return func(g *Gateway) { g.remote = r } }

// WithClock overrides the clock used for date-range defaults.
func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

// Gateway is the single request entry point.
type Gateway struct {
	svc     Services
	logger  obs.Logger
	metrics *obs.Metrics
	remote  *Remote
	now     func() time.Time
}

// New builds a gateway over svc.
func New(svc Services, opts ...Option) *Gateway {
	g := &Gateway{svc: svc, logger: obs.OrNop(nil), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// call is one matched request.
type call struct {
	op      Op
	params  Params
	query   url.Values
	body    any
	headers map[string]string
}

func (c *call) param(name string) string { return c.params[name] }

func (c *call) patch() (repo.Patch, error) { return repo.PatchOf(c.body) }

// Request dispatches endpoint. The result is JSON-shaped, or nil when the
// remote fallback is unavailable.
func (g *Gateway) Request(ctx context.Context, endpoint string, opts RequestOptions) any {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		g.logger.Warn("gateway endpoint parse failed", "endpoint", endpoint, "error", err)
		return failure(domain.CodeInvalidRequest)
	}
	op, params, ok := Resolve(method, u.EscapedPath())
	if !ok {
		if g.remote == nil {
			g.logger.Debug("gateway endpoint not handled locally", "method", method, "path", u.Path)
			return nil
		}
		token := ""
		if g.svc.Session != nil {
			if token, err = g.svc.Session.Token(); err != nil {
				g.logger.Warn("session token unavailable", "error", err)
			}
		}
		return g.remote.Do(ctx, endpoint, method, opts.Body, opts.Headers, token)
	}
	c := &call{op: op, params: params, query: u.Query(), body: opts.Body, headers: opts.Headers}
	return g.dispatch(ctx, c)
}

func (g *Gateway) dispatch(ctx context.Context, c *call) (out any) {
	h, ok := handlers[c.op]
	if !ok {
		g.logger.Error("gateway route without handler", "op", c.op)
		return failure(domain.CodeInternal)
	}
	start := time.Now()
	success := false
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("gateway handler panic", "op", c.op, "panic", fmt.Sprint(rec))
			out, success = failure(domain.CodeInternal), false
		}
		g.metrics.Observe(ctx, "gateway."+string(c.op), success, time.Since(start))
	}()
	res, err := h.run(ctx, g, c)
	if err == nil {
		success = true
		return res
	}
	if h.read {
		g.logger.Warn("gateway read degraded", "op", c.op, "error", err)
		return h.empty()
	}
	code := domain.CodeOf(err)
	if code == domain.CodeStorageFailure || code == domain.CodeInternal {
		g.logger.Error("gateway write failed", "op", c.op, "error", err)
	} else {
		g.logger.Debug("gateway write rejected", "op", c.op, "code", code, "error", err)
	}
	return failure(code)
}

func failure(code domain.ErrorCode) map[string]any {
	return map[string]any{"ok": false, "error": string(code)}
}

// ok builds a success result from alternating key, value pairs.
func ok(kv ...any) map[string]any {
	out := map[string]any{"ok": true}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func decode[T any](body any) (T, error) {
	var out T
	if body == nil {
		return out, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return out, domain.Invalid("encode body: %v", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, domain.Invalid("body shape: %v", err)
	}
	return out, nil
}
