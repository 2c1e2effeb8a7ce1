// Package httpapi exposes the gateway over HTTP so browser clients and
// other processes can share one persistence layer.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"detailcrm/internal/core"
	"detailcrm/internal/gateway"
	"detailcrm/internal/obs"
)

// maxBody caps request bodies; archived documents arrive base64 encoded.
const maxBody = 32 << 20

// Requester is the gateway surface the handler needs.
type Requester interface {
	Request(ctx context.Context, endpoint string, opts gateway.RequestOptions) any
}

// StatusReporter is implemented by requesters that can describe their
// state for /healthz.
type StatusReporter interface {
	Status(ctx context.Context) core.Status
}

// Handler serves /api/* through a Requester.
type Handler struct {
	gw      Requester
	metrics *obs.Metrics
	logger  obs.Logger
}

// New constructs a handler. metrics may be nil, which disables /metrics.
func New(gw Requester, metrics *obs.Metrics, logger obs.Logger) *Handler {
	return &Handler{gw: gw, metrics: metrics, logger: obs.OrNop(logger)}
}

// Router wires the HTTP routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	r.HandleFunc("/api/*", h.forward)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	if sr, ok := h.gw.(StatusReporter); ok {
		out["layer"] = sr.Status(r.Context())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	headers := map[string]string{}
	for _, name := range []string{"Accept-Language", "X-Request-Id"} {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		headers["X-Request-Id"] = id
	}
	out := h.gw.Request(r.Context(), r.URL.RequestURI(), gateway.RequestOptions{
		Method:  r.Method,
		Body:    body,
		Headers: headers,
	})
	if out == nil {
		h.logger.Debug("endpoint unavailable", "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusBadGateway, "endpoint unavailable")
		return
	}
	if text, ok := out.(string); ok {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, text)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeBody(w http.ResponseWriter, r *http.Request) (any, error) {
	if r.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.New("request body is not valid JSON")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
