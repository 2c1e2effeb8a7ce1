package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"detailcrm/internal/obs"
)

// Remote forwards unrecognized endpoints to a real backend. Each request is
// tried twice at most, with a fixed backoff between the attempts.
type Remote struct {
	base    *url.URL
	client  *http.Client
	backoff time.Duration
	logger  obs.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the default client. A nil client is ignored.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		if c != nil {
			r.client = c
		}
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(l obs.Logger) RemoteOption { return func(r *Remote) { r.logger = obs.OrNop(l) } }

// NewRemote builds the fallback client. An empty baseURL returns nil, which
// disables the fallback.
func NewRemote(baseURL string, backoff, timeout time.Duration, opts ...RemoteOption) (*Remote, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, nil
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote base url %q is not absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &Remote{
		base:    base,
		client:  &http.Client{Timeout: timeout},
		backoff: backoff,
		logger:  obs.OrNop(nil),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Remote) target(endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	u := *r.base
	u.Path = strings.TrimRight(r.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	q := ref.Query()
	q.Set("_t", strconv.FormatInt(r.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Do performs the request. It returns the decoded JSON body, the raw text
// for other content types, or nil when both attempts failed.
func (r *Remote) Do(ctx context.Context, endpoint, method string, body any, headers map[string]string, token string) any {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			r.logger.Warn("remote body encode failed", "endpoint", endpoint, "error", err)
			return nil
		}
		payload = raw
	}
	for attempt := 1; attempt <= 2; attempt++ {
		out, err := r.once(ctx, endpoint, method, payload, headers, token)
		if err == nil {
			return out
		}
		r.logger.Warn("remote request failed", "endpoint", endpoint, "attempt", attempt, "error", err)
		if attempt == 2 {
			break
		}
		if err := r.sleep(ctx, r.backoff); err != nil {
			return nil
		}
	}
	return nil
}

func (r *Remote) once(ctx context.Context, endpoint, method string, payload []byte, headers map[string]string, token string) (any, error) {
	target, err := r.target(endpoint)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote status %d", resp.StatusCode)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode remote json: %w", err)
		}
		return out, nil
	}
	return string(raw), nil
}
