// Package session keeps the signed-in user in the text store and issues
// the bearer tokens sent to the remote backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"detailcrm/internal/bus"
	"detailcrm/internal/kv"
	"detailcrm/internal/obs"
	"detailcrm/pkg/domain"
)

// DefaultTokenTTL bounds issued tokens.
const DefaultTokenTTL = 24 * time.Hour

// Users is the account lookup the session needs.
type Users interface {
	Find(ctx context.Context, id string) (domain.User, bool, error)
	VerifyPassword(ctx context.Context, email, password string) (domain.User, bool, error)
	TouchLogin(ctx context.Context, id string) error
}

// Publisher receives session-changed events.
type Publisher interface {
	Publish(ctx context.Context, kind string, detail any)
}

// Claims are the token claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for token timestamps.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithTTL overrides DefaultTokenTTL.
func WithTTL(d time.Duration) Option { return func(m *Manager) { m.ttl = d } }

// WithPublisher sets the event sink for session changes.
func WithPublisher(p Publisher) Option { return func(m *Manager) { m.events = p } }

// WithLogger sets the logger.
func WithLogger(l obs.Logger) Option { return func(m *Manager) { m.logger = obs.OrNop(l) } }

// Manager owns the currentUser text item.
type Manager struct {
	text   *kv.TextStore
	users  Users
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	events Publisher
	logger obs.Logger

	mu sync.Mutex
}

// New builds a session manager. An empty secret disables token issuing.
func New(text *kv.TextStore, users Users, secret string, opts ...Option) *Manager {
	m := &Manager{
		text:   text,
		users:  users,
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		logger: obs.OrNop(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the signed-in user.
func (m *Manager) Current() (domain.User, bool) {
	var u domain.User
	ok, err := m.text.GetJSON(domain.TextCurrentUser, &u)
	if err != nil {
		m.logger.Warn("decode current user", "error", err)
		return domain.User{}, false
	}
	return u, ok && u.ID != ""
}

func (m *Manager) set(ctx context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.text.SetJSON(ctx, domain.TextCurrentUser, u.Redacted()); err != nil {
		return domain.StorageFailure(err)
	}
	if m.events != nil {
		m.events.Publish(ctx, bus.KindSession, map[string]string{"id": u.ID, "role": string(u.Role)})
	}
	return nil
}

// Impersonate switches the session to the user id without a password.
func (m *Manager) Impersonate(ctx context.Context, id string) (domain.User, error) {
	u, ok, err := m.users.Find(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.NotFound("user", id)
	}
	if err := m.set(ctx, u); err != nil {
		return domain.User{}, err
	}
	m.logger.Info("session impersonated", "user", u.ID)
	return u, nil
}

// ErrBadCredentials is returned by Login for an unknown email or a wrong
// password.
var ErrBadCredentials = domain.Invalid("invalid email or password")

// Login checks the password and starts a session.
func (m *Manager) Login(ctx context.Context, email, password string) (domain.User, error) {
	u, ok, err := m.users.VerifyPassword(ctx, email, password)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrBadCredentials
	}
	if err := m.users.TouchLogin(ctx, u.ID); err != nil {
		m.logger.Warn("stamp lastLogin failed", "user", u.ID, "error", err)
	}
	if err := m.set(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Logout clears the session.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.text.RemoveItem(ctx, domain.TextCurrentUser); err != nil {
		return domain.StorageFailure(err)
	}
	if m.events != nil {
		m.events.Publish(ctx, bus.KindSession, nil)
	}
	return nil
}

// Token signs a bearer token for the current user. It returns "" when
// nobody is signed in or no secret is configured.
func (m *Manager) Token() (string, error) {
	u, ok := m.Current()
	if !ok || len(m.secret) == 0 {
		return "", nil
	}
	now := m.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Issuer:    "detailcrm",
		},
		Email: u.Email,
		Role:  u.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse validates a token issued by Token.
func (m *Manager) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
