// Package session holds the bearer token used by the API client and
// invalidates it when the server rejects it.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/nhle/complaint-desk/internal/credential"
	"github.com/nhle/complaint-desk/internal/logging"
)

// CredentialStore persists the token between runs. *credential.Keyring
// implements it.
type CredentialStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Claims are the token fields the client cares about. The signature is
// not verified here; the server remains the authority.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// User returns the user id, preferring the "id" claim over "sub".
func (c Claims) User() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Session is an api.TokenSource whose token can be replaced or revoked
// at runtime. It is safe for concurrent use.
type Session struct {
	mu     sync.RWMutex
	store  CredentialStore
	token  string
	claims Claims
	now    func() time.Time
	log    *logrus.Entry

	hooks []func()
}

// Option configures a Session.
type Option func(*Session)

// WithLogger logs token changes.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Session) { s.log = logging.Component(log, "session") }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New returns an empty session persisted in store. store may be nil, in
// which case the token lives only in memory.
func New(store CredentialStore, opts ...Option) *Session {
	s := &Session{
		store: store,
		now:   time.Now,
		log:   logging.Component(nil, "session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the stored token. A missing token leaves the session empty
// and is not an error.
func (s *Session) Load() error {
	if s.store == nil {
		return nil
	}
	tok, err := s.store.Get(credential.TokenKey)
	if errors.Is(err, credential.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	return s.set(tok, false)
}

// SetToken replaces the token and persists it.
func (s *Session) SetToken(tok string) error {
	return s.set(tok, true)
}

func (s *Session) set(tok string, persist bool) error {
	tok = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tok), "Bearer "))
	if tok == "" {
		return errors.New("empty token")
	}

	claims, err := parseClaims(tok)
	if err != nil {
		return err
	}

	if persist && s.store != nil {
		if err := s.store.Set(credential.TokenKey, tok); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
	}

	s.mu.Lock()
	s.token = tok
	s.claims = claims
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"user": claims.User(),
		"role": claims.Role,
	}).Info("session token set")
	return nil
}

// parseClaims decodes the token payload without verifying the signature.
func parseClaims(tok string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return Claims{}, fmt.Errorf("parsing token: %w", err)
	}
	return claims, nil
}

// Token implements api.TokenSource. It returns "" when no token is set.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Claims returns the claims of the current token.
func (s *Session) Claims() Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims
}

// Authenticated reports whether a token is set and not expired.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && !s.expiredLocked()
}

// Expired reports whether the current token carries an expiry in the
// past. A token without expiry never expires.
func (s *Session) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiredLocked()
}

func (s *Session) expiredLocked() bool {
	if s.claims.ExpiresAt == nil {
		return false
	}
	return !s.now().Before(s.claims.ExpiresAt.Time)
}

// OnInvalidate registers fn to run after the session is invalidated.
func (s *Session) OnInvalidate(fn func()) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Invalidate drops the token, removes it from the credential store and
// runs the OnInvalidate hooks. Invalidating an empty session does
// nothing.
func (s *Session) Invalidate() {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	s.token = ""
	s.claims = Claims{}
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(credential.TokenKey); err != nil {
			s.log.WithError(err).Warn("removing stored token")
		}
	}
	s.log.Info("session invalidated")

	for _, fn := range hooks {
		fn()
	}
}
