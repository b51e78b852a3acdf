// Package session owns the stored bearer credential and ends the session the
// first time the backend rejects it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"scribe/internal/backend"
	"scribe/internal/kvstore"
	"scribe/internal/logging"
)

// TokenKey is the store key holding the bearer credential.
const TokenKey = "token"

// ErrNoCredential is returned by Token when nobody is signed in.
var ErrNoCredential = fmt.Errorf("no stored credential: %w", backend.ErrUnauthorized)

// Option customises Manager construction.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithContext sets the context used for store operations. Token has no
// context parameter because it satisfies backend.TokenSource.
func WithContext(ctx context.Context) Option {
	return func(m *Manager) {
		m.ctx = ctx
	}
}

// Manager reads and writes the credential and fires expiry callbacks.
type Manager struct {
	store  kvstore.Store
	logger *slog.Logger
	ctx    context.Context

	mu        sync.Mutex
	expired   bool
	callbacks []func()
}

// New builds a Manager on top of store.
func New(store kvstore.Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is nil")
	}
	m := &Manager{store: store, ctx: context.Background()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "session")
	return m, nil
}

// Token returns the stored credential, or ErrNoCredential.
func (m *Manager) Token() (string, error) {
	value, ok, err := m.store.Get(m.ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", ErrNoCredential
	}
	return value, nil
}

// SignedIn reports whether a credential is stored.
func (m *Manager) SignedIn() bool {
	_, err := m.Token()
	return err == nil
}

// Save stores token and starts a new session.
func (m *Manager) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("refusing to store empty credential")
	}
	if err := m.store.Set(m.ctx, TokenKey, token); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	m.mu.Lock()
	m.expired = false
	m.mu.Unlock()
	m.logger.Debug("credential stored")
	return nil
}

// Clear removes the credential without firing expiry callbacks.
func (m *Manager) Clear() error {
	if err := m.store.Remove(m.ctx, TokenKey); err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	m.logger.Debug("credential cleared")
	return nil
}

// OnExpired registers fn to run when the backend rejects the credential.
func (m *Manager) OnExpired(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

// Expire ends the session after a 401. Concurrent rejections from one poll
// tick clear the credential and notify callbacks exactly once.
func (m *Manager) Expire() {
	m.mu.Lock()
	if m.expired {
		m.mu.Unlock()
		return
	}
	m.expired = true
	callbacks := append([]func(){}, m.callbacks...)
	m.mu.Unlock()

	if err := m.store.Remove(m.ctx, TokenKey); err != nil {
		m.logger.Warn("failed to remove rejected credential",
			logging.Error(err),
			logging.String(logging.FieldEventType, "session_expire_failed"),
		)
	}
	m.logger.Info("session expired", logging.String(logging.FieldEventType, "session_expired"))
	for _, fn := range callbacks {
		fn()
	}
}

// Expired reports whether Expire has run since the last Save.
func (m *Manager) Expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expired
}

var _ backend.TokenSource = (*Manager)(nil)
