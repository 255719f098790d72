package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/bazaar/internal/kv"
	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/market"
)

// SessionKey is the store key holding the persisted session.
const SessionKey = "session"

// Authenticator exchanges credentials for a session.
type Authenticator interface {
	Login(ctx context.Context, phone, password string) (market.Session, error)
}

// Manager owns the current session and its persisted copy.
type Manager struct {
	store  kv.Store
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.RWMutex
	session market.Session
	loaded  bool

	watchMu  sync.Mutex
	watchers map[int]func(market.Session)
	nextID   int
}

// NewManager creates a manager backed by store.
func NewManager(store kv.Store) *Manager {
	return &Manager{
		store:  store,
		now:    time.Now,
		logger:   logging.Component("auth"),
		watchers: make(map[int]func(market.Session)),
	}
}

// OnChange registers fn to run after every Login and Logout with the new
// session, signed out after Logout. The returned func unregisters it.
func (m *Manager) OnChange(fn func(market.Session)) func() {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	return func() {
		m.watchMu.Lock()
		defer m.watchMu.Unlock()
		delete(m.watchers, id)
	}
}

func (m *Manager) notify(s market.Session) {
	m.watchMu.Lock()
	fns := make([]func(market.Session), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.watchMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// SetClock overrides the clock used for expiry checks.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Load restores the persisted session. A missing or unreadable record
// leaves the manager signed out.
func (m *Manager) Load(ctx context.Context) market.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = true
	m.session = market.Session{}

	raw, err := m.store.Get(ctx, SessionKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			m.logger.Warn().Err(err).Msg("failed to read stored session")
		}
		return m.session
	}
	var s market.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		m.logger.Warn().Err(err).Msg("discarding unreadable stored session")
		return m.session
	}
	m.session = s
	return m.session
}

// Current returns the session, loading it on first use. An expired token
// yields a signed-out session.
func (m *Manager) Current(ctx context.Context) market.Session {
	m.mu.RLock()
	loaded := m.loaded
	s := m.session
	m.mu.RUnlock()
	if !loaded {
		s = m.Load(ctx)
	}
	if !s.Active() || TokenExpired(s.Token, m.now()) {
		return market.Session{}
	}
	return s
}

// Login authenticates through a and persists the resulting session.
func (m *Manager) Login(ctx context.Context, a Authenticator, phone, password string) (market.Session, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || password == "" {
		return market.Session{}, market.ValidationError("login", "phone and password are required", nil)
	}
	s, err := a.Login(ctx, phone, password)
	if err != nil {
		return market.Session{}, err
	}
	if s.User.ID == "" {
		s.User.ID = TokenSubject(s.Token)
	}
	if s.User.ID == "" {
		return market.Session{}, market.AuthError("login", "login response carried no user", 0)
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return market.Session{}, fmt.Errorf("encode session: %w", err)
	}
	m.mu.Lock()
	m.session = s
	m.loaded = true
	m.mu.Unlock()
	m.notify(s)

	if err := m.store.Put(ctx, SessionKey, payload); err != nil {
		return s, fmt.Errorf("persist session: %w", err)
	}
	logger := logging.WithUser(s.User.ID)
	logger.Info().Msg("signed in")
	return s, nil
}

// Logout forgets the session in memory and on disk.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.session = market.Session{}
	m.loaded = true
	m.mu.Unlock()
	m.notify(market.Session{})

	if err := m.store.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
