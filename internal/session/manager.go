package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"servicemarket/internal/domain"
	"servicemarket/internal/events"
	"servicemarket/internal/logger"
)

// Refresher exchanges a refresh token for a new token pair. It is the session
// boundary's refresh operation, provided by the transport layer.
type Refresher func(ctx context.Context, refreshToken string) (domain.TokenPair, error)

// Manager owns the process-wide session: get/set/clear with change subscriptions.
// Components depend on it instead of reading global state.
type Manager struct {
	mu        sync.RWMutex
	current   domain.Session
	store     Store
	refresher Refresher
	bus       *events.Bus
	log       zerolog.Logger

	refreshGroup singleflight.Group

	listenersMu sync.Mutex
	listeners   map[int]func(domain.Session)
	nextID      int
}

// NewManager loads the persisted session from store. bus may be nil.
func NewManager(store Store, refresher Refresher, bus *events.Bus) (*Manager, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	s, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Manager{
		current:   s,
		store:     store,
		refresher: refresher,
		bus:       bus,
		log:       logger.WithComponent("session"),
		listeners: make(map[int]func(domain.Session)),
	}, nil
}

func (m *Manager) Get() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) Set(s domain.Session) error {
	if err := m.store.Save(s); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.notify(s)
	return nil
}

// SetTokens stores a session derived from a freshly issued token pair.
func (m *Manager) SetTokens(pair domain.TokenPair) error {
	s, err := FromTokens(pair)
	if err != nil {
		return err
	}
	return m.Set(s)
}

// Clear signs the user out. Subscribers observe an empty session.
func (m *Manager) Clear() error {
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	m.mu.Lock()
	m.current = domain.Session{}
	m.mu.Unlock()

	m.notify(domain.Session{})
	return nil
}

// Subscribe registers fn for every session change. The returned func removes it.
func (m *Manager) Subscribe(fn func(domain.Session)) (cancel func()) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) notify(s domain.Session) {
	m.listenersMu.Lock()
	fns := make([]func(domain.Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
	m.bus.Publish(&events.Event{Type: events.EventSessionChanged, Payload: s})
}

func (m *Manager) AccessToken() string {
	return m.Get().AccessToken
}

func (m *Manager) RefreshToken() string {
	return m.Get().RefreshToken
}

// Refresh obtains a new token pair. Concurrent callers share one refresh call.
// A rejected refresh token signs the user out.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	token := m.RefreshToken()
	if token == "" || m.refresher == nil {
		return fmt.Errorf("no refresh credential: %w", domain.ErrUnauthorized)
	}

	pair, err := m.refresher(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrForbidden) {
			m.log.Warn().Err(err).Msg("refresh token rejected, signing out")
			if cerr := m.Clear(); cerr != nil {
				m.log.Error().Err(cerr).Msg("failed to clear session")
			}
			return fmt.Errorf("refresh rejected: %w", domain.ErrUnauthorized)
		}
		return err
	}

	if err := m.SetTokens(pair); err != nil {
		return err
	}
	m.log.Debug().Msg("session refreshed")
	return nil
}
