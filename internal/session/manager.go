package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/focusroom/internal/model"
)

// Manager owns the live sessions of the process.
type Manager struct {
	cfg  model.EngineConfig
	deps Deps

	mu        sync.RWMutex
	sessions  map[string]*Controller
	observers []Observer
}

// NewManager returns a manager creating sessions with cfg and deps.
func NewManager(cfg model.EngineConfig, deps Deps) *Manager {
	return &Manager{cfg: cfg, deps: deps, sessions: make(map[string]*Controller)}
}

// Observe attaches fn to every session created afterwards.
func (m *Manager) Observe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Create registers a new session in the loading phase. The session is
// forgotten once it reaches end; its archive outlives it.
func (m *Manager) Create(roomID string, dayIndex int, params model.DomainParams) *Controller {
	c := New(uuid.NewString(), roomID, dayIndex, params, m.cfg, m.deps)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fn := range m.observers {
		c.Subscribe(fn)
	}
	c.Subscribe(func(e Event) {
		if e.Type == EventPhase && e.Phase.To == model.PhaseEnd {
			m.release(c)
		}
	})
	m.sessions[c.ID()] = c
	return c
}

// release drops an ended session and frees its player.
func (m *Manager) release(c *Controller) {
	m.mu.Lock()
	if m.sessions[c.ID()] == c {
		delete(m.sessions, c.ID())
	}
	m.mu.Unlock()
	c.Close()
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// Reset closes the session and forgets it.
func (m *Manager) Reset(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	c.Close()
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()
	for _, c := range sessions {
		c.Close()
	}
}
