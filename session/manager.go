package session

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"mllab/dataset"
)

// DefaultMaxSessions bounds how many live sessions a process keeps.
const DefaultMaxSessions = 64

// Manager is the bounded registry of live sessions. The least recently
// used session is closed and evicted when the bound is hit.
type Manager struct {
	cache    *lru.Cache[string, *Session]
	log      *zap.SugaredLogger
	events   EventSink
	recorder Recorder

	cfgMu sync.RWMutex
	cfg   Config
}

// NewManager builds a manager holding at most maxSessions sessions.
func NewManager(maxSessions int, cfg Config, log *zap.SugaredLogger, events EventSink, recorder Recorder) (*Manager, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &Manager{cfg: cfg, log: log, events: events, recorder: recorder}
	cache, err := lru.NewWithEvict[string, *Session](maxSessions, func(id string, s *Session) {
		s.Close()
		log.Infow("session evicted", "session", id)
	})
	if err != nil {
		return nil, err
	}
	m.cache = cache
	return m, nil
}

// Create starts a new session already moved into CollectingSamples for the
// given mode.
func (m *Manager) Create(mode dataset.Mode) (*Session, error) {
	m.cfgMu.RLock()
	cfg := m.cfg
	m.cfgMu.RUnlock()
	s := New(cfg, m.log, m.events, m.recorder)
	if err := s.SelectMode(mode); err != nil {
		return nil, err
	}
	m.cache.Add(s.ID, s)
	m.log.Infow("session created", "session", s.ID, "mode", mode)
	return s, nil
}

// UpdateConfig swaps the defaults used for sessions created from now on.
// Live sessions keep the config they were created with.
func (m *Manager) UpdateConfig(cfg Config) {
	m.cfgMu.Lock()
	m.cfg = cfg.withDefaults()
	m.cfgMu.Unlock()
	m.log.Infow("session defaults updated")
}

// Get returns a session by id, refreshing its recency.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, errors.New("unknown session: " + id)
	}
	return s, nil
}

// Remove closes and drops a session.
func (m *Manager) Remove(id string) {
	m.cache.Remove(id)
}

// Len returns the live session count.
func (m *Manager) Len() int { return m.cache.Len() }

// Close stops every live session.
func (m *Manager) Close() {
	m.cache.Purge()
}
