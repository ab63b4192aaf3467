// Package session keeps per-user state between requests: the active data
// source, the freshness markers and the last schema seen.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/source"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrNotConnected = errors.New("session has no data source")
	ErrBusy         = errors.New("session is handling another request")
)

type Freshness struct {
	FileModTime time.Time        `json:"file_mod_time,omitempty"`
	TableCounts map[string]int64 `json:"table_counts,omitempty"`
}

type Session struct {
	ID        string
	CreatedAt time.Time
	// Owner is the key fingerprint of the caller that created the session;
	// empty when the API runs without auth.
	Owner string

	mu         sync.Mutex
	busy       sync.Mutex
	source     *source.Config
	freshness  Freshness
	lastSchema any
}

// Snapshot is a copy of a session that is safe to read without locks.
type Snapshot struct {
	ID         string         `json:"session_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Source     *source.Config `json:"source,omitempty"`
	Freshness  Freshness      `json:"freshness"`
	LastSchema any            `json:"last_schema,omitempty"`
}

func (s *Session) Source() (source.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return source.Config{}, ErrNotConnected
	}
	return *s.source, nil
}

// SetSchema records the schema last handed to the prompt builder, either a
// schema.Description or a schema.Combined.
func (s *Session) SetSchema(value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch typed := value.(type) {
	case schema.Description:
		s.lastSchema = typed.Clone()
	case schema.Combined:
		s.lastSchema = schema.Combined{Relational: typed.Relational.Clone(), Tabular: typed.Tabular.Clone()}
	default:
		s.lastSchema = value
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{ID: s.ID, CreatedAt: s.CreatedAt, LastSchema: s.lastSchema, Freshness: s.freshness.clone()}
	if s.source != nil {
		redacted := s.source.Redacted()
		snap.Source = &redacted
	}
	return snap
}

// Acquire marks the session busy until release is called. Requests never
// queue behind each other.
func (s *Session) Acquire() (release func(), err error) {
	if !s.busy.TryLock() {
		return nil, ErrBusy
	}
	return s.busy.Unlock, nil
}

func (f Freshness) clone() Freshness {
	out := Freshness{FileModTime: f.FileModTime}
	if f.TableCounts != nil {
		out.TableCounts = make(map[string]int64, len(f.TableCounts))
		for table, count := range f.TableCounts {
			out.TableCounts[table] = count
		}
	}
	return out
}

type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session), now: time.Now}
}

func (m *Manager) Create() *Session {
	return m.CreateFor("")
}

func (m *Manager) CreateFor(owner string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Session{ID: uuid.NewString(), CreatedAt: m.now().UTC(), Owner: owner}
	m.sessions[s.ID] = s
	observability.SetActiveSessions(len(m.sessions))
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Connect replaces the session's source. Freshness markers and the last
// schema belong to the old source and are reset.
func (m *Manager) Connect(id string, cfg source.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = &cfg
	s.freshness = Freshness{}
	s.lastSchema = nil
	return s, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	observability.SetActiveSessions(len(m.sessions))
	return nil
}
