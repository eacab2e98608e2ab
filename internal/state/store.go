package state

import "sync"

// Key identifies one sync target.
type Key struct {
	Database string
	Layout   string
}

// IncrementalState holds the last committed watermark per incremental
// field, plus any cached layout schema from the prior run.
type IncrementalState struct {
	// LastValues maps an incremental field name to the maximum value
	// observed for it during the last successful run.
	LastValues map[string]string `json:"last_values"`

	// Columns caches the destination column order written by the last
	// successful run so output tables keep a stable column layout.
	Columns []string `json:"columns,omitempty"`
	// Schemas caches field repetition counts per layout, keyed by field
	// name, so a run can normalize without re-fetching layout metadata.
	Schemas map[string]int `json:"schemas,omitempty"`
}

// Clone returns a deep copy.
func (s *IncrementalState) Clone() *IncrementalState {
	if s == nil {
		return nil
	}
	out := &IncrementalState{}
	if s.LastValues != nil {
		out.LastValues = make(map[string]string, len(s.LastValues))
		for k, v := range s.LastValues {
			out.LastValues[k] = v
		}
	}
	if s.Columns != nil {
		out.Columns = append([]string(nil), s.Columns...)
	}
	if s.Schemas != nil {
		out.Schemas = make(map[string]int, len(s.Schemas))
		for k, v := range s.Schemas {
			out.Schemas[k] = v
		}
	}
	return out
}

// Store persists incremental state across runs. Put must be atomic: a
// crash mid-write must never surface a state mixing old and new values.
type Store interface {
	// Get returns the state for the key, or nil if none exists.
	Get(key Key) (*IncrementalState, error)

	// Put replaces the state for the key.
	Put(key Key, st *IncrementalState) error

	Close() error
}

// MemoryStore is an in-process Store for tests and single-shot runs.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[Key]*IncrementalState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Key]*IncrementalState)}
}

func (m *MemoryStore) Get(key Key) (*IncrementalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[key].Clone(), nil
}

func (m *MemoryStore) Put(key Key, st *IncrementalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = st.Clone()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
