// Package buildstatus holds the process-wide development build status.
//
// The orchestrator is the only writer. Any other subsystem may poll the
// current value through Get or the HTTP handler.
package buildstatus

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status is the two-state build status.
type Status string

const (
	Pending Status = "pending"
	Done    Status = "done"
)

// Store is a concurrency-safe build status flag.
type Store struct {
	mu      sync.RWMutex
	status  Status
	since   time.Time
	now     func() time.Time
	onWrite []func(Status)
}

// NewStore returns a store in the Pending state; nothing has compiled yet.
func NewStore() *Store {
	s := &Store{status: Pending, now: time.Now}
	s.since = s.now()
	return s
}

// OnChange registers a callback invoked after each write, in registration
// order, outside the store's lock.
func (s *Store) OnChange(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = append(s.onWrite, fn)
}

// MarkPending records that a rebuild has been detected or started.
func (s *Store) MarkPending() { s.set(Pending) }

// MarkDone records that a compilation's diagnostics have been processed.
func (s *Store) MarkDone() { s.set(Done) }

func (s *Store) set(status Status) {
	s.mu.Lock()
	if s.status != status {
		s.status = status
		s.since = s.now()
	}
	observers := s.onWrite
	s.mu.Unlock()
	for _, fn := range observers {
		fn(status)
	}
}

// Get returns the current status.
func (s *Store) Get() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Since returns when the current status was entered.
func (s *Store) Since() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.since
}

// Snapshot is the JSON shape served to pollers.
type Snapshot struct {
	Status Status    `json:"status"`
	Since  time.Time `json:"since"`
}

// ServeHTTP reports the current status as JSON.
func (s *Store) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	snap := Snapshot{Status: s.status, Since: s.since}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	_ = json.NewEncoder(w).Encode(snap)
}
