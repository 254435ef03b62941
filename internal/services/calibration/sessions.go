package calibration

import (
	"sync"

	"github.com/plantio/autowater/internal/model/entities"
)

// SessionTable owns the in-flight calibration sessions, keyed by pump id.
// It is injected into the calibrator so independent calibrator instances
// (and tests) never share state through a package-level map.
type SessionTable struct {
	mu       sync.Mutex
	sessions map[string]*entities.CalibrationSession
}

func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[string]*entities.CalibrationSession)}
}

// Get returns the active session for the pump, if any.
func (t *SessionTable) Get(pumpID string) (*entities.CalibrationSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[pumpID]
	return s, ok
}

// Put stores the session for its pump id, replacing any previous one.
func (t *SessionTable) Put(s *entities.CalibrationSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.PumpID] = s
}

// Delete removes the pump's session and returns it.
func (t *SessionTable) Delete(pumpID string) (*entities.CalibrationSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[pumpID]
	if ok {
		delete(t.sessions, pumpID)
	}
	return s, ok
}

// Len reports how many sessions are currently open.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
