package picker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"bookingslots/internal/model"
	"bookingslots/internal/slots"
)

// Editing identifies an existing booking being rescheduled. Its interval is
// not treated as booked.
type Editing struct {
	ID        string `json:"id"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Context is what the picker is rendered for.
type Context struct {
	Kind        model.Kind    `json:"type"`
	Variant     slots.Variant `json:"variant"`
	LocationID  string        `json:"locationId"`
	PatientID   string        `json:"patientId,omitempty"`
	ClinicianID string        `json:"clinicianId,omitempty"`
	// Date is YYYY-MM-DD in the facility timezone. Empty renders today with
	// the grid disabled.
	Date     string   `json:"date,omitempty"`
	Editing  *Editing `json:"editing,omitempty"`
	Disabled bool     `json:"disabled,omitempty"`
	// HasNoLegalSelection marks an END picker whose start moved past a
	// conflicting booking; nothing on this day can be selected.
	HasNoLegalSelection bool `json:"hasNoLegalSelection,omitempty"`
}

// Form mirrors the booking form's time fields, in ISO 9075.
type Form struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Session is one picker instance.
type Session struct {
	ID        string
	StartedAt time.Time
	UpdatedAt time.Time

	ctx     Context
	form    Form
	toggles []time.Time
	hover   slots.Interval
	state   State
	fsm     *FSM

	mu sync.Mutex
}

func newSession(ctx Context, form Form) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: now,
		UpdatedAt: now,
		ctx:       ctx,
		form:      form,
		state:     StateEmpty,
		fsm:       NewFSM(ctx.Variant),
	}
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}

// IsExpired checks if session has expired.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.UpdatedAt) > timeout
}

// SessionStore manages picker sessions.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	timeout  time.Duration
}

// NewSessionStore creates a new session store.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
	}
}

// Add stores a session.
func (ss *SessionStore) Add(s *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[s.ID] = s
}

// Get returns a live session, or nil.
func (ss *SessionStore) Get(id string) *Session {
	ss.mu.RLock()
	s := ss.sessions[id]
	ss.mu.RUnlock()
	if s == nil || s.IsExpired(ss.timeout) {
		return nil
	}
	return s
}

// Delete removes a session and reports whether it existed.
func (ss *SessionStore) Delete(id string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	_, ok := ss.sessions[id]
	delete(ss.sessions, id)
	return ok
}

// Cleanup removes expired sessions.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for id, session := range ss.sessions {
		if session.IsExpired(ss.timeout) {
			delete(ss.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}
