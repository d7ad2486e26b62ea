// Package session implements the in-process store for voice interaction
// sessions. A session is created before a call starts, becomes authenticated
// when the caller's credentials check out, and is evicted lazily once its TTL
// elapses. Sessions are deliberately not persisted: they are bound to a live
// voice call and a restart invalidates them all.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record tracks one voice interaction's authentication state. The store owns
// all records; callers only ever see copies and address records by id.
type Record struct {
	ID                 string    `json:"sessionId"`
	TenantID           string    `json:"tenantId"`
	Authenticated      bool      `json:"authenticated"`
	CreatedAt          time.Time `json:"createdAt"`
	LastActivity       time.Time `json:"lastActivity,omitzero"`
	CallStatus         string    `json:"callStatus,omitempty"`
	ConversationLength int       `json:"conversationLength,omitempty"`
	LastCallEnded      time.Time `json:"lastCallEnded,omitzero"`

	// credentialsValid records whether the tenant password submitted at
	// creation time was correct. The password itself is never retained.
	credentialsValid bool
}

// CredentialsValid reports whether the password submitted when the session
// was created matched the tenant's credential.
func (r *Record) CredentialsValid() bool {
	return r.credentialsValid
}

// Activity is the set of call-tracking fields a webhook event may merge into
// a session. Nil pointers leave the corresponding field untouched.
type Activity struct {
	CallStatus         *string
	ConversationLength *int
	CallEnded          bool
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*Record
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Record),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create allocates a new unauthenticated session bound to the given tenant.
// The tenant binding is fixed for the session's lifetime.
func (s *Store) Create(tenantID string, credentialsValid bool) Record {
	record := &Record{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		CreatedAt:        s.now(),
		credentialsValid: credentialsValid,
	}

	s.mu.Lock()
	s.sessions[record.ID] = record
	s.mu.Unlock()

	return *record
}

// Get returns a copy of the session, evicting it first if stale.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.getLocked(id)
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// MarkAuthenticated flips the session to authenticated. Idempotent. Returns
// false if the session does not exist or has expired.
func (s *Store) MarkAuthenticated(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.getLocked(id)
	if !ok {
		return false
	}
	record.Authenticated = true
	return true
}

// Touch merges call-tracking metadata into the session and stamps
// LastActivity. Returns false if the session does not exist or has expired.
func (s *Store) Touch(id string, activity Activity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.getLocked(id)
	if !ok {
		return false
	}

	record.LastActivity = s.now()
	if activity.CallStatus != nil {
		record.CallStatus = *activity.CallStatus
	}
	if activity.ConversationLength != nil {
		record.ConversationLength = *activity.ConversationLength
	}
	if activity.CallEnded {
		record.LastCallEnded = s.now()
	}
	return true
}

// ExpireIfStale removes the session if its TTL has elapsed and reports
// whether it did.
func (s *Store) ExpireIfStale(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[id]
	if !ok {
		return false
	}
	if !s.stale(record) {
		return false
	}
	delete(s.sessions, id)
	return true
}

// PurgeExpired removes every stale session and returns the eviction count.
// Lazy eviction on read is the correctness mechanism; this keeps abandoned
// sessions from accumulating between reads.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, record := range s.sessions {
		if s.stale(record) {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// getLocked looks up a live record, evicting it if stale. Callers must hold
// the mutex.
func (s *Store) getLocked(id string) (*Record, bool) {
	record, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.stale(record) {
		delete(s.sessions, id)
		return nil, false
	}
	return record, true
}

func (s *Store) stale(record *Record) bool {
	return s.now().Sub(record.CreatedAt) > s.ttl
}
