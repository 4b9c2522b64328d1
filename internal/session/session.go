// AngelaMos | 2026
// session.go

package session

import (
	"time"
)

// Session is the per-request view of a stored session. It is not safe for
// concurrent use; each request gets its own.
type Session struct {
	id         string
	previousID string
	userID     string
	createdAt  time.Time
	dirty      bool
	destroyed  bool
}

func newSession() *Session {
	return &Session{}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) IsAuthenticated() bool {
	return s.userID != "" && !s.destroyed
}

// Login binds the session to userID under a fresh identifier so a session
// id planted before login cannot be reused afterwards.
func (s *Session) Login(userID string) {
	if s.id != "" {
		s.previousID = s.id
	}
	s.id = ""
	s.userID = userID
	s.destroyed = false
	s.dirty = true
}

// Destroy removes the session from the store on commit.
func (s *Session) Destroy() {
	if s.id == "" && s.previousID != "" {
		s.id = s.previousID
	}
	s.previousID = ""
	s.userID = ""
	s.destroyed = true
	s.dirty = false
}

func (s *Session) IsDirty() bool {
	return s.dirty || s.destroyed
}
