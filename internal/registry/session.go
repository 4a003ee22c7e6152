package registry

import "sync"

// Session is the announced-identity set for one broker connection.
// Discovery config for an identity is published at most once per
// session; a reconnect resets the set so retained discovery state is
// re-established even if the broker lost it.
//
// Session is safe for concurrent use: Reset runs on the MQTT client's
// connect callback goroutine while the poll loop marks and checks
// identities from its own.
type Session struct {
	mu        sync.Mutex
	announced map[string]struct{}
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{announced: make(map[string]struct{})}
}

// Reset clears all announced identities. Called exactly once per
// successful (re)connect, before the first publish of that session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announced = make(map[string]struct{})
}

// IsAnnounced reports whether discovery for identity has been
// published in the current session.
func (s *Session) IsAnnounced(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.announced[identity]
	return ok
}

// MarkAnnounced records that discovery for identity was published.
func (s *Session) MarkAnnounced(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announced[identity] = struct{}{}
}

// Len returns the number of announced identities, for logging.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.announced)
}
