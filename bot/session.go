package bot

import "sync"

// SessionPolicy decides what happens to the session token when the
// connection drops.
type SessionPolicy int

const (
	// RetainSession keeps the token across reconnects.
	RetainSession SessionPolicy = iota
	// ClearSession empties the token so commands wait for a fresh handshake.
	ClearSession
)

func (p SessionPolicy) String() string {
	switch p {
	case RetainSession:
		return "retain"
	case ClearSession:
		return "clear"
	default:
		return "unknown"
	}
}

type session struct {
	mu    sync.RWMutex
	token string
}

func (s *session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *session) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// apply folds a control reply into the session. Non-zero codes leave the
// token untouched and come back as a *ProtocolError.
func (s *session) apply(f classified, raw []byte) error {
	if f.code != 0 {
		reason := f.msg
		if reason == "" {
			reason = "gateway rejected request"
		}
		return &ProtocolError{Code: f.code, Reason: reason, Payload: raw}
	}
	if f.session != "" {
		s.set(f.session)
	}
	return nil
}
