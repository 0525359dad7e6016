package flow

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notwallet/walletauth/internal/misc"
)

// Status tracks a login attempt through its state machine:
//
//	pending -> awaitingRedirect -> exchanging -> (succeeded | failed)
//	                  |-> cancelled (timeout or explicit cancel)
type Status int

const (
	StatusPending Status = iota
	StatusAwaitingRedirect
	StatusExchanging
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAwaitingRedirect:
		return "awaitingRedirect"
	case StatusExchanging:
		return "exchanging"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends the attempt.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Session represents one in-flight login attempt. The State field is the
// opaque correlation token minted at session start; a redirect that does not
// echo it never advances this session.
type Session struct {
	// ID identifies the attempt on the event bus.
	ID string
	// Provider is the canonical provider name the attempt targets.
	Provider string
	// State is the anti-forgery correlation token.
	State string
	// RedirectURI is the provider redirect target on the loopback receiver.
	RedirectURI string
	// CreatedAt and Deadline bound the attempt's lifetime.
	CreatedAt time.Time
	Deadline  time.Time

	mu         sync.Mutex
	status     Status
	cancelOnce sync.Once
	cancelled  chan struct{}
}

func newSession(providerName string, timeout time.Duration) (*Session, error) {
	token, err := misc.GenerateRandomState()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Provider:  providerName,
		State:     token,
		CreatedAt: now,
		Deadline:  now.Add(timeout),
		status:    StatusPending,
		cancelled: make(chan struct{}),
	}, nil
}

// Status returns the attempt's current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Terminal reports whether the attempt has reached a terminal status.
func (s *Session) Terminal() bool {
	return s.Status().Terminal()
}

// setStatus advances the state machine. Transitions out of a terminal status
// are refused so that a stale redirect or late exchange result can never
// revive a settled attempt.
func (s *Session) setStatus(next Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = next
	return true
}

// cancel marks the session cancelled. Idempotent.
func (s *Session) cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)
	})
}

// Done is closed when the session is cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.cancelled
}
