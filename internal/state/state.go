// Package state holds the process-wide authentication state observed by the
// UI. It transitions to logged-in only through a successful login attempt and
// back to logged-out only through an explicit logout.
package state

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Identity describes the authenticated user as reported by the provider.
type Identity struct {
	// Provider is the canonical provider name the identity came from.
	Provider string `json:"provider"`
	// Name is the user's display name, when the provider reports one.
	Name string `json:"name,omitempty"`
	// Email is the user's email address, when available.
	Email string `json:"email,omitempty"`
	// AccessToken is the token obtained by the initial exchange.
	AccessToken string `json:"access_token"`
}

// Snapshot is a consistent view of the auth state; no partial updates are
// ever visible to readers.
type Snapshot struct {
	LoggedIn bool
	User     *Identity
}

// Observer is notified after every state transition with the new snapshot.
type Observer func(Snapshot)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	state *AuthState
	id    uint64
	once  sync.Once
}

// Unsubscribe stops delivering snapshots to the observer. Idempotent.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.state.mu.Lock()
		delete(s.state.observers, s.id)
		s.state.mu.Unlock()
	})
}

// AuthState is the single mutable resource shared across the login flow. Only
// the login coordinator writes it on success; everything else reads snapshots.
type AuthState struct {
	mu        sync.RWMutex
	loggedIn  bool
	user      *Identity
	nextID    uint64
	observers map[uint64]Observer
}

// New returns an AuthState initialized to logged-out.
func New() *AuthState {
	return &AuthState{observers: make(map[uint64]Observer)}
}

// Snapshot returns a consistent copy of the current state.
func (a *AuthState) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{LoggedIn: a.loggedIn, User: cloneIdentity(a.user)}
}

// SetLoggedIn records a successful login with the given identity and notifies
// observers. It is called exactly once per successful attempt.
func (a *AuthState) SetLoggedIn(user Identity) {
	a.mu.Lock()
	a.loggedIn = true
	copied := user
	a.user = &copied
	snapshot := Snapshot{LoggedIn: true, User: cloneIdentity(a.user)}
	observers := a.observerList()
	a.mu.Unlock()

	log.WithField("provider", user.Provider).Info("auth state: logged in")
	notify(observers, snapshot)
}

// Logout clears the state and notifies observers. Calling it while already
// logged out is a no-op.
func (a *AuthState) Logout() {
	a.mu.Lock()
	if !a.loggedIn {
		a.mu.Unlock()
		return
	}
	a.loggedIn = false
	a.user = nil
	snapshot := Snapshot{}
	observers := a.observerList()
	a.mu.Unlock()

	log.Info("auth state: logged out")
	notify(observers, snapshot)
}

// Subscribe registers an observer for state transitions and returns its
// handle. The observer is not called with the current state on registration.
func (a *AuthState) Subscribe(fn Observer) *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	if fn != nil {
		a.observers[id] = fn
	}
	return &Subscription{state: a, id: id}
}

// observerList must be called with the lock held.
func (a *AuthState) observerList() []Observer {
	observers := make([]Observer, 0, len(a.observers))
	for _, fn := range a.observers {
		observers = append(observers, fn)
	}
	return observers
}

func notify(observers []Observer, snapshot Snapshot) {
	for _, fn := range observers {
		fn(snapshot)
	}
}

func cloneIdentity(user *Identity) *Identity {
	if user == nil {
		return nil
	}
	copied := *user
	return &copied
}
