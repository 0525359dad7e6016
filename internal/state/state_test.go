package state

import "testing"

func TestInitialStateIsLoggedOut(t *testing.T) {
	t.Parallel()

	auth := New()
	snapshot := auth.Snapshot()
	if snapshot.LoggedIn || snapshot.User != nil {
		t.Fatalf("initial snapshot = %+v, want logged out", snapshot)
	}
}

func TestSetLoggedInUpdatesSnapshot(t *testing.T) {
	t.Parallel()

	auth := New()
	auth.SetLoggedIn(Identity{Provider: "google", Name: "Ada", AccessToken: "tok-1"})

	snapshot := auth.Snapshot()
	if !snapshot.LoggedIn {
		t.Fatal("snapshot.LoggedIn = false, want true")
	}
	if snapshot.User == nil || snapshot.User.Name != "Ada" || snapshot.User.AccessToken != "tok-1" {
		t.Fatalf("snapshot.User = %+v", snapshot.User)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	auth := New()
	auth.SetLoggedIn(Identity{Provider: "google", Name: "Ada"})

	snapshot := auth.Snapshot()
	snapshot.User.Name = "mutated"

	if got := auth.Snapshot().User.Name; got != "Ada" {
		t.Fatalf("state mutated through snapshot: name = %q", got)
	}
}

func TestLogoutClearsState(t *testing.T) {
	t.Parallel()

	auth := New()
	auth.SetLoggedIn(Identity{Provider: "google", Name: "Ada"})
	auth.Logout()

	snapshot := auth.Snapshot()
	if snapshot.LoggedIn || snapshot.User != nil {
		t.Fatalf("snapshot after logout = %+v, want logged out", snapshot)
	}
}

func TestObserversSeeTransitions(t *testing.T) {
	t.Parallel()

	auth := New()
	var seen []Snapshot
	sub := auth.Subscribe(func(s Snapshot) { seen = append(seen, s) })
	defer sub.Unsubscribe()

	auth.SetLoggedIn(Identity{Provider: "google", Name: "Ada"})
	auth.Logout()
	auth.Logout() // already logged out, no notification

	if len(seen) != 2 {
		t.Fatalf("observer calls = %d, want 2", len(seen))
	}
	if !seen[0].LoggedIn || seen[0].User == nil || seen[0].User.Name != "Ada" {
		t.Errorf("first transition = %+v", seen[0])
	}
	if seen[1].LoggedIn || seen[1].User != nil {
		t.Errorf("second transition = %+v", seen[1])
	}
}

func TestUnsubscribedObserverIsNotNotified(t *testing.T) {
	t.Parallel()

	auth := New()
	calls := 0
	sub := auth.Subscribe(func(Snapshot) { calls++ })
	sub.Unsubscribe()
	sub.Unsubscribe()

	auth.SetLoggedIn(Identity{Provider: "google"})
	if calls != 0 {
		t.Fatalf("observer called %d times after unsubscribe", calls)
	}
}
