package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/notwallet/walletauth/internal/provider"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewFileTokenStore(t.TempDir())
	result := &provider.TokenResult{
		Provider:     provider.Google,
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
		Email:        "ada@example.com",
		Name:         "Ada",
	}

	path, err := store.Save(context.Background(), result)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Base(path) != "google.json" {
		t.Errorf("token path = %q, want google.json", path)
	}

	if runtime.GOOS != "windows" {
		info, statErr := os.Stat(path)
		if statErr != nil {
			t.Fatalf("stat token file: %v", statErr)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("token file mode = %o, want 600", perm)
		}
	}

	loaded, err := store.Load("gmail")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.AccessToken != "tok-1" || loaded.RefreshToken != "ref-1" {
		t.Errorf("loaded tokens = %q/%q", loaded.AccessToken, loaded.RefreshToken)
	}
	if loaded.Email != "ada@example.com" || loaded.Name != "Ada" {
		t.Errorf("loaded identity = %q/%q", loaded.Email, loaded.Name)
	}
}

func TestSaveValidation(t *testing.T) {
	t.Parallel()

	store := NewFileTokenStore(t.TempDir())
	if _, err := store.Save(context.Background(), nil); err == nil {
		t.Error("Save(nil) succeeded, want error")
	}
	if _, err := store.Save(context.Background(), &provider.TokenResult{}); err == nil {
		t.Error("Save() without provider succeeded, want error")
	}

	empty := NewFileTokenStore("")
	if _, err := empty.Save(context.Background(), &provider.TokenResult{Provider: provider.Google}); err == nil {
		t.Error("Save() with empty base dir succeeded, want error")
	}
}

func TestLoadMissingToken(t *testing.T) {
	t.Parallel()

	store := NewFileTokenStore(t.TempDir())
	if _, err := store.Load("google"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load() error = %v, want os.ErrNotExist", err)
	}
}

func TestDeleteToken(t *testing.T) {
	t.Parallel()

	store := NewFileTokenStore(t.TempDir())
	if _, err := store.Save(context.Background(), &provider.TokenResult{Provider: provider.Google, AccessToken: "tok"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete("google"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load("google"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load() after delete error = %v, want os.ErrNotExist", err)
	}

	// Deleting an absent token is not an error.
	if err := store.Delete("google"); err != nil {
		t.Fatalf("Delete() of missing token error = %v", err)
	}
}

func TestDeleteUnknownProvider(t *testing.T) {
	t.Parallel()

	store := NewFileTokenStore(t.TempDir())
	if err := store.Delete("facebook"); !errors.Is(err, provider.ErrUnsupportedProvider) {
		t.Fatalf("Delete(facebook) error = %v, want ErrUnsupportedProvider", err)
	}
}
