// Package store hands exchanged tokens off to persistent storage. Long-term
// token custody lives here, outside the login coordinator, which forwards the
// result of a successful exchange and retains nothing.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/notwallet/walletauth/internal/provider"
)

// TokenStore receives the token produced by a successful login attempt.
type TokenStore interface {
	// Save persists the token result and returns the storage location.
	Save(ctx context.Context, result *provider.TokenResult) (string, error)
}

// tokenRecord is the on-disk shape of a persisted token.
type tokenRecord struct {
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// FileTokenStore persists one JSON token file per provider under a base
// directory, with owner-only permissions.
type FileTokenStore struct {
	mu      sync.Mutex
	baseDir string
}

// NewFileTokenStore creates a store rooted at baseDir.
func NewFileTokenStore(baseDir string) *FileTokenStore {
	return &FileTokenStore{baseDir: strings.TrimSpace(baseDir)}
}

// Save persists the token result to <baseDir>/<provider>.json.
func (s *FileTokenStore) Save(ctx context.Context, result *provider.TokenResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("token store: result is nil")
	}
	if strings.TrimSpace(result.Provider) == "" {
		return "", fmt.Errorf("token store: result missing provider")
	}
	if s.baseDir == "" {
		return "", fmt.Errorf("token store: base directory not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.baseDir, 0o700); err != nil {
		return "", fmt.Errorf("token store: create dir failed: %w", err)
	}

	record := tokenRecord{
		Provider:     result.Provider,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Expiry:       result.Expiry,
		Email:        result.Email,
		Name:         result.Name,
		SavedAt:      time.Now(),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("token store: marshal failed: %w", err)
	}

	path := s.path(result.Provider)
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("token store: write failed: %w", err)
	}
	return path, nil
}

// Load reads a previously saved token for the provider. It returns os.ErrNotExist
// via the wrapped error when no token was saved.
func (s *FileTokenStore) Load(providerName string) (*provider.TokenResult, error) {
	canonical, err := provider.Normalize(providerName)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(canonical))
	if err != nil {
		return nil, fmt.Errorf("token store: read failed: %w", err)
	}
	var record tokenRecord
	if err = json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("token store: parse failed: %w", err)
	}
	return &provider.TokenResult{
		Provider:     record.Provider,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		Expiry:       record.Expiry,
		Email:        record.Email,
		Name:         record.Name,
	}, nil
}

// Delete removes the saved token for the provider. Deleting a missing token is
// not an error.
func (s *FileTokenStore) Delete(providerName string) error {
	canonical, err := provider.Normalize(providerName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = os.Remove(s.path(canonical)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("token store: delete failed: %w", err)
	}
	return nil
}

func (s *FileTokenStore) path(canonical string) string {
	return filepath.Join(s.baseDir, canonical+".json")
}
