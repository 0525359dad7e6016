// Package provider models the closed set of third-party login providers the
// wallet supports. Each provider knows how to build its consent URL and how to
// exchange an authorization code for tokens; adding a provider is additive and
// never touches the coordinator.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Canonical provider names.
const (
	Google = "google"
	Apple  = "apple"
)

// ErrUnsupportedProvider is returned for provider names outside the closed set.
var ErrUnsupportedProvider = errors.New("unsupported login provider")

// TokenResult is produced once per successful login attempt by the token
// exchange. The coordinator forwards it to the auth state and the token store
// and retains nothing.
type TokenResult struct {
	// Provider is the canonical name of the provider that issued the token.
	Provider string `json:"provider"`
	// AccessToken is the bearer token obtained by the exchange.
	AccessToken string `json:"access_token"`
	// RefreshToken is present when the provider grants offline access.
	RefreshToken string `json:"refresh_token,omitempty"`
	// Expiry is the access token expiry time, zero when unknown.
	Expiry time.Time `json:"expiry,omitempty"`
	// Email is the subject's email address, when reported.
	Email string `json:"email,omitempty"`
	// Name is the subject's display name, when reported.
	Name string `json:"name,omitempty"`
}

// Provider drives the provider-specific halves of the login flow.
type Provider interface {
	// Name returns the canonical provider name.
	Name() string
	// ConsentURL builds the browser consent URL embedding the loopback
	// redirect URI and the anti-forgery state parameter.
	ConsentURL(redirectURI, state string) string
	// Exchange trades the authorization code for tokens and resolves the
	// subject identity.
	Exchange(ctx context.Context, code, redirectURI string) (*TokenResult, error)
}

// Normalize maps user-facing provider spellings onto canonical names.
func Normalize(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "google", "gmail":
		return Google, nil
	case "apple", "icloud":
		return Apple, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
}

// Registry is the closed lookup table of configured providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry constructs a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	reg := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		reg.Register(p)
	}
	return reg
}

// Register adds or replaces a provider keyed by its canonical name.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// Lookup resolves a (possibly non-canonical) provider name.
func (r *Registry) Lookup(name string) (Provider, error) {
	canonical, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	p, ok := r.providers[canonical]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", ErrUnsupportedProvider, canonical)
	}
	return p, nil
}
