package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// Apple Sign In endpoints.
var AppleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

// AppleProvider implements Sign in with Apple. Apple reports the subject
// identity inside the ID token rather than through a userinfo endpoint.
type AppleProvider struct {
	ClientID     string
	ClientSecret string

	// Endpoint defaults to Apple's production endpoints; tests override it.
	Endpoint oauth2.Endpoint
}

// NewApple constructs an Apple provider with production endpoints.
func NewApple(clientID, clientSecret string) *AppleProvider {
	return &AppleProvider{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     AppleEndpoint,
	}
}

func (a *AppleProvider) Name() string {
	return Apple
}

func (a *AppleProvider) ConsentURL(redirectURI, state string) string {
	conf := a.config(redirectURI)
	return conf.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "query"))
}

// Exchange trades the authorization code for tokens and pulls the subject's
// email out of the ID token claims.
func (a *AppleProvider) Exchange(ctx context.Context, code, redirectURI string) (*TokenResult, error) {
	conf := a.config(redirectURI)

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("apple token exchange failed: %w", err)
	}

	result := &TokenResult{
		Provider:     Apple,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}

	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		if claims, errClaims := decodeJWTClaims(idToken); errClaims == nil {
			result.Email = gjson.GetBytes(claims, "email").String()
			if result.Name == "" {
				result.Name = gjson.GetBytes(claims, "name").String()
			}
		}
	}

	return result, nil
}

func (a *AppleProvider) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"name", "email"},
		Endpoint:     a.Endpoint,
	}
}

// decodeJWTClaims returns the raw JSON claims segment of a JWT without
// verifying the signature. Verification is the authorization server's side of
// the exchange; the claims here only seed the display identity.
func decodeJWTClaims(token string) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed JWT: expected 3 segments, got %d", len(parts))
	}
	claims, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode JWT claims: %w", err)
	}
	return claims, nil
}
