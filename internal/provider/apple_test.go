package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func appleIDToken(t *testing.T, claims string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(claims))
	return header + "." + payload + ".sig"
}

func TestAppleConsentURL(t *testing.T) {
	t.Parallel()

	apple := NewApple("app-id", "secret")
	consent := apple.ConsentURL("http://127.0.0.1:5151/callback", "state-tok")

	parsed, err := url.Parse(consent)
	if err != nil {
		t.Fatalf("consent URL does not parse: %v", err)
	}
	query := parsed.Query()
	if got := query.Get("state"); got != "state-tok" {
		t.Errorf("state = %q, want state-tok", got)
	}
	if got := query.Get("response_mode"); got != "query" {
		t.Errorf("response_mode = %q, want query", got)
	}
}

func TestAppleExchangeExtractsIdentityFromIDToken(t *testing.T) {
	t.Parallel()

	idToken := appleIDToken(t, `{"sub":"001234","email":"ada@example.com"}`)
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-a","token_type":"Bearer","id_token":"%s"}`, idToken)
	}))
	defer tokenServer.Close()

	apple := NewApple("app-id", "secret")
	apple.Endpoint = oauth2.Endpoint{AuthURL: tokenServer.URL + "/auth", TokenURL: tokenServer.URL + "/token"}

	result, err := apple.Exchange(context.Background(), "code-1", "http://127.0.0.1:5151/callback")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if result.Provider != Apple {
		t.Errorf("result.Provider = %q, want %q", result.Provider, Apple)
	}
	if result.AccessToken != "tok-a" {
		t.Errorf("AccessToken = %q, want tok-a", result.AccessToken)
	}
	if result.Email != "ada@example.com" {
		t.Errorf("Email = %q, want ada@example.com", result.Email)
	}
}

func TestDecodeJWTClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"well-formed", "aGVhZGVy.eyJlbWFpbCI6ImFAYi5jIn0.c2ln", false},
		{"two segments", "aGVhZGVy.eyJ9", true},
		{"invalid base64 payload", "h.!!!.s", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := decodeJWTClaims(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("decodeJWTClaims(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
		})
	}
}
