package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func TestGoogleConsentURL(t *testing.T) {
	t.Parallel()

	google := NewGoogle("client-123", "secret")
	consent := google.ConsentURL("http://127.0.0.1:5151/callback", "state-tok")

	parsed, err := url.Parse(consent)
	if err != nil {
		t.Fatalf("consent URL does not parse: %v", err)
	}
	query := parsed.Query()
	if got := query.Get("state"); got != "state-tok" {
		t.Errorf("state = %q, want state-tok", got)
	}
	if got := query.Get("redirect_uri"); got != "http://127.0.0.1:5151/callback" {
		t.Errorf("redirect_uri = %q", got)
	}
	if got := query.Get("client_id"); got != "client-123" {
		t.Errorf("client_id = %q", got)
	}
	if got := query.Get("access_type"); got != "offline" {
		t.Errorf("access_type = %q, want offline", got)
	}
	if got := query.Get("prompt"); got != "consent" {
		t.Errorf("prompt = %q, want consent", got)
	}
}

func TestGoogleExchange(t *testing.T) {
	t.Parallel()

	var gotCode string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotCode = r.Form.Get("code")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","refresh_token":"ref-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-1") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"ada@example.com","name":"Ada"}`))
	}))
	defer userInfoServer.Close()

	google := NewGoogle("client-123", "secret")
	google.Endpoint = oauth2.Endpoint{AuthURL: tokenServer.URL + "/auth", TokenURL: tokenServer.URL + "/token"}
	google.UserInfoURL = userInfoServer.URL

	result, err := google.Exchange(context.Background(), "abc123", "http://127.0.0.1:5151/callback")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	if gotCode != "abc123" {
		t.Errorf("token endpoint received code %q, want abc123", gotCode)
	}
	if result.Provider != Google {
		t.Errorf("result.Provider = %q, want %q", result.Provider, Google)
	}
	if result.AccessToken != "tok-1" || result.RefreshToken != "ref-1" {
		t.Errorf("tokens = %q/%q, want tok-1/ref-1", result.AccessToken, result.RefreshToken)
	}
	if result.Email != "ada@example.com" || result.Name != "Ada" {
		t.Errorf("identity = %q/%q, want ada@example.com/Ada", result.Email, result.Name)
	}
}

func TestGoogleExchangeFailure(t *testing.T) {
	t.Parallel()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenServer.Close()

	google := NewGoogle("client-123", "secret")
	google.Endpoint = oauth2.Endpoint{AuthURL: tokenServer.URL + "/auth", TokenURL: tokenServer.URL + "/token"}

	if _, err := google.Exchange(context.Background(), "bad-code", "http://127.0.0.1:5151/callback"); err == nil {
		t.Fatal("Exchange() with rejected code succeeded, want error")
	}
}

func TestGoogleExchangeSucceedsWithoutUserInfo(t *testing.T) {
	t.Parallel()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-2","token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer userInfoServer.Close()

	google := NewGoogle("client-123", "secret")
	google.Endpoint = oauth2.Endpoint{AuthURL: tokenServer.URL + "/auth", TokenURL: tokenServer.URL + "/token"}
	google.UserInfoURL = userInfoServer.URL

	result, err := google.Exchange(context.Background(), "abc123", "http://127.0.0.1:5151/callback")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if result.AccessToken != "tok-2" {
		t.Errorf("AccessToken = %q, want tok-2", result.AccessToken)
	}
	if result.Email != "" || result.Name != "" {
		t.Errorf("identity = %q/%q, want empty on userinfo failure", result.Email, result.Name)
	}
}
