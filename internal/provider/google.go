package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultGoogleUserInfoURL is the endpoint used to resolve the subject
// identity after a successful exchange.
const DefaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo?alt=json"

// GoogleScopes requested during the consent flow.
var GoogleScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// GoogleProvider implements the Google consent and token-exchange flow.
type GoogleProvider struct {
	// ClientID and ClientSecret come from the application configuration.
	ClientID     string
	ClientSecret string

	// Endpoint and UserInfoURL default to Google's production endpoints;
	// tests point them at local servers.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// NewGoogle constructs a Google provider with production endpoints.
func NewGoogle(clientID, clientSecret string) *GoogleProvider {
	return &GoogleProvider{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		UserInfoURL:  DefaultGoogleUserInfoURL,
	}
}

func (g *GoogleProvider) Name() string {
	return Google
}

// ConsentURL builds the authorization URL with offline access so a refresh
// token is issued on first consent.
func (g *GoogleProvider) ConsentURL(redirectURI, state string) string {
	conf := g.config(redirectURI)
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades the authorization code for tokens and fetches the subject's
// email and display name from the userinfo endpoint.
func (g *GoogleProvider) Exchange(ctx context.Context, code, redirectURI string) (*TokenResult, error) {
	conf := g.config(redirectURI)

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google token exchange failed: %w", err)
	}

	result := &TokenResult{
		Provider:     Google,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}

	email, name, err := g.fetchUserInfo(ctx, conf, token)
	if err != nil {
		// Identity resolution is best-effort: the exchange itself
		// succeeded, so the attempt still counts as a login.
		return result, nil
	}
	result.Email = email
	result.Name = name
	return result, nil
}

func (g *GoogleProvider) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       GoogleScopes,
		Endpoint:     g.Endpoint,
	}
}

func (g *GoogleProvider) fetchUserInfo(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (email, name string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserInfoURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := conf.Client(ctx, token).Do(req)
	if err != nil {
		return "", "", fmt.Errorf("userinfo request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read userinfo response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("userinfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return gjson.GetBytes(body, "email").String(), gjson.GetBytes(body, "name").String(), nil
}
