// Package misc holds small helpers shared across the login flow: correlation
// token minting and lenient parsing of pasted callback URLs.
package misc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// GenerateRandomState mints the per-attempt correlation token: 16 random
// bytes, hex encoded. A redirect whose state parameter does not echo it is
// rejected or ignored.
func GenerateRandomState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// OAuthCallback captures the parsed OAuth callback parameters.
type OAuthCallback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseOAuthCallback extracts OAuth parameters from a pasted callback. The
// manual fallback accepts whatever the user copied from the address bar: a
// full URL, a bare query string, or key=value pairs without a scheme. It
// returns nil when the input is empty so the caller can keep waiting.
func ParseOAuthCallback(input string) (*OAuthCallback, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		switch {
		case strings.HasPrefix(candidate, "?"):
			candidate = "http://localhost" + candidate
		case strings.ContainsAny(candidate, "/?#") || strings.Contains(candidate, ":"):
			candidate = "http://" + candidate
		case strings.Contains(candidate, "="):
			candidate = "http://localhost/?" + candidate
		default:
			return nil, fmt.Errorf("invalid callback URL")
		}
	}

	parsedURL, err := url.Parse(candidate)
	if err != nil {
		return nil, err
	}

	query := parsedURL.Query()
	callback := &OAuthCallback{
		Code:             strings.TrimSpace(query.Get("code")),
		State:            strings.TrimSpace(query.Get("state")),
		Error:            strings.TrimSpace(query.Get("error")),
		ErrorDescription: strings.TrimSpace(query.Get("error_description")),
	}

	// Some providers deliver the response in the URL fragment; the address
	// bar keeps it, so a paste may carry the parameters there instead.
	if parsedURL.Fragment != "" {
		if fragQuery, errFrag := url.ParseQuery(parsedURL.Fragment); errFrag == nil {
			if callback.Code == "" {
				callback.Code = strings.TrimSpace(fragQuery.Get("code"))
			}
			if callback.State == "" {
				callback.State = strings.TrimSpace(fragQuery.Get("state"))
			}
			if callback.Error == "" {
				callback.Error = strings.TrimSpace(fragQuery.Get("error"))
			}
			if callback.ErrorDescription == "" {
				callback.ErrorDescription = strings.TrimSpace(fragQuery.Get("error_description"))
			}
		}
	}

	// A description without an error code still identifies a denial.
	if callback.Error == "" && callback.ErrorDescription != "" {
		callback.Error = callback.ErrorDescription
		callback.ErrorDescription = ""
	}

	if callback.Code == "" && callback.Error == "" {
		return nil, fmt.Errorf("callback URL missing code")
	}

	return callback, nil
}
