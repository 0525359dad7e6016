// Package flow drives a third-party login attempt end-to-end: it opens the
// session, stands up the redirect receiver, hands the user to the browser,
// correlates the asynchronously delivered redirect with the attempt that
// started it, exchanges the code for tokens, and publishes a single terminal
// outcome. At most one attempt is ever in flight.
package flow

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuthError represents a provider-side OAuth error, such as a consent denial
// delivered through the redirect's error parameter.
type OAuthError struct {
	// Code is the OAuth error code.
	Code string `json:"error"`
	// Description is a human-readable description of the error.
	Description string `json:"error_description,omitempty"`
	// StatusCode is the HTTP status code associated with the error.
	StatusCode int `json:"-"`
}

// Error returns a string representation of the OAuth error.
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("OAuth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("OAuth error: %s", e.Code)
}

// NewOAuthError creates a new OAuth error with the specified code, description, and status code.
func NewOAuthError(code, description string, statusCode int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		StatusCode:  statusCode,
	}
}

// AuthenticationError represents a locally detected failure of a login attempt.
type AuthenticationError struct {
	// Type is the type of authentication error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP-ish status code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Base authentication errors. Each terminal failure of an attempt maps onto
// exactly one of these.
var (
	// ErrFlowBusy rejects a login started while another attempt is pending.
	ErrFlowBusy = &AuthenticationError{
		Type:    "flow_busy",
		Message: "Another login attempt is already in progress",
		Code:    http.StatusConflict,
	}

	// ErrBindFailed means no loopback port could be allocated for the receiver.
	ErrBindFailed = &AuthenticationError{
		Type:    "bind_failed",
		Message: "Failed to start the local redirect receiver",
		Code:    http.StatusInternalServerError,
	}

	// ErrReceiverFailed means the receiver's listener died before a redirect arrived.
	ErrReceiverFailed = &AuthenticationError{
		Type:    "receiver_failed",
		Message: "The local redirect receiver failed",
		Code:    http.StatusInternalServerError,
	}

	// ErrMalformedRedirect means the redirect carried neither a code nor an error.
	ErrMalformedRedirect = &AuthenticationError{
		Type:    "malformed_redirect",
		Message: "The provider redirect was missing required parameters",
		Code:    http.StatusBadRequest,
	}

	// ErrInvalidState means a manually supplied callback did not echo the attempt's state.
	ErrInvalidState = &AuthenticationError{
		Type:    "invalid_state",
		Message: "OAuth state parameter is invalid",
		Code:    http.StatusBadRequest,
	}

	// ErrCodeExchangeFailed means trading the authorization code for tokens failed.
	ErrCodeExchangeFailed = &AuthenticationError{
		Type:    "code_exchange_failed",
		Message: "Failed to exchange authorization code for tokens",
		Code:    http.StatusBadRequest,
	}

	// ErrCallbackTimeout means no valid redirect arrived before the deadline.
	ErrCallbackTimeout = &AuthenticationError{
		Type:    "callback_timeout",
		Message: "Timeout waiting for the login redirect",
		Code:    http.StatusRequestTimeout,
	}

	// ErrAttemptCancelled means the attempt was cancelled explicitly or by context.
	ErrAttemptCancelled = &AuthenticationError{
		Type:    "attempt_cancelled",
		Message: "The login attempt was cancelled",
		Code:    http.StatusRequestTimeout,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// IsOAuthError checks if an error is an OAuth error.
func IsOAuthError(err error) bool {
	var oauthErr *OAuthError
	return errors.As(err, &oauthErr)
}

// ErrorType returns the taxonomy type of an attempt failure, or the empty
// string when err is not one of the typed errors.
func ErrorType(err error) string {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr.Type
	}
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return "provider_denied"
	}
	return ""
}

// GetUserFriendlyMessage returns a user-facing message for a failed attempt.
// The caller surfaces it; the coordinator itself performs no retries.
func GetUserFriendlyMessage(err error) string {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		switch authErr.Type {
		case ErrFlowBusy.Type:
			return "A login is already in progress. Finish or cancel it before starting another."
		case ErrBindFailed.Type, ErrReceiverFailed.Type:
			return "Could not start the local login listener. Please try again."
		case ErrCallbackTimeout.Type:
			return "Login timed out. Please try again."
		case ErrAttemptCancelled.Type:
			return "Login was cancelled."
		case ErrInvalidState.Type, ErrMalformedRedirect.Type:
			return "The login response was invalid. Please try again."
		case ErrCodeExchangeFailed.Type:
			return "Could not complete the login with the provider. Please try again."
		default:
			return "Login failed. Please try again."
		}
	}

	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		switch oauthErr.Code {
		case "access_denied":
			return "Login was cancelled or denied."
		case "server_error":
			return "The login provider reported an error. Please try again later."
		default:
			return fmt.Sprintf("Login failed: %s", oauthErr.Code)
		}
	}

	return "An unexpected error occurred. Please try again."
}
