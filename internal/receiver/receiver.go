// Package receiver implements the short-lived loopback HTTP listener that
// captures the OAuth provider's redirect for a single login attempt. Each
// receiver accepts exactly one redirect, publishes it on the event bus, and
// shuts itself down.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/notwallet/walletauth/internal/events"
	log "github.com/sirupsen/logrus"
)

// CallbackPath is the path the provider redirects to on the loopback address.
const CallbackPath = "/callback"

// Payload carries the parameters captured from the inbound redirect. It is
// created by the receiver, handed to the event bus, and never retained by the
// receiver after delivery.
type Payload struct {
	// SessionID identifies the login attempt this receiver belongs to.
	SessionID string
	// Code is the authorization code received from the OAuth provider.
	Code string
	// State echoes the anti-forgery correlation token minted at session start.
	State string
	// Error contains the provider error code if the flow was denied.
	Error string
	// ErrorDescription is the provider's human-readable error detail.
	ErrorDescription string
	// Malformed marks a redirect that carried neither a code nor an error.
	// Such a redirect echoes no state, so consumers correlate it by SessionID.
	Malformed bool
}

// Error is published on events.TopicReceiverError when the listener fails or
// is torn down before a redirect arrives.
type Error struct {
	SessionID string
	Err       error
}

// Receiver owns one ephemeral loopback listener for a login attempt.
type Receiver struct {
	sessionID string
	bus       *events.Bus

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	running  bool

	// deliverOnce bounds the receiver to a single published event per
	// lifetime: either the first redirect or a teardown error.
	deliverOnce sync.Once
}

// New creates a receiver for the given session. Nothing is bound until Start.
func New(sessionID string, bus *events.Bus) *Receiver {
	return &Receiver{sessionID: sessionID, bus: bus}
}

// Start binds a listener on an ephemeral loopback port and begins serving the
// callback endpoint. The bound address is returned synchronously so the
// caller can construct the provider's redirect URI before opening the browser.
//
// Returns:
//   - string: The bound address in host:port form
//   - error: An error if no port could be allocated
func (r *Receiver) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return "", fmt.Errorf("redirect receiver already running")
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("bind loopback listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, r.handleCallback)

	r.listener = listener
	r.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	r.running = true

	go func(server *http.Server, listener net.Listener) {
		if errServe := server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			r.deliver(func() {
				r.bus.Publish(events.TopicReceiverError, &Error{SessionID: r.sessionID, Err: errServe})
			})
		}
	}(r.server, listener)

	addr := listener.Addr().String()
	log.WithFields(log.Fields{"session": r.sessionID, "addr": addr}).Debug("redirect receiver listening")
	return addr, nil
}

// Stop tears down the listener. It is idempotent. If no redirect was delivered
// before teardown, a receiver error is published so the coordinator can settle
// the attempt.
func (r *Receiver) Stop(ctx context.Context) error {
	r.mu.Lock()
	server := r.server
	running := r.running
	r.server = nil
	r.listener = nil
	r.running = false
	r.mu.Unlock()

	if !running || server == nil {
		return nil
	}

	r.deliver(func() {
		r.bus.Publish(events.TopicReceiverError, &Error{SessionID: r.sessionID, Err: errors.New("receiver stopped before redirect")})
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// handleCallback honors the first well-formed redirect: it parses the query
// parameters into a Payload, answers the browser with a short confirmation
// page, publishes the payload, and closes the listener. Later requests get a
// terse rejection; the listener never delivers twice.
func (r *Receiver) handleCallback(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := req.URL.Query()
	payload := &Payload{
		SessionID:        r.sessionID,
		Code:             strings.TrimSpace(query.Get("code")),
		State:            strings.TrimSpace(query.Get("state")),
		Error:            strings.TrimSpace(query.Get("error")),
		ErrorDescription: strings.TrimSpace(query.Get("error_description")),
	}

	// A redirect with neither a code nor an error code is malformed; it is
	// published as a failure payload rather than thrown across the event
	// boundary. The Error field stays empty so a provider that legitimately
	// uses any error code is never conflated with this case.
	if payload.Code == "" && payload.Error == "" {
		payload.Malformed = true
	}

	delivered := false
	r.deliver(func() {
		delivered = true
		r.bus.Publish(events.TopicRedirect, payload)
	})

	if !delivered {
		http.Error(w, "login attempt already completed", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(confirmationPage(payload.Error == "" && !payload.Malformed))); err != nil {
		log.Warnf("failed to write confirmation page: %v", err)
	}

	// First redirect accepted; close the listener so no second connection is
	// honored.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Stop(ctx); err != nil {
			log.Debugf("receiver shutdown after redirect: %v", err)
		}
	}()
}

// deliver runs fn at most once per receiver lifetime.
func (r *Receiver) deliver(fn func()) {
	r.deliverOnce.Do(fn)
}

func confirmationPage(ok bool) string {
	if ok {
		return `<html><body><h1>Login complete</h1><p>You can close this window and return to the wallet.</p></body></html>`
	}
	return `<html><body><h1>Login failed</h1><p>You can close this window and retry from the wallet.</p></body></html>`
}
