package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/notwallet/walletauth/internal/browser"
	"github.com/notwallet/walletauth/internal/events"
	"github.com/notwallet/walletauth/internal/misc"
	"github.com/notwallet/walletauth/internal/provider"
	"github.com/notwallet/walletauth/internal/receiver"
	"github.com/notwallet/walletauth/internal/state"
	"github.com/notwallet/walletauth/internal/store"
	log "github.com/sirupsen/logrus"
)

// DefaultCallbackTimeout bounds how long an attempt waits for the provider
// redirect before it is cancelled.
const DefaultCallbackTimeout = 5 * time.Minute

// manualPromptDelay is how long the coordinator waits before offering the
// manual paste fallback when a prompt function is configured.
const manualPromptDelay = 15 * time.Second

// Options configures a Coordinator.
type Options struct {
	// Timeout overrides DefaultCallbackTimeout when > 0.
	Timeout time.Duration

	// NoBrowser skips opening the browser; the consent URL is only logged.
	NoBrowser bool

	// OpenBrowser overrides the browser hand-off; defaults to browser.OpenURL.
	OpenBrowser func(url string) error

	// Prompt, when set, lets the user paste the callback URL manually if the
	// loopback redirect cannot reach the receiver.
	Prompt func(prompt string) (string, error)

	// Store receives the token after a successful exchange. Optional; a save
	// failure is logged and does not fail the attempt.
	Store store.TokenStore
}

// Coordinator drives login attempts and guarantees the single-flight
// invariant: at most one session is in a non-terminal state at any instant.
type Coordinator struct {
	bus      *events.Bus
	registry *provider.Registry
	auth     *state.AuthState
	opts     Options

	mu     sync.Mutex
	active *Session
}

// New constructs a coordinator over the given bus, provider registry, and
// auth state.
func New(bus *events.Bus, registry *provider.Registry, auth *state.AuthState, opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCallbackTimeout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = defaultOpenBrowser
	}
	return &Coordinator{
		bus:      bus,
		registry: registry,
		auth:     auth,
		opts:     opts,
	}
}

// Active returns the in-flight session, or nil when the coordinator is idle.
func (c *Coordinator) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.Terminal() {
		return nil
	}
	return c.active
}

// Cancel cancels the active attempt. It is idempotent and a no-op when there
// is no pending attempt or the attempt already reached a terminal state.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()
	if sess == nil || sess.Terminal() {
		return
	}
	log.WithField("session", sess.ID).Info("cancelling login attempt")
	sess.cancel()
}

// StartLogin runs one login attempt end-to-end and returns its single
// terminal outcome. A second call while an attempt is pending fails with
// ErrFlowBusy and leaves the first attempt untouched; retry after a failure is
// a new, distinct attempt. On success the auth state has been updated and the
// token handed to the store; on any failure the auth state is unchanged. The
// redirect receiver and the event bus subscription are always released by the
// time StartLogin returns.
func (c *Coordinator) StartLogin(ctx context.Context, providerName string) (*provider.TokenResult, error) {
	prov, err := c.registry.Lookup(providerName)
	if err != nil {
		return nil, err
	}

	sess, err := c.open(prov.Name())
	if err != nil {
		return nil, err
	}
	defer c.close(sess)

	return c.run(ctx, sess, prov)
}

// open creates the attempt's session, enforcing single-flight.
func (c *Coordinator) open(providerName string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && !c.active.Terminal() {
		return nil, NewAuthenticationError(ErrFlowBusy,
			fmt.Errorf("attempt %s is still %s", c.active.ID, c.active.Status()))
	}

	sess, err := newSession(providerName, c.opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("mint correlation token: %w", err)
	}
	c.active = sess
	return sess, nil
}

// close retires the attempt once it has settled.
func (c *Coordinator) close(sess *Session) {
	c.mu.Lock()
	if c.active == sess {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Coordinator) run(ctx context.Context, sess *Session, prov provider.Provider) (*provider.TokenResult, error) {
	recv := receiver.New(sess.ID, c.bus)
	addr, err := recv.Start()
	if err != nil {
		sess.setStatus(StatusFailed)
		return nil, NewAuthenticationError(ErrBindFailed, err)
	}
	sess.RedirectURI = "http://" + addr + receiver.CallbackPath

	// Route this session's redirect to the wait loop. Payloads whose state
	// does not echo the session's correlation token are discarded here: a
	// stale or forged redirect must never advance the attempt.
	resultCh := make(chan *receiver.Payload, 1)
	recvErrCh := make(chan error, 1)

	sub := c.bus.Subscribe(events.TopicRedirect, func(payload any) {
		p, ok := payload.(*receiver.Payload)
		if !ok {
			return
		}
		// A malformed redirect echoes no state to correlate on. The receiver
		// is per-session, so its SessionID identifies the attempt instead;
		// a malformed payload from any other session is ignored.
		if p.Malformed {
			if p.SessionID != sess.ID {
				return
			}
		} else if p.State != sess.State {
			log.WithFields(log.Fields{"session": sess.ID, "state": p.State}).
				Warn("discarding redirect with foreign or stale state")
			return
		}
		select {
		case resultCh <- p:
		default:
		}
	})
	errSub := c.bus.Subscribe(events.TopicReceiverError, func(payload any) {
		recvErr, ok := payload.(*receiver.Error)
		if !ok || recvErr.SessionID != sess.ID {
			return
		}
		select {
		case recvErrCh <- recvErr.Err:
		default:
		}
	})

	// Unsubscribing before stopping the receiver keeps its own teardown
	// event from reaching this attempt.
	defer func() {
		sub.Unsubscribe()
		errSub.Unsubscribe()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stopErr := recv.Stop(stopCtx); stopErr != nil {
			log.Warnf("redirect receiver stop error: %v", stopErr)
		}
	}()

	consentURL := prov.ConsentURL(sess.RedirectURI, sess.State)
	sess.setStatus(StatusAwaitingRedirect)
	c.openConsentPage(consentURL)

	payload, err := c.awaitRedirect(ctx, sess, resultCh, recvErrCh)
	if err != nil {
		return nil, err
	}

	return c.exchange(ctx, sess, prov, payload)
}

// openConsentPage hands the user to the external browser. The hand-off is
// fire-and-forget: failure to open a browser is logged and the URL printed,
// since the user may still complete the flow manually.
func (c *Coordinator) openConsentPage(consentURL string) {
	if c.opts.NoBrowser {
		fmt.Printf("Visit the following URL to continue the login:\n%s\n", consentURL)
		return
	}
	if err := c.opts.OpenBrowser(consentURL); err != nil {
		log.Warnf("failed to open browser automatically: %v", err)
		fmt.Printf("Visit the following URL to continue the login:\n%s\n", consentURL)
	}
}

func defaultOpenBrowser(consentURL string) error {
	if !browser.IsAvailable() {
		return fmt.Errorf("no browser available on this system")
	}
	return browser.OpenURL(consentURL)
}

// awaitRedirect blocks until this session's redirect payload arrives, the
// deadline passes, or the attempt is cancelled.
func (c *Coordinator) awaitRedirect(ctx context.Context, sess *Session, resultCh <-chan *receiver.Payload, recvErrCh <-chan error) (*receiver.Payload, error) {
	deadline := time.NewTimer(time.Until(sess.Deadline))
	defer deadline.Stop()

	var manualPromptC <-chan time.Time
	if c.opts.Prompt != nil {
		manualTimer := time.NewTimer(manualPromptDelay)
		defer manualTimer.Stop()
		manualPromptC = manualTimer.C
	}

	for {
		select {
		case payload := <-resultCh:
			return c.settlePayload(sess, payload)
		case recvErr := <-recvErrCh:
			sess.setStatus(StatusFailed)
			return nil, NewAuthenticationError(ErrReceiverFailed, recvErr)
		case <-sess.Done():
			sess.setStatus(StatusCancelled)
			return nil, NewAuthenticationError(ErrAttemptCancelled, errors.New("cancelled while awaiting redirect"))
		case <-ctx.Done():
			sess.cancel()
			sess.setStatus(StatusCancelled)
			return nil, NewAuthenticationError(ErrAttemptCancelled, ctx.Err())
		case <-deadline.C:
			sess.setStatus(StatusCancelled)
			return nil, NewAuthenticationError(ErrCallbackTimeout,
				fmt.Errorf("no redirect within %s", sess.Deadline.Sub(sess.CreatedAt)))
		case <-manualPromptC:
			manualPromptC = nil
			payload, done, errManual := c.promptManualCallback(sess)
			if errManual != nil {
				sess.setStatus(StatusFailed)
				return nil, errManual
			}
			if done {
				return c.settlePayload(sess, payload)
			}
		}
	}
}

func (c *Coordinator) settlePayload(sess *Session, payload *receiver.Payload) (*receiver.Payload, error) {
	if payload.Malformed {
		sess.setStatus(StatusFailed)
		return nil, NewAuthenticationError(ErrMalformedRedirect, errors.New("redirect carried neither code nor error"))
	}
	if payload.Error != "" {
		// A provider-side denial resolves the attempt as failed without
		// attempting token exchange.
		sess.setStatus(StatusFailed)
		return nil, NewOAuthError(payload.Error, payload.ErrorDescription, http.StatusBadRequest)
	}
	return payload, nil
}

// promptManualCallback asks the user to paste the callback URL. An empty paste
// keeps waiting; a pasted URL is subject to the same correlation check as a
// received redirect.
func (c *Coordinator) promptManualCallback(sess *Session) (*receiver.Payload, bool, error) {
	input, err := c.opts.Prompt("Paste the callback URL (or press Enter to keep waiting): ")
	if err != nil {
		return nil, false, err
	}
	parsed, err := misc.ParseOAuthCallback(input)
	if err != nil {
		return nil, false, err
	}
	if parsed == nil {
		return nil, false, nil
	}
	// The correlation check applies to error-carrying pastes as well: a
	// denial copied from an earlier attempt must not resolve this one.
	if parsed.State != sess.State {
		return nil, false, NewAuthenticationError(ErrInvalidState, errors.New("pasted callback state does not match this attempt"))
	}
	return &receiver.Payload{
		SessionID:        sess.ID,
		Code:             parsed.Code,
		State:            parsed.State,
		Error:            parsed.Error,
		ErrorDescription: parsed.ErrorDescription,
	}, true, nil
}

// exchange trades the authorization code for tokens, updates the auth state
// exactly once on success, and hands the token off to the store.
func (c *Coordinator) exchange(ctx context.Context, sess *Session, prov provider.Provider, payload *receiver.Payload) (*provider.TokenResult, error) {
	sess.setStatus(StatusExchanging)
	log.WithFields(log.Fields{"session": sess.ID, "provider": sess.Provider}).
		Debug("authorization code received; exchanging for tokens")

	result, err := prov.Exchange(ctx, payload.Code, sess.RedirectURI)
	if err != nil {
		sess.setStatus(StatusFailed)
		return nil, NewAuthenticationError(ErrCodeExchangeFailed, err)
	}

	// Cancellation does not abort an in-flight exchange; it completes and
	// its result is discarded here.
	select {
	case <-sess.Done():
		sess.setStatus(StatusCancelled)
		return nil, NewAuthenticationError(ErrAttemptCancelled, errors.New("cancelled during token exchange"))
	default:
	}

	sess.setStatus(StatusSucceeded)
	c.auth.SetLoggedIn(state.Identity{
		Provider:    result.Provider,
		Name:        result.Name,
		Email:       result.Email,
		AccessToken: result.AccessToken,
	})

	if c.opts.Store != nil {
		if path, errSave := c.opts.Store.Save(ctx, result); errSave != nil {
			log.Warnf("token handoff to store failed: %v", errSave)
		} else {
			log.WithField("provider", result.Provider).Debugf("token saved to %s", path)
		}
	}

	return result, nil
}
