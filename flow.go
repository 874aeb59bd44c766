package deskauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/cli/browser"

	"github.com/mfeller/deskauth/pkce"
)

// State is the flow controller's observable position in its state machine.
type State int

const (
	StateIdle State = iota
	StateAuthorizationRequested
	StateAwaitingCallback
	StateExchangingCode
	StateSessionEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthorizationRequested:
		return "authorization_requested"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateExchangingCode:
		return "exchanging_code"
	case StateSessionEstablished:
		return "session_established"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrStateMismatch means the provider returned a state parameter that
	// does not match the one this flow issued. That pattern is consistent
	// with authorization-response injection, so the flow aborts without
	// contacting the token endpoint.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrNoFlowInFlight means a code callback arrived with no stored
	// PKCE session to exchange it with.
	ErrNoFlowInFlight = errors.New("no sign-in flow in flight")

	// ErrMissingIDToken means the provider's token response lacked an
	// id_token; the flow treats this the same as an exchange failure.
	ErrMissingIDToken = errors.New("token response missing id_token")
)

// ProviderError is an error the identity provider reported on the callback,
// e.g. access_denied.
type ProviderError struct {
	Reason string
}

func (e *ProviderError) Error() string {
	return "authorization failed: " + e.Reason
}

// SessionBridge converts an identity token into a downstream platform
// session. Implemented by bridge.Client.
type SessionBridge interface {
	EstablishToken(ctx context.Context, idToken string) (accessToken string, err error)
}

// Result is the terminal outcome of one sign-in flow.
type Result struct {
	// Tokens holds the identity provider tokens. Nil when Err is set.
	Tokens *TokenSet
	// SessionID is the provider-created session id, when the callback
	// carried one.
	SessionID string
	// BridgedToken is the downstream session's access token when a
	// SessionBridge is configured.
	BridgedToken string
	// Err is the terminal failure, nil on success.
	Err error
}

// pkceSession is the single ephemeral PKCE/state session. Volatile memory
// only; never written to disk.
type pkceSession struct {
	verifier    string
	state       string
	redirectURI string
}

// Flow orchestrates one Authorization-Code-with-PKCE sign-in: build the
// authorize URL, open the external browser, await the deep-link callback,
// validate state, exchange the code, and emit the result.
//
// At most one flow is in flight: BeginSignIn overwrites any prior ephemeral
// session, and callback handling is serialized so a second callback arriving
// mid-exchange never starts a second exchange.
type Flow struct {
	cfg       *Config
	exchanger Exchanger
	bridge    SessionBridge
	logger    *slog.Logger

	openURL        func(url string) error
	onOpenFallback func(url string)
	onResult       func(Result)
	results        chan Result
	httpClient     *http.Client

	mu      sync.Mutex
	state   State
	session *pkceSession
	busy    bool // an exchange is in progress
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithExchanger replaces the default oauth2-backed token exchange client.
func WithExchanger(e Exchanger) FlowOption {
	return func(f *Flow) { f.exchanger = e }
}

// WithBridge sets the downstream session bridge invoked after a token is
// obtained. Without one, results carry the identity tokens only.
func WithBridge(b SessionBridge) FlowOption {
	return func(f *Flow) { f.bridge = b }
}

// WithFlowLogger sets the diagnostics logger.
func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) { f.logger = logger }
}

// WithBrowserOpen sets the function used to open the authorize URL in the
// system browser. Useful for testing or environments without a browser.
func WithBrowserOpen(fn func(url string) error) FlowOption {
	return func(f *Flow) { f.openURL = fn }
}

// WithOpenFallback sets the hook invoked with the authorize URL when the
// browser opener fails; the host surfaces the URL to the user (clipboard,
// dialog). Opener failure is a warning, never a flow failure.
func WithOpenFallback(fn func(url string)) FlowOption {
	return func(f *Flow) { f.onOpenFallback = fn }
}

// WithResultHandler sets a callback invoked with each terminal Result, in
// addition to the Results channel.
func WithResultHandler(fn func(Result)) FlowOption {
	return func(f *Flow) { f.onResult = fn }
}

// WithHTTPClient sets the HTTP client for the default exchanger.
func WithHTTPClient(client *http.Client) FlowOption {
	return func(f *Flow) { f.httpClient = client }
}

// NewFlow creates a Flow for the given configuration.
func NewFlow(cfg *Config, opts ...FlowOption) *Flow {
	f := &Flow{
		cfg:     cfg,
		logger:  slog.Default(),
		openURL: browser.OpenURL,
		results: make(chan Result, 4),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.exchanger == nil && cfg != nil {
		f.exchanger = NewExchanger(cfg.TokenEndpoint(), cfg.ClientID, f.httpClient)
	}
	return f
}

// State returns the flow's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Results delivers terminal flow outcomes. The channel is buffered; if no
// one is draining it, older results are dropped in favor of newer ones.
func (f *Flow) Results() <-chan Result {
	return f.results
}

// BeginSignIn starts a sign-in flow. Any previous ephemeral PKCE session is
// overwritten: only one flow may be in flight. The flow then stays in
// AwaitingCallback until a deep-link callback arrives or the user abandons
// it; there is no controller-side timeout.
func (f *Flow) BeginSignIn(ctx context.Context, redirectURI string) error {
	if err := f.cfg.Validate(); err != nil {
		return err
	}
	if redirectURI == "" {
		redirectURI = f.cfg.RedirectURI
	}
	if redirectURI == "" {
		return fmt.Errorf("%w: redirect_uri", ErrConfigMissing)
	}

	pair, err := pkce.NewPair()
	if err != nil {
		return err
	}
	state, err := randomState()
	if err != nil {
		return fmt.Errorf("generate state: %w", err)
	}

	f.mu.Lock()
	f.session = &pkceSession{verifier: pair.Verifier, state: state, redirectURI: redirectURI}
	f.state = StateAuthorizationRequested
	f.mu.Unlock()

	authorizeURL := f.buildAuthorizeURL(pair, state, redirectURI)

	f.logger.Info("opening hosted sign-in", "redirect_uri", redirectURI)
	if err := f.openURL(authorizeURL); err != nil {
		f.logger.Warn("could not open external browser, surfacing URL to user", "error", err)
		if f.onOpenFallback != nil {
			f.onOpenFallback(authorizeURL)
		}
	}

	f.mu.Lock()
	f.state = StateAwaitingCallback
	f.mu.Unlock()
	return nil
}

// buildAuthorizeURL assembles the browser-navigated authorize request.
func (f *Flow) buildAuthorizeURL(pair pkce.Pair, state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", f.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("code_challenge_method", pair.Method)
	q.Set("code_challenge", pair.Challenge)
	q.Set("scope", "openid")
	q.Set("state", state)
	return f.cfg.authorizeEndpoint() + "?" + q.Encode()
}

// OnCallback handles a deep-link authorization response. It is safe to wire
// directly to a deeplink.Dispatcher listener; URIs that do not address the
// auth callback surface are ignored.
func (f *Flow) OnCallback(ctx context.Context, rawURL string) error {
	if !isAuthCallback(rawURL) {
		f.logger.Debug("ignoring non-auth deep link")
		return nil
	}
	cb, err := ParseCallback(rawURL)
	if err != nil {
		f.logger.Warn("unparseable auth callback", "error", err)
		return err
	}

	switch cb.Kind {
	case CallbackError:
		f.mu.Lock()
		f.session = nil
		f.mu.Unlock()
		perr := &ProviderError{Reason: cb.ErrorMsg}
		f.logger.Error("authorization callback reported error", "reason", cb.ErrorMsg)
		f.emit(Result{Err: perr})
		return perr

	case CallbackToken:
		// Direct identity token: no exchange needed.
		f.mu.Lock()
		f.session = nil
		f.mu.Unlock()
		f.logger.Info("callback carried direct identity token", "session_id", cb.SessionID)
		return f.finish(ctx, &TokenSet{IDToken: cb.Token}, cb.SessionID)

	case CallbackCode:
		return f.exchangeCode(ctx, cb)

	default:
		f.logger.Warn("auth callback carried no token, code, or error")
		return nil
	}
}

// exchangeCode runs steps 4-7 of the callback handling: state validation,
// code exchange, and session cleanup. The ephemeral session is single-use
// and is consumed here regardless of outcome.
func (f *Flow) exchangeCode(ctx context.Context, cb Callback) error {
	f.mu.Lock()
	if f.busy {
		// A second callback raced an in-flight exchange; never start a
		// second one.
		f.mu.Unlock()
		f.logger.Warn("ignoring concurrent auth callback: exchange already in progress")
		return nil
	}
	sess := f.session
	if sess == nil {
		f.mu.Unlock()
		f.logger.Error("code callback with no flow in flight")
		f.emit(Result{Err: ErrNoFlowInFlight})
		return ErrNoFlowInFlight
	}
	// The provider may omit state in some configurations; validation is
	// mandatory only when it supplied one.
	if cb.State != "" && cb.State != sess.state {
		f.session = nil
		f.mu.Unlock()
		f.logger.Error("state mismatch on auth callback, aborting without exchange")
		f.emit(Result{Err: ErrStateMismatch})
		return ErrStateMismatch
	}
	f.session = nil // single-use
	f.busy = true
	f.state = StateExchangingCode
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
	}()

	tokens, err := f.exchanger.Exchange(ctx, cb.Code, sess.verifier, sess.redirectURI)
	if err != nil {
		f.logger.Error("token exchange failed", "error", err)
		f.emit(Result{Err: err})
		return err
	}
	if tokens.IDToken == "" {
		f.logger.Error("token response had no id_token")
		f.emit(Result{Err: ErrMissingIDToken})
		return ErrMissingIDToken
	}
	return f.finish(ctx, tokens, cb.SessionID)
}

// finish bridges the identity token downstream (when configured) and emits
// the terminal result.
func (f *Flow) finish(ctx context.Context, tokens *TokenSet, sessionID string) error {
	res := Result{Tokens: tokens, SessionID: sessionID}
	if f.bridge != nil {
		bridged, err := f.bridge.EstablishToken(ctx, tokens.IDToken)
		if err != nil {
			f.logger.Error("session bridge failed", "error", err)
			f.emit(Result{Err: err})
			return err
		}
		res.BridgedToken = bridged
	}
	f.logger.Info("session established")
	f.emit(res)
	return nil
}

// emit publishes a terminal result and returns the flow to Idle.
func (f *Flow) emit(res Result) {
	f.mu.Lock()
	if res.Err != nil {
		f.state = StateFailed
	} else {
		f.state = StateSessionEstablished
	}
	f.mu.Unlock()

	if f.onResult != nil {
		f.onResult(res)
	}
	delivered := false
	for !delivered {
		select {
		case f.results <- res:
			delivered = true
		default:
			// Drop the oldest undelivered result.
			select {
			case <-f.results:
			default:
			}
		}
	}

	f.mu.Lock()
	f.state = StateIdle
	f.mu.Unlock()
}

// randomState generates the 16-byte hex state parameter.
func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
