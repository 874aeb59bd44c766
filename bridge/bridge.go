// Package bridge converts an upstream identity token into a session on the
// downstream data platform, and tears that session down on sign-out.
//
// Two strategies exist: token-exchange sign-in (the platform mints its own
// session from the identity token) and direct install (the raw token is used
// as the session credential). The order is explicit and configurable; each
// attempt is logged distinctly so operators can tell which path succeeded.
// Whichever path reports success, the session only counts as established
// once it is verifiably retrievable.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Strategy identifies one way of establishing a downstream session.
type Strategy string

const (
	// StrategyTokenExchange signs in with the identity token and lets the
	// platform issue its own session tokens.
	StrategyTokenExchange Strategy = "token-exchange"
	// StrategyDirect installs the raw identity token as the session
	// credential.
	StrategyDirect Strategy = "direct"
)

// ErrNoSession means a sign-in call reported success but no retrievable
// session exists; the bridge treats that as failure.
var ErrNoSession = errors.New("bridge: sign-in produced no retrievable session")

// Config holds the downstream platform's connection settings.
type Config struct {
	// BaseURL is the platform's API origin, e.g. https://db.example.com.
	BaseURL string `yaml:"base_url"`
	// APIKey is the platform's public (anon) API key, sent with every
	// request.
	APIKey string `yaml:"api_key"`
	// Provider is the identity provider name the platform knows the
	// upstream issuer by.
	Provider string `yaml:"provider"`
}

// Session is an established downstream session.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email,omitempty"`
	} `json:"user"`
}

// Client bridges identity tokens into downstream sessions.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	order  []Strategy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Client) { b.http = c }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Client) { b.logger = logger }
}

// WithStrategyOrder sets the order sign-in strategies are attempted in.
// The default tries token-exchange first, then direct install.
func WithStrategyOrder(order ...Strategy) Option {
	return func(b *Client) { b.order = order }
}

// New creates a bridge Client.
func New(cfg Config, opts ...Option) *Client {
	b := &Client{
		cfg:    cfg,
		http:   http.DefaultClient,
		logger: slog.Default(),
		order:  []Strategy{StrategyTokenExchange, StrategyDirect},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Establish converts an identity token into a downstream session, attempting
// each configured strategy once. A strategy succeeds only if the resulting
// session is retrievable afterwards; a sign-in call that returns no error but
// no live session is a failure. When every strategy fails the error from the
// last attempt is returned as a terminal auth failure.
func (b *Client) Establish(ctx context.Context, idToken string) (*Session, error) {
	var lastErr error
	for _, strat := range b.order {
		var (
			sess *Session
			err  error
		)
		switch strat {
		case StrategyTokenExchange:
			sess, err = b.signInWithIDToken(ctx, idToken)
		case StrategyDirect:
			sess, err = b.installDirect(ctx, idToken)
		default:
			err = fmt.Errorf("bridge: unknown strategy %q", strat)
		}
		if err != nil {
			b.logger.Warn("bridge strategy failed", "strategy", string(strat), "error", err)
			lastErr = err
			continue
		}
		b.logger.Info("downstream session established", "strategy", string(strat))
		return sess, nil
	}
	if lastErr == nil {
		lastErr = ErrNoSession
	}
	return nil, fmt.Errorf("bridge: all strategies exhausted: %w", lastErr)
}

// EstablishToken is the deskauth.SessionBridge adapter: it establishes a
// session and returns its access token.
func (b *Client) EstablishToken(ctx context.Context, idToken string) (string, error) {
	sess, err := b.Establish(ctx, idToken)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

// SignOut terminates the downstream session for the given access token. The
// caller clears cached secrets separately (see tokenstore).
func (b *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := b.newRequest(ctx, http.MethodPost, "/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: sign-out: %w", err)
	}
	defer resp.Body.Close()
	// 401 means the session is already gone; sign-out is idempotent.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("bridge: sign-out: unexpected status %d", resp.StatusCode)
	}
	b.logger.Info("downstream session terminated")
	return nil
}

// signInWithIDToken performs the token-exchange sign-in.
func (b *Client) signInWithIDToken(ctx context.Context, idToken string) (*Session, error) {
	body, _ := json.Marshal(map[string]string{
		"provider": b.cfg.Provider,
		"id_token": idToken,
	})
	req, err := b.newRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=id_token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token-exchange sign-in: %w", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token-exchange sign-in: status %d: %s", resp.StatusCode, payload)
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("token-exchange sign-in: decode session: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, ErrNoSession
	}
	return b.verify(ctx, &sess)
}

// installDirect treats the identity token itself as the session credential.
func (b *Client) installDirect(ctx context.Context, idToken string) (*Session, error) {
	sess := &Session{AccessToken: idToken, TokenType: "bearer"}
	return b.verify(ctx, sess)
}

// verify confirms the session is actually retrievable. A bridge call
// returning no error without a retrievable session is a failure.
func (b *Client) verify(ctx context.Context, sess *Session) (*Session, error) {
	req, err := b.newRequest(ctx, http.MethodGet, "/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("verify session: status %d: %w", resp.StatusCode, ErrNoSession)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &user); err != nil || user.ID == "" {
		return nil, ErrNoSession
	}
	if sess.User.ID == "" {
		sess.User.ID = user.ID
	}
	return sess, nil
}

func (b *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := strings.TrimSuffix(b.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("bridge: build request: %w", err)
	}
	req.Header.Set("apikey", b.cfg.APIKey)
	return req, nil
}
