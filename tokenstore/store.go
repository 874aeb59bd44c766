// Package tokenstore persists one opaque session token per logical account.
//
// On desktop the backing store is the OS keychain (macOS Keychain, Windows
// Credential Manager, Linux Secret Service). Recoverable storage failures
// degrade to an in-memory fallback and are reported through diagnostics
// rather than surfaced to callers, so the UI is never blocked on keychain
// flakiness. A missing token is an absent value, not an error.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// defaultAccount is the keychain account used when no account id is given.
const defaultAccount = "default"

// Backend abstracts the underlying secure storage. Implementations map their
// own missing-entry signal to ErrNotFound.
type Backend interface {
	Set(service, account, value string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// storedToken is the JSON-serializable persisted form.
type storedToken struct {
	AccessToken string `json:"access_token"`
}

// Store persists session tokens keyed by account id.
type Store struct {
	service string
	backend Backend
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]string // fallback for entries the backend rejected
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBackend replaces the default keychain backend. Web-style deployments
// use NewMemoryBackend here so tokens stay session-scoped.
func WithBackend(b Backend) StoreOption {
	return func(s *Store) { s.backend = b }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store that persists under the given application name as the
// keychain service name.
func New(appName string, opts ...StoreOption) *Store {
	s := &Store{
		service: appName,
		logger:  slog.Default(),
		cache:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backend == nil {
		s.backend = keychainBackend{}
	}
	return s
}

// Save persists an access token for the account. Backend failures degrade to
// the in-memory fallback and are logged; Save itself does not fail for
// recoverable storage errors.
func (s *Store) Save(_ context.Context, accessToken, accountID string) error {
	payload, err := json.Marshal(storedToken{AccessToken: accessToken})
	if err != nil {
		return fmt.Errorf("tokenstore: encode token: %w", err)
	}
	if err := s.backend.Set(s.service, accountKey(accountID), string(payload)); err != nil {
		s.logger.Warn("secure storage save failed, keeping token in memory only",
			"account", accountKey(accountID), "error", err)
		s.mu.Lock()
		s.cache[accountKey(accountID)] = accessToken
		s.mu.Unlock()
		return nil
	}
	s.mu.Lock()
	delete(s.cache, accountKey(accountID))
	s.mu.Unlock()
	return nil
}

// Load retrieves the stored token for the account. The second return value
// reports whether a token was found; a missing token is (_, false, nil).
func (s *Store) Load(_ context.Context, accountID string) (string, bool, error) {
	raw, err := s.backend.Get(s.service, accountKey(accountID))
	switch {
	case err == nil:
		var st storedToken
		if jsonErr := json.Unmarshal([]byte(raw), &st); jsonErr == nil && st.AccessToken != "" {
			return st.AccessToken, true, nil
		}
		// Pre-JSON entries stored the bare token value.
		if raw != "" {
			return raw, true, nil
		}
		return "", false, nil
	case errors.Is(err, ErrNotFound):
	default:
		s.logger.Warn("secure storage load failed, falling back to memory",
			"account", accountKey(accountID), "error", err)
	}

	s.mu.Lock()
	tok, ok := s.cache[accountKey(accountID)]
	s.mu.Unlock()
	if ok {
		return tok, true, nil
	}
	return "", false, nil
}

// Clear removes the stored token for the account from both the backend and
// the fallback cache. Clearing an absent token is not an error.
func (s *Store) Clear(_ context.Context, accountID string) error {
	s.mu.Lock()
	delete(s.cache, accountKey(accountID))
	s.mu.Unlock()

	err := s.backend.Delete(s.service, accountKey(accountID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("tokenstore: clear %s: %w", accountKey(accountID), err)
	}
	return nil
}

// ClearCache drops every in-memory fallback entry. Secure backend entries are
// untouched.
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

func accountKey(accountID string) string {
	if accountID == "" {
		return defaultAccount
	}
	return accountID
}

// Redact returns a loggable form of a token that never reveals the full
// value.
func Redact(token string) string {
	if token == "" {
		return "<empty>"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + fmt.Sprintf("(%d chars)", len(token))
}
