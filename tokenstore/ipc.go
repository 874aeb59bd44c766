package tokenstore

import "context"

// IPC adapts a Store to the host shell's string-based command surface. The
// embedded webview invokes these over the shell's message bridge, which can
// only carry strings: failures come back as values prefixed "ERR:" rather
// than structured errors.
type IPC struct {
	store *Store
}

// NewIPC wraps a Store for the host command surface.
func NewIPC(store *Store) *IPC {
	return &IPC{store: store}
}

// LoadSecureToken returns the stored token for the account, the empty string
// when none is stored, or an "ERR:"-prefixed message on failure.
func (i *IPC) LoadSecureToken(accountID string) string {
	tok, ok, err := i.store.Load(context.Background(), accountID)
	if err != nil {
		return "ERR:" + err.Error()
	}
	if !ok {
		return ""
	}
	return tok
}

// SaveSecureToken persists a token for the account. Returns "" on success or
// an "ERR:"-prefixed message.
func (i *IPC) SaveSecureToken(accountID, token string) string {
	if err := i.store.Save(context.Background(), token, accountID); err != nil {
		return "ERR:" + err.Error()
	}
	return ""
}

// ClearSecretCache drops all in-memory fallback entries.
func (i *IPC) ClearSecretCache() string {
	i.store.ClearCache()
	return ""
}
