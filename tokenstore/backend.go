package tokenstore

import (
	"errors"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned by Backend implementations when no entry exists
// for the requested account.
var ErrNotFound = errors.New("token not found")

var (
	_ Backend = keychainBackend{}
	_ Backend = (*MemoryBackend)(nil)
)

// keychainBackend stores entries in the OS keychain via go-keyring.
type keychainBackend struct{}

func (keychainBackend) Set(service, account, value string) error {
	return keyring.Set(service, account, value)
}

func (keychainBackend) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return secret, nil
}

func (keychainBackend) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// MemoryBackend keeps entries in process memory only. It is the storage of
// record for browser-sandboxed deployments, where durable files cannot
// guarantee confidentiality, and doubles as a test backend.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]string)}
}

func (m *MemoryBackend) Set(service, account, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[service+"\x00"+account] = value
	return nil
}

func (m *MemoryBackend) Get(service, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[service+"\x00"+account]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryBackend) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := service + "\x00" + account
	if _, ok := m.entries[key]; !ok {
		return ErrNotFound
	}
	delete(m.entries, key)
	return nil
}
