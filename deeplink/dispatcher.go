// Package deeplink republishes OS-delivered custom-scheme URIs as an
// application-level event stream with individually cancellable listeners.
//
// The host shell feeds every URI the OS hands the process into
// Dispatcher.Dispatch; components interested in callbacks register with
// Listen and receive each URI that matches the application's scheme.
package deeplink

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// Handler receives a matching deep-link URI.
type Handler func(url string)

// Dispatcher fans deep-link URIs out to registered listeners. URIs whose
// scheme does not match the application's own are dropped silently.
type Dispatcher struct {
	scheme string
	logger *slog.Logger

	mu        sync.Mutex
	closed    bool
	nextID    uint64
	listeners map[uint64]*listener

	// dispatchMu serializes Dispatch so each listener observes events in
	// arrival order.
	dispatchMu sync.Mutex
}

type listener struct {
	fn   Handler
	live atomic.Bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dropped-event diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher creates a Dispatcher that accepts URIs with the given scheme
// (for example "myapp" for myapp:// links).
func NewDispatcher(scheme string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		scheme:    strings.ToLower(strings.TrimSuffix(scheme, "://")),
		logger:    slog.Default(),
		listeners: make(map[uint64]*listener),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Listen registers a handler for future deep-link events and returns an
// unsubscribe function. Unsubscribing is idempotent and is effective
// immediately: a handler never runs after its unsubscribe returns, even if a
// dispatch is already in flight for a later event.
func (d *Dispatcher) Listen(fn Handler) (unsubscribe func()) {
	l := &listener{fn: fn}
	l.live.Store(true)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		l.live.Store(false)
		return func() {}
	}
	id := d.nextID
	d.nextID++
	d.listeners[id] = l
	d.mu.Unlock()

	return func() {
		l.live.Store(false)
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

// Dispatch delivers a URI to every active listener. URIs that fail to parse
// or carry a foreign scheme are dropped without notifying listeners.
func (d *Dispatcher) Dispatch(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		d.logger.Debug("deep link dropped: unparseable", "error", err)
		return
	}
	if !strings.EqualFold(u.Scheme, d.scheme) {
		d.logger.Debug("deep link dropped: foreign scheme", "scheme", u.Scheme)
		return
	}

	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	snapshot := make([]*listener, 0, len(d.listeners))
	for _, l := range d.listeners {
		snapshot = append(snapshot, l)
	}
	d.mu.Unlock()

	for _, l := range snapshot {
		if l.live.Load() {
			l.fn(raw)
		}
	}
}

// Close tears the dispatcher down. Subsequent Dispatch calls are no-ops and
// outstanding unsubscribe functions remain safe to call.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, l := range d.listeners {
		l.live.Store(false)
		delete(d.listeners, id)
	}
}
