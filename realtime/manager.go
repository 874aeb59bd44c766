// Package realtime maintains push subscriptions to server-side change events
// across transient network failures.
//
// A Subscription owns exactly one live channel at a time. When the channel
// drops it is disposed before a replacement is opened, reconnect delays
// follow a jitter-free doubling schedule capped at 30s, and both the delay
// and the retry counter reset the moment a subscription is re-established.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Status is a subscription's observable connection state.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusSubscribed
	StatusReconnecting
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusSubscribed:
		return "subscribed"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ChannelStatus is a lifecycle signal from the underlying channel, in the
// wire's own vocabulary.
type ChannelStatus string

const (
	ChannelSubscribed ChannelStatus = "SUBSCRIBED"
	ChannelError      ChannelStatus = "CHANNEL_ERROR"
	ChannelTimedOut   ChannelStatus = "TIMED_OUT"
	ChannelClosed     ChannelStatus = "CLOSED"
)

// ChangeEvent is one row-level change notification.
type ChangeEvent struct {
	// Type is INSERT, UPDATE, or DELETE.
	Type string
	New  map[string]any
	Old  map[string]any
}

// Channel is one live subscription attempt. Both channels are closed when
// the attempt dies; Statuses delivers lifecycle signals until then.
type Channel interface {
	Events() <-chan ChangeEvent
	Statuses() <-chan ChannelStatus
	Close() error
}

// ChannelFactory opens a channel for change events on a table, optionally
// filtered by an equality predicate string ("column=eq.value").
type ChannelFactory interface {
	Open(ctx context.Context, table, filter string) (Channel, error)
}

// Manager creates subscriptions from a shared channel factory.
type Manager struct {
	factory ChannelFactory
	logger  *slog.Logger

	// timerFn overrides the backoff timer source in tests.
	timerFn func(time.Duration) <-chan time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager around a channel factory.
func NewManager(factory ChannelFactory, opts ...ManagerOption) *Manager {
	m := &Manager{factory: factory, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe opens a self-healing subscription on table, filtered by the
// optional predicate. onRow runs on the subscription's goroutine for each
// change event. The subscription reconnects on failure until Unsubscribe is
// called or ctx is cancelled.
func (m *Manager) Subscribe(ctx context.Context, table, filter string, onRow func(ChangeEvent)) *Subscription {
	s := &Subscription{
		factory: m.factory,
		logger:  m.logger,
		table:   table,
		filter:  filter,
		onRow:   onRow,
		status:  StatusIdle,
		done:    make(chan struct{}),
		timerFn: m.timerFn,
	}
	go s.run(ctx)
	return s
}

// Subscription is one live filter predicate's connection state machine.
type Subscription struct {
	factory ChannelFactory
	logger  *slog.Logger
	table   string
	filter  string
	onRow   func(ChangeEvent)

	mu      sync.Mutex
	status  Status
	retries int

	done      chan struct{}
	closeOnce sync.Once

	timerFn func(time.Duration) <-chan time.Time
}

// Status returns the subscription's current connection status.
func (s *Subscription) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Retries returns the number of reconnect attempts since the last
// successful subscription. It resets to 0 on Subscribed.
func (s *Subscription) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// Unsubscribe tears the subscription down: any pending reconnect timer is
// cancelled, the live channel is disposed, and events already in flight are
// discarded. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscription) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// run is the subscription's event loop: connect, consume until the channel
// dies, back off, repeat.
func (s *Subscription) run(ctx context.Context) {
	defer s.setStatus(StatusClosed)

	for {
		if s.closed() || ctx.Err() != nil {
			return
		}

		s.setStatus(StatusConnecting)
		ch, err := s.factory.Open(ctx, s.table, s.filter)
		if err != nil {
			s.logger.Warn("realtime channel open failed", "table", s.table, "error", err)
			s.setStatus(StatusError)
			if !s.waitBackoff(ctx) {
				return
			}
			continue
		}

		terminal := s.consume(ctx, ch)
		// Reconnect always disposes the previous channel before a new
		// one exists, so deliveries are never duplicated.
		_ = ch.Close()

		if terminal {
			return
		}
		if !s.waitBackoff(ctx) {
			return
		}
	}
}

// consume drains one channel until it drops. Returns true when the
// subscription itself is done.
func (s *Subscription) consume(ctx context.Context, ch Channel) bool {
	for {
		select {
		case <-s.done:
			return true
		case <-ctx.Done():
			return true
		case ev, ok := <-ch.Events():
			if !ok {
				s.setStatus(StatusClosed)
				return false
			}
			if !s.closed() {
				s.onRow(ev)
			}
		case st, ok := <-ch.Statuses():
			if !ok {
				s.setStatus(StatusClosed)
				return false
			}
			switch st {
			case ChannelSubscribed:
				s.mu.Lock()
				s.status = StatusSubscribed
				s.retries = 0
				s.mu.Unlock()
				s.logger.Info("realtime subscribed", "table", s.table, "filter", s.filter)
			case ChannelClosed:
				s.setStatus(StatusClosed)
				return false
			case ChannelError, ChannelTimedOut:
				s.logger.Warn("realtime channel dropped", "table", s.table, "status", string(st))
				s.setStatus(StatusError)
				return false
			}
		}
	}
}

// waitBackoff sleeps for the next backoff interval. Returns false when the
// subscription is torn down before the timer fires.
func (s *Subscription) waitBackoff(ctx context.Context) bool {
	s.mu.Lock()
	s.retries++
	attempt := s.retries
	s.status = StatusReconnecting
	s.mu.Unlock()

	delay := NextBackoff(attempt)
	s.logger.Debug("realtime reconnect scheduled", "attempt", attempt, "delay", delay)

	var fire <-chan time.Time
	if s.timerFn != nil {
		fire = s.timerFn(delay)
	} else {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		fire = timer.C
	}
	select {
	case <-fire:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// ErrFactoryClosed may be returned by ChannelFactory implementations whose
// underlying socket has been shut down.
var ErrFactoryClosed = errors.New("realtime: channel factory closed")
