package authsync

import (
	"sync"
	"time"
)

// DefaultStatusTTL is how long a transient message stays visible.
const DefaultStatusTTL = 5 * time.Second

// Timer is the part of *time.Timer the banner needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules fn after d, time.AfterFunc by default.
type AfterFunc func(d time.Duration, fn func()) Timer

func realAfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// StatusBanner holds one transient message. Showing a message supersedes
// the previous one and restarts the timer; a timer only ever clears the
// message it was started for.
type StatusBanner struct {
	mu         sync.Mutex
	message    string
	generation uint64
	timer      Timer
	ttl        time.Duration
	afterFunc  AfterFunc
	onChange   func(string)
	closed     bool
}

// StatusOption customizes the banner.
type StatusOption func(*StatusBanner)

// WithStatusTTL overrides DefaultStatusTTL.
func WithStatusTTL(ttl time.Duration) StatusOption {
	return func(b *StatusBanner) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithStatusAfterFunc injects the scheduler (useful for tests).
func WithStatusAfterFunc(fn AfterFunc) StatusOption {
	return func(b *StatusBanner) {
		if fn != nil {
			b.afterFunc = fn
		}
	}
}

// WithStatusListener is called with the new message on every change.
func WithStatusListener(fn func(string)) StatusOption {
	return func(b *StatusBanner) {
		b.onChange = fn
	}
}

// NewStatusBanner creates an empty banner.
func NewStatusBanner(opts ...StatusOption) *StatusBanner {
	b := &StatusBanner{
		ttl:       DefaultStatusTTL,
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Message returns the visible message, empty when nothing is shown.
func (b *StatusBanner) Message() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.message
}

// Show displays message until the TTL elapses or another message replaces it.
// An empty message clears the banner.
func (b *StatusBanner) Show(message string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	b.stopLocked()
	b.generation++
	b.message = message
	if message != "" {
		gen := b.generation
		b.timer = b.afterFunc(b.ttl, func() { b.expire(gen) })
	}
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange(message)
	}
}

// Clear removes the message right away.
func (b *StatusBanner) Clear() {
	b.Show("")
}

// Close cancels any pending timer; the banner ignores further messages.
func (b *StatusBanner) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	b.generation++
	b.closed = true
	b.message = ""
}

func (b *StatusBanner) expire(gen uint64) {
	b.mu.Lock()
	if b.closed || gen != b.generation {
		b.mu.Unlock()
		return
	}
	b.message = ""
	b.timer = nil
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange("")
	}
}

func (b *StatusBanner) stopLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
