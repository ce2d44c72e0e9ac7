package authsync

import (
	"context"
	"sync"
	"time"
)

// ChangeEventType enumerates the authentication change events.
type ChangeEventType string

const (
	ChangeSignedIn   ChangeEventType = "auth.signed_in"
	ChangeSignedOut  ChangeEventType = "auth.signed_out"
	ChangeRefreshed  ChangeEventType = "auth.refreshed"
	ChangeRoleSwitch ChangeEventType = "auth.role_switched"
)

// ChangeEvent is the role scoped "authentication changed" broadcast.
type ChangeEvent struct {
	ID         string
	EventType  ChangeEventType
	Op         OpKind
	Role       Role
	Identity   *Identity
	From       Phase
	To         Phase
	OccurredAt time.Time
}

// ChangeSink consumes change events, typically to bridge them into another
// window or process.
type ChangeSink interface {
	Record(ctx context.Context, event ChangeEvent) error
}

// ChangeSinkFunc adapts a function to the ChangeSink interface.
type ChangeSinkFunc func(ctx context.Context, event ChangeEvent) error

// Record implements ChangeSink.
func (f ChangeSinkFunc) Record(ctx context.Context, event ChangeEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopChangeSink struct{}

func (noopChangeSink) Record(context.Context, ChangeEvent) error {
	return nil
}

func normalizeChangeSink(s ChangeSink) ChangeSink {
	if s == nil {
		return noopChangeSink{}
	}
	return s
}

// Broadcaster is the publish/subscribe channel owned by the Provider.
// Subscribers filter by role and see events where the role is either the
// old or the new one; an empty role receives every event.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
	buffer int
}

type subscription struct {
	role Role
	ch   chan ChangeEvent
}

func (s *subscription) matches(event ChangeEvent) bool {
	if s.role == "" || event.Role == "" {
		return true
	}
	return s.role == event.Role || s.role == event.From.Role
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   map[uint64]*subscription{},
		buffer: buffer,
	}
}

// Subscribe returns a channel of events for role and a cancel function
// that closes it.
func (b *Broadcaster) Subscribe(role Role) (<-chan ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ChangeEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	id := b.nextID
	b.subs[id] = &subscription{role: role, ch: ch}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// Publish delivers event to every matching subscriber and reports how many
// subscribers were too slow and missed it.
func (b *Broadcaster) Publish(event ChangeEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for _, sub := range b.subs {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}
	return dropped
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
