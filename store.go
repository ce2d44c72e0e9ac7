package authsync

import (
	"slices"
	"sync"
	"time"
)

// OpKind groups operations for the staleness guard.
type OpKind string

const (
	OpRefresh  OpKind = "refresh"
	OpLogin    OpKind = "login"
	OpRegister OpKind = "register"
	OpLogout   OpKind = "logout"
	OpInject   OpKind = "inject"
)

// changesSession reports whether a committed result of this kind
// supersedes every older in-flight result, whatever its kind.
func (k OpKind) changesSession() bool {
	return k != OpRefresh
}

// Ticket identifies one initiated operation.
type Ticket struct {
	Kind OpKind
	Seq  uint64
}

// Listener receives a snapshot after every change.
type Listener func(SessionState)

// SessionStore holds the SessionState and notifies subscribers on change.
//
// Results of asynchronous operations go through Commit, which only applies
// them when the ticket is still the latest of its kind and no login,
// register, logout or injection initiated later has committed yet. A
// committed refresh only supersedes older refreshes.
type SessionStore struct {
	mu        sync.RWMutex
	state     SessionState
	seq       uint64
	latest    map[OpKind]uint64
	changed   uint64
	inflight  map[uint64]OpKind

	listenersMu sync.Mutex
	listeners   map[uint64]Listener
	nextID      uint64
	delivered   uint64

	now func() time.Time
}

// StoreOption customizes the store.
type StoreOption func(*SessionStore)

// WithStoreClock injects a custom clock (useful for tests).
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewSessionStore returns a store in the initializing, anonymous state.
func NewSessionStore(opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		state:     SessionState{Initializing: true},
		latest:    map[OpKind]uint64{},
		inflight:  map[uint64]OpKind{},
		listeners: map[uint64]Listener{},
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.state.UpdatedAt = s.now()
	return s
}

// State returns a snapshot of the current state.
func (s *SessionStore) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn and returns a function that removes it.
func (s *SessionStore) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}

	s.listenersMu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// SetIdentity replaces the identity and ends initialization.
func (s *SessionStore) SetIdentity(identity *Identity) {
	s.mu.Lock()
	changed := s.setIdentityLocked(identity)
	snapshot := s.state.clone()
	s.mu.Unlock()

	if changed {
		s.notify(snapshot)
	}
}

// SetChecking toggles the in-flight flag.
func (s *SessionStore) SetChecking(checking bool) {
	s.mu.Lock()
	changed := s.setCheckingLocked(checking)
	snapshot := s.state.clone()
	s.mu.Unlock()

	if changed {
		s.notify(snapshot)
	}
}

// Begin starts an operation of kind and marks the store as checking.
func (s *SessionStore) Begin(kind OpKind) Ticket {
	s.mu.Lock()
	s.seq++
	t := Ticket{Kind: kind, Seq: s.seq}
	s.latest[kind] = t.Seq
	s.inflight[t.Seq] = kind
	changed := s.setCheckingLocked(true)
	snapshot := s.state.clone()
	s.mu.Unlock()

	if changed {
		s.notify(snapshot)
	}
	return t
}

// IsCurrent reports whether t may still commit.
func (s *SessionStore) IsCurrent(t Ticket) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isCurrentLocked(t)
}

// Commit sets identity when t is still current and reports whether it did.
func (s *SessionStore) Commit(t Ticket, identity *Identity) bool {
	_, _, ok := s.CommitChange(t, identity)
	return ok
}

// CommitChange is Commit returning the states before and after the change.
func (s *SessionStore) CommitChange(t Ticket, identity *Identity) (SessionState, SessionState, bool) {
	s.mu.Lock()
	if !s.isCurrentLocked(t) {
		current := s.state.clone()
		s.mu.Unlock()
		return current, current, false
	}
	before := s.state.clone()
	if t.Kind.changesSession() {
		s.changed = t.Seq
	}
	changed := s.setIdentityLocked(identity)
	after := s.state.clone()
	s.mu.Unlock()

	if changed {
		s.notify(after)
	}
	return before, after, true
}

// Settle ends t. The checking flag drops once nothing is in flight.
func (s *SessionStore) Settle(t Ticket) {
	s.mu.Lock()
	delete(s.inflight, t.Seq)
	changed := s.setCheckingLocked(len(s.inflight) > 0)
	snapshot := s.state.clone()
	s.mu.Unlock()

	if changed {
		s.notify(snapshot)
	}
}

func (s *SessionStore) isCurrentLocked(t Ticket) bool {
	if t.Seq == 0 || s.latest[t.Kind] != t.Seq {
		return false
	}
	return t.Seq > s.changed
}

// setIdentityLocked leaves the version alone when nothing changed, so
// repeated identical checks are invisible to subscribers.
func (s *SessionStore) setIdentityLocked(identity *Identity) bool {
	if !s.state.Initializing && sameIdentity(s.state.Identity, identity) {
		return false
	}
	if identity != nil {
		id := *identity
		identity = &id
	}
	s.state.Identity = identity
	s.state.Initializing = false
	s.touchLocked()
	return true
}

func sameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *SessionStore) setCheckingLocked(checking bool) bool {
	if s.state.Checking == checking {
		return false
	}
	s.state.Checking = checking
	s.touchLocked()
	return true
}

func (s *SessionStore) touchLocked() {
	s.state.Version++
	s.state.UpdatedAt = s.now()
}

// notify delivers snapshot unless a newer one was already delivered, so
// listeners observe versions in increasing order.
func (s *SessionStore) notify(snapshot SessionState) {
	s.listenersMu.Lock()
	if snapshot.Version <= s.delivered {
		s.listenersMu.Unlock()
		return
	}
	s.delivered = snapshot.Version

	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(snapshot.clone())
	}
}
