package authsync_test

import (
	"context"
	"sync"
	"time"

	"github.com/foodly/authsync"
	"github.com/stretchr/testify/mock"
)

// MockGateway implements authsync.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Login(ctx context.Context, creds authsync.Credentials, role authsync.Role) (authsync.Envelope, error) {
	args := m.Called(ctx, creds, role)
	return args.Get(0).(authsync.Envelope), args.Error(1)
}

func (m *MockGateway) RegisterUser(ctx context.Context, payload authsync.UserRegistration) (authsync.Envelope, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(authsync.Envelope), args.Error(1)
}

func (m *MockGateway) RegisterPartner(ctx context.Context, payload authsync.PartnerRegistration) (authsync.Envelope, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(authsync.Envelope), args.Error(1)
}

func (m *MockGateway) Logout(ctx context.Context, role authsync.Role) error {
	args := m.Called(ctx, role)
	return args.Error(0)
}

func (m *MockGateway) WhoAmI(ctx context.Context) (authsync.Envelope, error) {
	args := m.Called(ctx)
	return args.Get(0).(authsync.Envelope), args.Error(1)
}

// fakeTimer records Stop calls
type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

// fakeScheduler captures scheduled callbacks so tests fire them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	fns    []func()
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, fn func()) authsync.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &fakeTimer{}
	s.fns = append(s.fns, fn)
	s.timers = append(s.timers, timer)
	return timer
}

func (s *fakeScheduler) fire(i int) {
	s.mu.Lock()
	fn := s.fns[i]
	s.mu.Unlock()
	fn()
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

func userEnvelope() authsync.Envelope {
	return authsync.Envelope{
		User: &authsync.RawUser{
			ID:       "u1",
			FullName: "Asha Rao",
			Email:    "asha@example.com",
		},
	}
}

func partnerEnvelope() authsync.Envelope {
	return authsync.Envelope{
		User: &authsync.RawUser{
			ID:          "p1",
			FullName:    "Spice Route",
			ContactName: "Ravi",
			Email:       "kitchen@example.com",
			Address:     "12 MG Road",
		},
	}
}
