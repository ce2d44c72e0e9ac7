package authsync_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foodly/authsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestProvider(gw authsync.Gateway, opts ...authsync.ProviderOption) *authsync.Provider {
	opts = append([]authsync.ProviderOption{authsync.WithProviderLogger(authsync.NopLogger())}, opts...)
	return authsync.NewProvider(gw, opts...)
}

func rejected(message string) error {
	return authsync.ErrRejected.Clone().WithMetadata(map[string]any{"message": message})
}

func validPartnerRegistration() authsync.PartnerRegistration {
	return authsync.PartnerRegistration{
		FullName:    "Spice Route",
		ContactName: "Ravi",
		Phone:       "+91 98765 43210",
		Email:       "kitchen@example.com",
		Password:    "secret123",
		Address:     "12 MG Road",
		Avatar: &authsync.Avatar{
			Filename:    "logo.png",
			ContentType: "image/png",
			Content:     bytes.NewReader([]byte("png")),
		},
	}
}

func TestProviderStartResolvesIdentity(t *testing.T) {
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(partnerEnvelope(), nil).Once()

	p := newTestProvider(gw)
	defer p.Close()

	out := p.Start(context.Background())
	require.True(t, out.OK())

	state := p.State()
	assert.False(t, state.Initializing)
	assert.False(t, state.Checking)
	require.True(t, state.IsAuthenticated())
	assert.Equal(t, authsync.RolePartner, state.Role())
	assert.Equal(t, authsync.PhaseAuthenticated, p.Phase().Name)
	gw.AssertExpectations(t)
}

func TestProviderStartFailureIsAnonymousWithoutMessage(t *testing.T) {
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(authsync.Envelope{}, authsync.ErrUnauthorized).Once()

	p := newTestProvider(gw)
	defer p.Close()

	out := p.Start(context.Background())
	assert.Empty(t, out.Message)
	assert.NoError(t, out.Err)

	state := p.State()
	assert.False(t, state.Initializing)
	assert.False(t, state.IsAuthenticated())
}

func TestProviderCloseDuringStartLeavesStateUntouched(t *testing.T) {
	started := make(chan struct{})
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(authsync.Envelope{}, authsync.ErrCancelled).Once()

	p := newTestProvider(gw)

	done := make(chan authsync.Outcome)
	go func() { done <- p.Start(context.Background()) }()

	<-started
	p.Close()
	out := <-done

	assert.True(t, authsync.IsCancelled(out.Err))
	assert.Empty(t, out.Message)
	state := p.State()
	assert.True(t, state.Initializing)
	assert.False(t, state.Checking)
}

func TestProviderLoginUsesReturnedUser(t *testing.T) {
	creds := authsync.Credentials{Email: "asha@example.com", Password: "secret123"}
	gw := &MockGateway{}
	gw.On("Login", mock.Anything, creds, authsync.RoleUser).Return(userEnvelope(), nil).Once()

	p := newTestProvider(gw)
	defer p.Close()

	out := p.Login(context.Background(), creds, authsync.RoleUser)
	require.True(t, out.OK())
	require.NotNil(t, out.Identity)
	assert.Equal(t, "u1", out.Identity.ID)
	assert.Equal(t, authsync.RoleUser, p.State().Role())

	gw.AssertNotCalled(t, "WhoAmI", mock.Anything)
}

func TestProviderLoginWithoutUserChecksIdentityOnce(t *testing.T) {
	creds := authsync.Credentials{Email: "kitchen@example.com", Password: "secret123"}
	gw := &MockGateway{}
	gw.On("Login", mock.Anything, creds, authsync.RolePartner).
		Return(authsync.Envelope{AccountType: "partner", Message: "Logged in"}, nil).Once()
	gw.On("WhoAmI", mock.Anything).
		Return(authsync.Envelope{User: &authsync.RawUser{ID: "p1", Email: "kitchen@example.com"}}, nil).Once()

	p := newTestProvider(gw)
	defer p.Close()

	out := p.Login(context.Background(), creds, authsync.RolePartner)
	require.True(t, out.OK())
	assert.Equal(t, authsync.RolePartner, out.Identity.Role, "login role hint carries over to the identity check")

	gw.AssertNumberOfCalls(t, "WhoAmI", 1)
	gw.AssertExpectations(t)
}

func TestProviderLoginIdentityCheckFailure(t *testing.T) {
	creds := authsync.Credentials{Email: "asha@example.com", Password: "secret123"}
	gw := &MockGateway{}
	gw.On("Login", mock.Anything, creds, authsync.RoleUser).Return(authsync.Envelope{}, nil).Once()
	gw.On("WhoAmI", mock.Anything).Return(authsync.Envelope{}, authsync.ErrTransport).Once()

	p := newTestProvider(gw)
	defer p.Close()

	out := p.Login(context.Background(), creds, authsync.RoleUser)
	require.Error(t, out.Err)
	assert.Equal(t, "Signed in, but unable to load your account.", out.Message)
	assert.False(t, p.State().IsAuthenticated())
	assert.False(t, p.State().Initializing)
}

func TestProviderLoginFailureKeepsState(t *testing.T) {
	creds := authsync.Credentials{Email: "asha@example.com", Password: "wrong-pass"}
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(authsync.Envelope{}, authsync.ErrUnauthorized).Once()
	gw.On("Login", mock.Anything, creds, authsync.RoleUser).
		Return(authsync.Envelope{}, authsync.ErrUnauthorized.Clone().WithMetadata(map[string]any{"message": "Invalid credentials"})).Once()

	p := newTestProvider(gw)
	defer p.Close()
	p.Start(context.Background())
	version := p.State().Version

	out := p.Login(context.Background(), creds, authsync.RoleUser)
	assert.True(t, authsync.IsUnauthorized(out.Err))
	assert.Equal(t, "Invalid credentials", out.Message)
	assert.False(t, p.State().IsAuthenticated())
	assert.False(t, p.State().Checking)
	assert.Greater(t, p.State().Version, version, "checking toggled")
}

func TestProviderLoginFailureFallbackMessage(t *testing.T) {
	creds := authsync.Credentials{Email: "asha@example.com", Password: "secret123"}
	gw := &MockGateway{}
	gw.On("Login", mock.Anything, creds, authsync.RoleUser).Return(authsync.Envelope{}, authsync.ErrTransport).Once()

	p := newTestProvider(gw)
	defer p.Close()

	out := p.Login(context.Background(), creds, authsync.RoleUser)
	assert.Equal(t, "Unable to sign in. Please try again.", out.Message)
}

func TestProviderLoginValidationSkipsGateway(t *testing.T) {
	gw := &MockGateway{}
	p := newTestProvider(gw)
	defer p.Close()

	out := p.Login(context.Background(), authsync.Credentials{Email: "not-an-email", Password: "x"}, authsync.RoleUser)
	assert.True(t, authsync.IsValidation(out.Err))
	assert.NotEmpty(t, out.Message)
	gw.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
}

func TestProviderRegisterUser(t *testing.T) {
	payload := authsync.UserRegistration{FullName: "Asha Rao", Email: "asha@example.com", Password: "secret123"}
	gw := &MockGateway{}
	gw.On("RegisterUser", mock.Anything, payload).Return(userEnvelope(), nil).Once()

	p := newTestProvider(gw)
	defer p.Close()

	out := p.RegisterUser(context.Background(), payload)
	require.True(t, out.OK())
	assert.Equal(t, authsync.RoleUser, p.State().Role())
}

func TestProviderRegisterUserBackendMessage(t *testing.T) {
	payload := authsync.UserRegistration{FullName: "Asha Rao", Email: "asha@example.com", Password: "secret123"}
	gw := &MockGateway{}
	gw.On("RegisterUser", mock.Anything, payload).Return(authsync.Envelope{}, rejected("User already exists")).Once()

	p := newTestProvider(gw)
	defer p.Close()

	out := p.RegisterUser(context.Background(), payload)
	assert.Equal(t, "User already exists", out.Message)
	assert.False(t, p.State().IsAuthenticated())
}

func TestProviderRegisterPartnerWithoutAvatarSendsNothing(t *testing.T) {
	gw := &MockGateway{}
	p := newTestProvider(gw)
	defer p.Close()

	payload := validPartnerRegistration()
	payload.Avatar = nil

	out := p.RegisterPartner(context.Background(), payload)
	assert.True(t, authsync.IsValidation(out.Err))
	assert.Equal(t, authsync.MessageMissingAvatar, out.Message)
	gw.AssertNotCalled(t, "RegisterPartner", mock.Anything, mock.Anything)
	assert.False(t, p.State().Checking)
}

func TestProviderRegisterPartner(t *testing.T) {
	gw := &MockGateway{}
	gw.On("RegisterPartner", mock.Anything, mock.AnythingOfType("authsync.PartnerRegistration")).
		Return(authsync.Envelope{AccountType: "partner"}, nil).Once()
	gw.On("WhoAmI", mock.Anything).Return(partnerEnvelope(), nil).Once()

	p := newTestProvider(gw)
	defer p.Close()

	out := p.RegisterPartner(context.Background(), validPartnerRegistration())
	require.True(t, out.OK())
	assert.Equal(t, authsync.RolePartner, p.State().Role())
	gw.AssertExpectations(t)
}

func TestProviderLogoutSuccess(t *testing.T) {
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(partnerEnvelope(), nil).Once()
	gw.On("Logout", mock.Anything, authsync.RolePartner).Return(nil).Once()

	p := newTestProvider(gw)
	defer p.Close()
	p.Start(context.Background())

	events, cancel := p.Changes(authsync.RolePartner)
	defer cancel()

	out := p.Logout(context.Background(), authsync.RolePartner)
	require.True(t, out.OK())
	assert.False(t, p.State().IsAuthenticated())

	select {
	case event := <-events:
		assert.Equal(t, authsync.ChangeSignedOut, event.EventType)
		assert.Equal(t, authsync.RolePartner, event.Role)
		assert.Equal(t, authsync.OpLogout, event.Op)
		assert.NotEmpty(t, event.ID)
	case <-time.After(time.Second):
		t.Fatal("no change event")
	}
}

func TestProviderLogoutFailureKeepsIdentity(t *testing.T) {
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(userEnvelope(), nil).Once()
	gw.On("Logout", mock.Anything, authsync.RoleUser).Return(authsync.ErrTransport).Once()

	p := newTestProvider(gw)
	defer p.Close()
	p.Start(context.Background())

	out := p.Logout(context.Background(), authsync.RoleUser)
	require.Error(t, out.Err)
	assert.Equal(t, authsync.MessageLogoutFailure, out.Message)
	require.NotNil(t, out.Identity)
	assert.Equal(t, "u1", p.State().Identity.ID)
	assert.False(t, p.State().Checking)
}

func TestProviderLogoutUnauthorizedKeepsIdentity(t *testing.T) {
	hints := authsync.NewMemoryHints()
	require.NoError(t, hints.Set(context.Background(), authsync.HintPartnerEmail, "kitchen@example.com"))

	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(partnerEnvelope(), nil).Once()
	gw.On("Logout", mock.Anything, authsync.RolePartner).Return(authsync.ErrUnauthorized).Once()

	p := newTestProvider(gw, authsync.WithProviderHints(hints))
	defer p.Close()
	p.Start(context.Background())

	out := p.Logout(context.Background(), authsync.RolePartner)
	require.Error(t, out.Err)
	assert.True(t, authsync.IsUnauthorized(out.Err))
	assert.Equal(t, authsync.MessageLogoutFailure, out.Message)
	require.NotNil(t, out.Identity)
	assert.True(t, p.State().IsAuthenticated())
	assert.Equal(t, "p1", p.State().Identity.ID)

	email, ok, err := hints.Get(context.Background(), authsync.HintPartnerEmail)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "kitchen@example.com", email)
}

func TestProviderConcurrentLogoutsShareOneRequest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(userEnvelope(), nil).Once()
	gw.On("Logout", mock.Anything, authsync.RoleUser).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil).Once()

	p := newTestProvider(gw)
	defer p.Close()
	p.Start(context.Background())

	var wg sync.WaitGroup
	outcomes := make([]authsync.Outcome, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcomes[0] = p.Logout(context.Background(), authsync.RoleUser)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		outcomes[1] = p.Logout(context.Background(), authsync.RoleUser)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	gw.AssertNumberOfCalls(t, "Logout", 1)
	assert.True(t, outcomes[0].OK())
	assert.True(t, outcomes[1].OK())
	assert.False(t, p.State().IsAuthenticated())
}

func TestProviderLogoutSurvivesAbandonedWaiter(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var callCtx context.Context

	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(userEnvelope(), nil).Once()
	gw.On("Logout", mock.Anything, authsync.RoleUser).
		Run(func(args mock.Arguments) {
			callCtx = args.Get(0).(context.Context)
			close(started)
			<-release
		}).
		Return(nil).Once()

	p := newTestProvider(gw)
	defer p.Close()
	p.Start(context.Background())

	first, abandon := context.WithCancel(context.Background())
	abandoned := make(chan authsync.Outcome)
	go func() { abandoned <- p.Logout(first, authsync.RoleUser) }()
	<-started

	kept := make(chan authsync.Outcome)
	go func() { kept <- p.Logout(context.Background(), authsync.RoleUser) }()
	time.Sleep(20 * time.Millisecond)

	abandon()
	out := <-abandoned
	assert.True(t, authsync.IsCancelled(out.Err))
	assert.Empty(t, out.Message)
	assert.NoError(t, callCtx.Err(), "the shared request outlives one waiter")

	close(release)
	require.True(t, (<-kept).OK())
	gw.AssertNumberOfCalls(t, "Logout", 1)
	assert.False(t, p.State().IsAuthenticated())
}

func TestProviderLogoutCancelledWhenEveryWaiterLeaves(t *testing.T) {
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(userEnvelope(), nil).Once()
	gw.On("Logout", mock.Anything, authsync.RoleUser).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(authsync.ErrCancelled).Once()

	p := newTestProvider(gw)
	defer p.Close()
	p.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := p.Logout(ctx, authsync.RoleUser)
	assert.True(t, authsync.IsCancelled(out.Err))
	assert.Eventually(t, func() bool { return !p.State().Checking }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "u1", p.State().Identity.ID)
}

func TestProviderStaleRefreshDoesNotOverwriteLogin(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	creds := authsync.Credentials{Email: "asha@example.com", Password: "secret123"}

	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(authsync.Envelope{}, authsync.ErrUnauthorized).Once()
	gw.On("Login", mock.Anything, creds, authsync.RoleUser).Return(userEnvelope(), nil).Once()

	p := newTestProvider(gw)
	defer p.Close()

	refreshed := make(chan authsync.Outcome)
	go func() { refreshed <- p.Refresh(context.Background()) }()
	<-started

	out := p.Login(context.Background(), creds, authsync.RoleUser)
	require.True(t, out.OK())
	assert.True(t, p.State().Checking, "refresh still in flight")

	close(release)
	stale := <-refreshed

	assert.True(t, stale.Stale)
	assert.Equal(t, "u1", p.State().Identity.ID)
	assert.False(t, p.State().Checking)
}

func TestProviderRefreshDoesNotDiscardLoginInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	creds := authsync.Credentials{Email: "asha@example.com", Password: "secret123"}

	gw := &MockGateway{}
	gw.On("Login", mock.Anything, creds, authsync.RoleUser).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(userEnvelope(), nil).Once()
	gw.On("WhoAmI", mock.Anything).Return(authsync.Envelope{}, authsync.ErrUnauthorized).Once()

	p := newTestProvider(gw)
	defer p.Close()

	loggedIn := make(chan authsync.Outcome)
	go func() { loggedIn <- p.Login(context.Background(), creds, authsync.RoleUser) }()
	<-started

	refreshed := p.Refresh(context.Background())
	require.True(t, refreshed.OK())
	assert.False(t, p.State().IsAuthenticated())
	assert.True(t, p.State().Checking, "login still in flight")

	close(release)
	out := <-loggedIn

	require.True(t, out.OK())
	assert.False(t, out.Stale)
	require.True(t, p.State().IsAuthenticated())
	assert.Equal(t, "u1", p.State().Identity.ID)
	assert.False(t, p.State().Checking)
}

func TestProviderLoadingWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(userEnvelope(), nil).Once()

	p := newTestProvider(gw)
	defer p.Close()

	rec := &stateRecorder{}
	p.Subscribe(rec.listen)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.State().Checking }, time.Second, 5*time.Millisecond)
	assert.True(t, p.State().Loading())
	close(release)
	<-done

	assert.False(t, p.State().Loading())
	states := rec.all()
	require.NotEmpty(t, states)
	assert.True(t, states[0].Checking)
	assert.False(t, rec.last().Checking)
}

func TestProviderSetIdentity(t *testing.T) {
	p := newTestProvider(&MockGateway{})
	defer p.Close()

	out := p.SetIdentity(&authsync.RawUser{ID: "p1", Email: "kitchen@example.com"}, authsync.RolePartner)
	require.NotNil(t, out.Identity)
	assert.Equal(t, authsync.RolePartner, p.State().Role())

	p.SetIdentity(nil, "")
	assert.False(t, p.State().IsAuthenticated())
}

func TestProviderTransitionHooksAndSink(t *testing.T) {
	var transitions []authsync.TransitionContext
	var recorded []authsync.ChangeEvent

	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(authsync.Envelope{}, authsync.ErrUnauthorized).Once()
	gw.On("Login", mock.Anything, mock.Anything, authsync.RolePartner).Return(partnerEnvelope(), nil).Once()

	p := newTestProvider(gw,
		authsync.WithTransitionHook(func(_ context.Context, tc authsync.TransitionContext) error {
			transitions = append(transitions, tc)
			return errors.New("hook errors are logged only")
		}),
		authsync.WithChangeSink(authsync.ChangeSinkFunc(func(_ context.Context, e authsync.ChangeEvent) error {
			recorded = append(recorded, e)
			return nil
		})),
	)
	defer p.Close()

	p.Start(context.Background())
	out := p.Login(context.Background(), authsync.Credentials{Email: "kitchen@example.com", Password: "secret123"}, authsync.RolePartner)
	require.True(t, out.OK())

	require.Len(t, transitions, 2)
	assert.Equal(t, authsync.PhaseInitializing, transitions[0].From.Name)
	assert.Equal(t, authsync.PhaseAnonymous, transitions[0].To.Name)
	assert.Equal(t, authsync.OpLogin, transitions[1].Op)
	assert.Equal(t, authsync.PhaseAuthenticated, transitions[1].To.Name)
	assert.Equal(t, authsync.RolePartner, transitions[1].To.Role)

	require.Len(t, recorded, 1)
	assert.Equal(t, authsync.ChangeSignedIn, recorded[0].EventType)
}

func TestProviderRoleSwitchEvent(t *testing.T) {
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(userEnvelope(), nil).Once()
	gw.On("Login", mock.Anything, mock.Anything, authsync.RolePartner).Return(partnerEnvelope(), nil).Once()

	p := newTestProvider(gw)
	defer p.Close()
	p.Start(context.Background())

	userEvents, cancel := p.Changes(authsync.RoleUser)
	defer cancel()

	p.Login(context.Background(), authsync.Credentials{Email: "kitchen@example.com", Password: "secret123"}, authsync.RolePartner)

	select {
	case event := <-userEvents:
		assert.Equal(t, authsync.ChangeRoleSwitch, event.EventType)
		assert.Equal(t, authsync.RoleUser, event.From.Role)
		assert.Equal(t, authsync.RolePartner, event.To.Role)
	case <-time.After(time.Second):
		t.Fatal("user subscribers should hear about the switch")
	}
}

func TestProviderContextHelpers(t *testing.T) {
	gw := &MockGateway{}
	gw.On("WhoAmI", mock.Anything).Return(partnerEnvelope(), nil).Once()

	p := newTestProvider(gw)
	defer p.Close()
	p.Start(context.Background())

	ctx := authsync.WithProvider(context.Background(), p)
	got, ok := authsync.ProviderFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.True(t, authsync.IsAuthenticated(ctx))
	assert.True(t, authsync.HasRole(ctx, authsync.RolePartner))
	assert.False(t, authsync.HasRole(ctx, authsync.RoleUser))
}
