package authsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	messageLoginFailure    = "Unable to sign in. Please try again."
	messageRegisterUser    = "Unable to register. Please try again."
	messageRegisterPartner = "Unable to register partner. Please try again."
	messageAccountLoad     = "Signed in, but unable to load your account."
)

// Outcome is what a Provider operation hands back to the consumer that
// started it: the identity now in the store (if any) and a transient message
// to display. Err is kept for callers that want to branch on Classify.
type Outcome struct {
	Identity *Identity
	Message  string
	Err      error
	// Stale is set when a newer operation superseded this one.
	Stale bool
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil && !o.Stale
}

// Provider owns the SessionStore and is its only writer. Consumers read
// snapshots and call the operations below; no method panics or returns a raw
// transport error without a classified Outcome.
type Provider struct {
	store       *SessionStore
	gateway     Gateway
	hints       HintStore
	broadcaster *Broadcaster
	sink        ChangeSink
	graph       phaseGraph
	hooks       []TransitionHook

	logger         Logger
	loggerProvider LoggerProvider

	logouts     singleflight.Group
	logoutCalls map[string]*logoutCall
	now         func() time.Time
	newID       func() string

	mu     sync.Mutex
	mount  context.Context
	cancel context.CancelFunc
}

// ProviderOption customizes the provider.
type ProviderOption func(*Provider)

// WithProviderStore uses store instead of a fresh one.
func WithProviderStore(store *SessionStore) ProviderOption {
	return func(p *Provider) {
		if store != nil {
			p.store = store
		}
	}
}

// WithProviderHints sets the hint store read by consumers such as the dashboard guard.
func WithProviderHints(hints HintStore) ProviderOption {
	return func(p *Provider) {
		if hints != nil {
			p.hints = hints
		}
	}
}

// WithChangeSink forwards every broadcast event to sink, best effort.
func WithChangeSink(sink ChangeSink) ProviderOption {
	return func(p *Provider) {
		p.sink = normalizeChangeSink(sink)
	}
}

// WithTransitionHook adds a hook executed after each committed change.
func WithTransitionHook(h TransitionHook) ProviderOption {
	return func(p *Provider) {
		if h != nil {
			p.hooks = append(p.hooks, h)
		}
	}
}

// WithProviderLogger sets the logger.
func WithProviderLogger(logger Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLoggerProvider resolves the provider logger by name.
func WithLoggerProvider(provider LoggerProvider) ProviderOption {
	return func(p *Provider) {
		p.loggerProvider = provider
	}
}

// WithProviderClock injects a custom clock (useful for tests).
func WithProviderClock(clock func() time.Time) ProviderOption {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// NewProvider wires gateway into a new provider.
func NewProvider(gateway Gateway, opts ...ProviderOption) *Provider {
	p := &Provider{
		gateway:     gateway,
		hints:       NewMemoryHints(),
		broadcaster: NewBroadcaster(16),
		sink:        noopChangeSink{},
		graph:       newPhaseGraph(),
		logoutCalls: map[string]*logoutCall{},
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	if p.store == nil {
		p.store = NewSessionStore(WithStoreClock(p.now))
	}
	p.loggerProvider, p.logger = ResolveLogger("authsync.provider", p.loggerProvider, p.logger)

	return p
}

// Start mounts the provider: it issues the initial identity check and keeps
// a context that Close cancels.
func (p *Provider) Start(ctx context.Context) Outcome {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mount, p.cancel = context.WithCancel(ctx)
	mount := p.mount
	p.mu.Unlock()

	return p.Refresh(mount)
}

// Close cancels every call made with the mount context and closes the broadcast.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.broadcaster.Close()
}

// Store exposes the read side of the session store.
func (p *Provider) Store() *SessionStore {
	return p.store
}

// Hints exposes the hint store.
func (p *Provider) Hints() HintStore {
	return p.hints
}

// State returns the current snapshot.
func (p *Provider) State() SessionState {
	return p.store.State()
}

// Phase returns the current phase.
func (p *Provider) Phase() Phase {
	return PhaseOf(p.store.State())
}

// Subscribe is notified on every state change.
func (p *Provider) Subscribe(fn Listener) func() {
	return p.store.Subscribe(fn)
}

// Changes subscribes to authentication change events for role, or every
// role when role is empty.
func (p *Provider) Changes(role Role) (<-chan ChangeEvent, func()) {
	return p.broadcaster.Subscribe(role)
}

// Refresh asks the backend who is logged in. Any failure resolves to
// anonymous without a message, it is the expected state for visitors.
func (p *Provider) Refresh(ctx context.Context) Outcome {
	t := p.store.Begin(OpRefresh)
	defer p.store.Settle(t)

	env, err := p.gateway.WhoAmI(ctx)
	if err != nil {
		if IsCancelled(err) {
			return Outcome{Err: err}
		}
		p.logger.Debug("identity check failed, treating as anonymous: %v", err)
		if !p.commit(ctx, t, nil) {
			return Outcome{Stale: true}
		}
		return Outcome{}
	}

	identity := NewIdentity(env.User, env)
	if !p.commit(ctx, t, identity) {
		return Outcome{Stale: true}
	}
	return Outcome{Identity: identity}
}

// Login signs in with role. The identity in the response is used right away,
// when the response has none exactly one identity check follows.
func (p *Provider) Login(ctx context.Context, creds Credentials, role Role) Outcome {
	if err := creds.Validate(); err != nil {
		return Outcome{Err: err, Message: UserMessage(err, messageLoginFailure)}
	}

	t := p.store.Begin(OpLogin)
	defer p.store.Settle(t)

	env, err := p.gateway.Login(ctx, creds, role)
	if err != nil {
		return p.failed(err, messageLoginFailure)
	}
	return p.settleIdentity(ctx, t, env)
}

// RegisterUser creates a user account and signs it in.
func (p *Provider) RegisterUser(ctx context.Context, payload UserRegistration) Outcome {
	if err := payload.Validate(); err != nil {
		return Outcome{Err: err, Message: UserMessage(err, messageRegisterUser)}
	}

	t := p.store.Begin(OpRegister)
	defer p.store.Settle(t)

	env, err := p.gateway.RegisterUser(ctx, payload)
	if err != nil {
		return p.failed(err, messageRegisterUser)
	}
	return p.settleIdentity(ctx, t, env)
}

// RegisterPartner creates a partner account and signs it in. Nothing is sent
// when the payload is invalid, a missing avatar included.
func (p *Provider) RegisterPartner(ctx context.Context, payload PartnerRegistration) Outcome {
	if err := payload.Validate(); err != nil {
		return Outcome{Err: err, Message: UserMessage(err, messageRegisterPartner)}
	}

	t := p.store.Begin(OpRegister)
	defer p.store.Settle(t)

	env, err := p.gateway.RegisterPartner(ctx, payload)
	if err != nil {
		return p.failed(err, messageRegisterPartner)
	}
	return p.settleIdentity(ctx, t, env)
}

// SetIdentity injects an identity known from elsewhere. roleHint wins over
// structural inference when set. A nil raw signs out locally.
func (p *Provider) SetIdentity(raw *RawUser, roleHint Role) Outcome {
	t := p.store.Begin(OpInject)
	defer p.store.Settle(t)

	identity := NewIdentity(raw, Envelope{AccountType: string(roleHint)})
	if !p.commit(context.Background(), t, identity) {
		return Outcome{Stale: true}
	}
	return Outcome{Identity: identity}
}

// Logout ends the session of role. On failure the identity is kept and the
// outcome carries the message to show. Concurrent logouts of the same role
// share one request; a caller whose ctx ends stops waiting for it, and the
// request itself is cancelled once no caller waits or the provider closes.
func (p *Provider) Logout(ctx context.Context, role Role) Outcome {
	key := "logout:" + string(role)
	call := p.joinLogout(ctx, key)
	defer p.leaveLogout(key, call)

	results := p.logouts.DoChan(key, func() (any, error) {
		return p.logout(call.ctx, role), nil
	})

	select {
	case res := <-results:
		return res.Val.(Outcome)
	case <-ctx.Done():
		return Outcome{Err: newFailure(ErrCancelled, "", ctx.Err(), map[string]any{"operation": "logout"})}
	}
}

// logoutCall is the context shared by every caller waiting on one logout.
type logoutCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stop    func() bool
	waiters int
}

func (p *Provider) joinLogout(ctx context.Context, key string) *logoutCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	if call, ok := p.logoutCalls[key]; ok {
		call.waiters++
		return call
	}

	shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
	call := &logoutCall{ctx: shared, cancel: cancel, stop: func() bool { return false }, waiters: 1}
	if p.mount != nil {
		call.stop = context.AfterFunc(p.mount, cancel)
	}
	p.logoutCalls[key] = call
	return call
}

func (p *Provider) leaveLogout(key string, call *logoutCall) {
	p.mu.Lock()
	defer p.mu.Unlock()

	call.waiters--
	if call.waiters > 0 {
		return
	}
	call.stop()
	call.cancel()
	if p.logoutCalls[key] == call {
		delete(p.logoutCalls, key)
	}
}

func (p *Provider) logout(ctx context.Context, role Role) Outcome {
	t := p.store.Begin(OpLogout)
	defer p.store.Settle(t)

	if err := p.gateway.Logout(ctx, role); err != nil {
		if IsCancelled(err) {
			return Outcome{Err: err}
		}
		p.logger.Warn("logout failed kind=%s: %v", Classify(err), err)
		return Outcome{
			Identity: p.store.State().Identity,
			Err:      err,
			Message:  UserMessage(err, MessageLogoutFailure),
		}
	}

	if !p.commit(ctx, t, nil) {
		return Outcome{Stale: true}
	}
	return Outcome{}
}

func (p *Provider) settleIdentity(ctx context.Context, t Ticket, env Envelope) Outcome {
	if env.User != nil {
		identity := NewIdentity(env.User, env)
		if !p.commit(ctx, t, identity) {
			return Outcome{Stale: true}
		}
		return Outcome{Identity: identity}
	}

	me, err := p.gateway.WhoAmI(ctx)
	if err != nil {
		if IsCancelled(err) {
			return Outcome{Err: err}
		}
		if !p.commit(ctx, t, nil) {
			return Outcome{Stale: true}
		}
		return Outcome{Err: err, Message: UserMessage(err, messageAccountLoad)}
	}

	hinted := me
	if hinted.AccountType == "" && hinted.Role == "" {
		hinted.AccountType = env.AccountType
		hinted.Role = env.Role
	}
	identity := NewIdentity(me.User, hinted)
	if !p.commit(ctx, t, identity) {
		return Outcome{Stale: true}
	}
	return Outcome{Identity: identity}
}

func (p *Provider) failed(err error, fallback string) Outcome {
	if IsCancelled(err) {
		return Outcome{Err: err}
	}
	p.logger.Debug("auth call failed kind=%s: %v", Classify(err), err)
	return Outcome{Err: err, Message: UserMessage(err, fallback)}
}

// commit applies identity through the staleness guard, then validates the
// phase change, runs hooks and broadcasts.
func (p *Provider) commit(ctx context.Context, t Ticket, identity *Identity) bool {
	before, after, ok := p.store.CommitChange(t, identity)
	if !ok {
		p.logger.Debug("discarding stale %s result seq=%d", t.Kind, t.Seq)
		return false
	}

	from := PhaseOf(before)
	to := PhaseOf(after)
	from.Transitioning, to.Transitioning = false, false

	if err := p.graph.validate(from, to); err != nil {
		p.logger.Warn("unexpected session transition: %v", err)
	}

	tc := TransitionContext{Op: t.Kind, From: from, To: to, Ticket: t}
	for _, hook := range p.hooks {
		if err := hook(ctx, tc); err != nil {
			p.logger.Warn("transition hook error: %v", err)
		}
	}

	if event, ok := p.changeEvent(before, after, tc); ok {
		if dropped := p.broadcaster.Publish(event); dropped > 0 {
			p.logger.Warn("%d subscribers missed %s", dropped, event.EventType)
		}
		if err := p.sink.Record(ctx, event); err != nil {
			p.logger.Warn("change sink error: %v", err)
		}
	}

	return true
}

func (p *Provider) changeEvent(before, after SessionState, tc TransitionContext) (ChangeEvent, bool) {
	event := ChangeEvent{
		ID:         p.newID(),
		Op:         tc.Op,
		Identity:   after.Identity,
		From:       tc.From,
		To:         tc.To,
		OccurredAt: p.now(),
	}

	switch {
	case before.Identity == nil && after.Identity != nil:
		event.EventType = ChangeSignedIn
		event.Role = after.Identity.Role
	case before.Identity != nil && after.Identity == nil:
		event.EventType = ChangeSignedOut
		event.Role = before.Identity.Role
	case before.Identity != nil && after.Identity != nil && before.Identity.Role != after.Identity.Role:
		event.EventType = ChangeRoleSwitch
		event.Role = after.Identity.Role
	case before.Identity != nil && after.Identity != nil && before.Identity.ID != after.Identity.ID:
		event.EventType = ChangeRefreshed
		event.Role = after.Identity.Role
	default:
		return ChangeEvent{}, false
	}

	return event, true
}
