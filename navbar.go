package authsync

import (
	"context"
	"sync"
)

const (
	MessageSignedOutUser    = "Signed out of user account."
	MessageSignedOutPartner = "Signed out of partner account."
)

// Navigator moves the UI to another route.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(path string)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(path string) {
	if f != nil {
		f(path)
	}
}

// NavLink is a plain navigation entry.
type NavLink struct {
	Label  string `json:"label"`
	Href   string `json:"href"`
	Accent bool   `json:"accent,omitempty"`
}

// NavAction is a logout button scoped to a role.
type NavAction struct {
	Label string `json:"label"`
	Role  Role   `json:"role"`
}

// NavView is what the navigation bar renders.
type NavView struct {
	Brand   string      `json:"brand"`
	Links   []NavLink   `json:"links,omitempty"`
	Actions []NavAction `json:"actions,omitempty"`
	Status  string      `json:"status,omitempty"`
	Loading bool        `json:"loading"`
}

// BuildNavView derives the navigation bar from a state snapshot.
func BuildNavView(state SessionState, status string) NavView {
	view := NavView{
		Brand:   "Foodly",
		Status:  status,
		Loading: state.Loading(),
	}

	if !state.IsAuthenticated() {
		view.Links = []NavLink{
			{Label: "Login", Href: "/user/login"},
			{Label: "Register", Href: "/user/register"},
			{Label: "Become a Partner", Href: "/partner/register", Accent: true},
		}
		return view
	}

	switch state.Role() {
	case RolePartner:
		view.Actions = []NavAction{{Label: "Logout (Partner)", Role: RolePartner}}
	default:
		view.Actions = []NavAction{{Label: "Logout (User)", Role: RoleUser}}
	}
	return view
}

// Navbar is the navigation bar consumer. It renders from provider updates,
// logs out through the provider and owns its transient status banner.
type Navbar struct {
	provider *Provider
	navigate Navigator
	banner   *StatusBanner

	ctx    context.Context
	cancel context.CancelFunc

	unsubscribe func()

	mu       sync.Mutex
	view     NavView
	onRender func(NavView)
}

// NavbarOption customizes the navbar.
type NavbarOption func(*Navbar)

// WithNavbarRender is called with every new view.
func WithNavbarRender(fn func(NavView)) NavbarOption {
	return func(n *Navbar) {
		n.onRender = fn
	}
}

// WithNavbarStatus passes options to the status banner.
func WithNavbarStatus(opts ...StatusOption) NavbarOption {
	return func(n *Navbar) {
		n.banner = NewStatusBanner(append(opts, WithStatusListener(n.statusChanged))...)
	}
}

// NewNavbar mounts a navbar on provider. Close unmounts it.
func NewNavbar(ctx context.Context, provider *Provider, navigate Navigator, opts ...NavbarOption) *Navbar {
	if navigate == nil {
		navigate = NavigatorFunc(nil)
	}

	n := &Navbar{
		provider: provider,
		navigate: navigate,
	}
	n.ctx, n.cancel = context.WithCancel(ctx)

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	if n.banner == nil {
		n.banner = NewStatusBanner(WithStatusListener(n.statusChanged))
	}

	n.view = BuildNavView(provider.State(), "")
	n.unsubscribe = provider.Subscribe(func(s SessionState) {
		n.render(s, n.banner.Message())
	})
	return n
}

// View returns the current view.
func (n *Navbar) View() NavView {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view
}

// Status returns the transient message currently shown.
func (n *Navbar) Status() string {
	return n.banner.Message()
}

// LogoutUser signs the user account out and returns to the home page.
func (n *Navbar) LogoutUser() Outcome {
	return n.logout(RoleUser, MessageSignedOutUser, "/")
}

// LogoutPartner signs the partner account out and goes to the partner login.
func (n *Navbar) LogoutPartner() Outcome {
	return n.logout(RolePartner, MessageSignedOutPartner, "/partner/login")
}

// Close unmounts the navbar: pending calls are cancelled and the banner
// timer is stopped.
func (n *Navbar) Close() {
	n.cancel()
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
	n.banner.Close()
}

func (n *Navbar) logout(role Role, success, destination string) Outcome {
	n.banner.Clear()

	out := n.provider.Logout(n.ctx, role)
	if n.ctx.Err() != nil || IsCancelled(out.Err) {
		return out
	}

	if out.Err != nil {
		n.banner.Show(out.Message)
		return out
	}

	n.banner.Show(success)
	n.navigate.Navigate(destination)
	return out
}

func (n *Navbar) statusChanged(message string) {
	n.render(n.provider.State(), message)
}

func (n *Navbar) render(state SessionState, status string) {
	view := BuildNavView(state, status)

	n.mu.Lock()
	n.view = view
	onRender := n.onRender
	n.mu.Unlock()

	if onRender != nil {
		onRender(view)
	}
}
