package authsync

import (
	"context"
	"strings"
)

// MessageMissingPartnerEmail is shown on the dashboard when no partner email is remembered.
const MessageMissingPartnerEmail = "Missing partner email."

// DecisionKind is the outcome of a route check.
type DecisionKind string

const (
	DecisionAllow    DecisionKind = "allow"
	DecisionWait     DecisionKind = "wait"
	DecisionRedirect DecisionKind = "redirect"
)

// Decision tells a route view what to do.
type Decision struct {
	Kind     DecisionKind `json:"kind"`
	Redirect string       `json:"redirect,omitempty"`
	// Notice is a message the view shows even though it renders.
	Notice string `json:"notice,omitempty"`
	// PartnerEmail is the remembered partner email on dashboard routes.
	PartnerEmail string `json:"partnerEmail,omitempty"`
}

// RouteGuard gates the application routes on the session.
type RouteGuard struct {
	provider *Provider
}

// NewRouteGuard creates a guard reading from provider.
func NewRouteGuard(provider *Provider) *RouteGuard {
	return &RouteGuard{provider: provider}
}

// Check decides whether path can render for the current session.
func (g *RouteGuard) Check(ctx context.Context, path string) Decision {
	state := g.provider.State()
	path = normalizePath(path)

	if !isDashboardRoute(path) {
		return Decision{Kind: DecisionAllow}
	}

	if state.Initializing {
		return Decision{Kind: DecisionWait}
	}
	if !state.IsAuthenticated() {
		return Decision{Kind: DecisionRedirect, Redirect: "/partner/login"}
	}
	if !state.Role().CanManageMenu() {
		return Decision{Kind: DecisionRedirect, Redirect: "/"}
	}

	email, ok, err := g.provider.Hints().Get(ctx, HintPartnerEmail)
	if err != nil || !ok || email == "" {
		email = state.Identity.Email
	}
	if email == "" {
		return Decision{Kind: DecisionAllow, Notice: MessageMissingPartnerEmail}
	}
	return Decision{Kind: DecisionAllow, PartnerEmail: email}
}

// ShowFeed reports whether the home page loads the reel feed: only for
// signed in user accounts.
func (g *RouteGuard) ShowFeed() bool {
	state := g.provider.State()
	return state.IsAuthenticated() && state.Role().CanBrowseFeed()
}

func isDashboardRoute(path string) bool {
	return path == "/dashboard" || strings.HasPrefix(path, "/dashboard/")
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
