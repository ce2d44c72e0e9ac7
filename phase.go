package authsync

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_SESSION_TRANSITION"

// ErrInvalidTransition is returned when a committed change does not follow the phase graph.
var ErrInvalidTransition = goerrors.New("invalid session phase transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// PhaseName enumerates the provider phases.
type PhaseName string

const (
	PhaseInitializing  PhaseName = "initializing"
	PhaseAnonymous     PhaseName = "anonymous"
	PhaseAuthenticated PhaseName = "authenticated"
)

// Phase is the provider's position in the session state machine. Transitioning
// is an overlay on top of the underlying phase, not a phase of its own.
type Phase struct {
	Name          PhaseName `json:"name"`
	Role          Role      `json:"role,omitempty"`
	Transitioning bool      `json:"transitioning"`
}

func (p Phase) String() string {
	name := string(p.Name)
	if p.Name == PhaseAuthenticated && p.Role != "" {
		name = fmt.Sprintf("%s(%s)", p.Name, p.Role)
	}
	if p.Transitioning {
		name += "+transitioning"
	}
	return name
}

// PhaseOf derives the phase from a state snapshot.
func PhaseOf(s SessionState) Phase {
	p := Phase{Transitioning: s.Checking}
	switch {
	case s.Identity != nil:
		p.Name = PhaseAuthenticated
		p.Role = s.Identity.Role
	case s.Initializing:
		p.Name = PhaseInitializing
	default:
		p.Name = PhaseAnonymous
	}
	return p
}

// TransitionContext is passed into transition hooks.
type TransitionContext struct {
	Op     OpKind
	From   Phase
	To     Phase
	Ticket Ticket
}

// TransitionHook runs after a change was committed.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// phaseGraph validates phase changes. Role changes of an authenticated
// identity are allowed (a login as partner while logged in as user).
type phaseGraph struct {
	transitions map[PhaseName]map[PhaseName]struct{}
}

func newPhaseGraph() phaseGraph {
	return phaseGraph{
		transitions: map[PhaseName]map[PhaseName]struct{}{
			PhaseInitializing: {
				PhaseAnonymous:     {},
				PhaseAuthenticated: {},
			},
			PhaseAnonymous: {
				PhaseAnonymous:     {},
				PhaseAuthenticated: {},
			},
			PhaseAuthenticated: {
				PhaseAnonymous:     {},
				PhaseAuthenticated: {},
			},
		},
	}
}

func (g phaseGraph) validate(from, to Phase) error {
	if allowed, ok := g.transitions[from.Name]; ok {
		if _, exists := allowed[to.Name]; exists {
			return nil
		}
	}
	return ErrInvalidTransition.Clone().WithMetadata(map[string]any{
		"from": from.String(),
		"to":   to.String(),
	})
}
