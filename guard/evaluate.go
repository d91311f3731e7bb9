package guard

import (
	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/authstate"
	"github.com/uimp/portalguard/role"
	"github.com/uimp/portalguard/route"
)

// State is where a guarded page sits in the guard state machine.
type State uint8

const (
	// StateChecking waits for the auth state to resolve.
	StateChecking State = iota
	// StateUnauthenticated navigates to the login page.
	StateUnauthenticated
	// StateForbidden navigates to the user's own dashboard.
	StateForbidden
	// StateAuthorized renders the page.
	StateAuthorized
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateForbidden:
		return "forbidden"
	case StateAuthorized:
		return "authorized"
	default:
		return "checking"
	}
}

// AccessDenied is the advisory message shown while a forbidden page redirects.
const AccessDenied = "Access Denied"

// Options describes what a guarded page requires.
type Options struct {
	RequireAuth bool
	// Allowed restricts the page to these roles. A non-empty set implies
	// RequireAuth.
	Allowed role.Set
	// Path is the page path restored after login.
	Path string
}

// OptionsFor derives guard options for path from the same route table the
// edge uses.
func OptionsFor(t *route.Table, path string) Options {
	c := t.Classify(path)
	opts := Options{Path: route.Clean(path)}
	switch c.Kind {
	case route.Public:
	case route.RequiresRole:
		opts.RequireAuth = true
		opts.Allowed = c.Roles
	default:
		opts.RequireAuth = true
	}
	return opts
}

// Outcome is the result of evaluating a snapshot.
type Outcome struct {
	State State
	// Target is the navigation destination, set for Unauthenticated and Forbidden.
	Target string
	// Message is the advisory fallback text, if any.
	Message string
}

// Render reports whether the page content may be shown.
func (o Outcome) Render() bool {
	return o.State == StateAuthorized
}

// Evaluate maps snap to an Outcome for a page guarded by opts.
func Evaluate(opts Options, snap authstate.Snapshot) Outcome {
	if snap.IsLoading {
		return Outcome{State: StateChecking}
	}

	authed := snap.IsAuthenticated && snap.User != nil && snap.User.Role.Valid()
	if !authed {
		if opts.RequireAuth || !opts.Allowed.IsEmpty() {
			return Outcome{State: StateUnauthenticated, Target: portalguard.LoginURL(opts.Path)}
		}
		return Outcome{State: StateAuthorized}
	}

	if !opts.Allowed.IsEmpty() && !opts.Allowed.Has(snap.User.Role) {
		return Outcome{
			State:   StateForbidden,
			Target:  role.Dashboard(snap.User.Role),
			Message: AccessDenied,
		}
	}
	return Outcome{State: StateAuthorized}
}
