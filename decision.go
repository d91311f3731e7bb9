package portalguard

import (
	"net/http"

	"github.com/uimp/portalguard/route"
)

// Action is what the edge does with a request.
type Action uint8

const (
	// ActionRedirect sends the visitor to Decision.Location. It is the zero
	// value so an unset Decision never admits anyone.
	ActionRedirect Action = iota
	// ActionAllow serves the requested page.
	ActionAllow
)

func (a Action) String() string {
	if a == ActionAllow {
		return "allow"
	}
	return "redirect"
}

// Reason explains a Decision.
type Reason uint8

const (
	ReasonUnauthenticated Reason = iota
	ReasonPublic
	ReasonAuthorized
	ReasonUnauthorized
	ReasonAlreadyAuthenticated
)

func (r Reason) String() string {
	switch r {
	case ReasonPublic:
		return "public"
	case ReasonAuthorized:
		return "authorized"
	case ReasonUnauthorized:
		return "unauthorized"
	case ReasonAlreadyAuthenticated:
		return "already_authenticated"
	default:
		return "unauthenticated"
	}
}

// Identity response headers set on an authorized Allow.
const (
	HeaderUserID    = "x-user-id"
	HeaderUserRole  = "x-user-role"
	HeaderUserEmail = "x-user-email"
)

// Decision is the per-request outcome of [Engine.Decide].
type Decision struct {
	Action   Action
	Location string
	Reason   Reason
	// Identity is set only for ReasonAuthorized.
	Identity       *Identity
	Classification route.Classification
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Headers returns the identity headers for an authorized Allow, or nil.
func (d Decision) Headers() http.Header {
	if d.Action != ActionAllow || d.Identity == nil {
		return nil
	}
	h := make(http.Header, 3)
	h.Set(HeaderUserID, d.Identity.ID)
	h.Set(HeaderUserRole, d.Identity.Role.String())
	h.Set(HeaderUserEmail, d.Identity.Email)
	return h
}

func allow(reason Reason, class route.Classification, id *Identity) Decision {
	return Decision{Action: ActionAllow, Reason: reason, Identity: id, Classification: class}
}

func redirect(location string, reason Reason, class route.Classification) Decision {
	return Decision{Action: ActionRedirect, Location: location, Reason: reason, Classification: class}
}
