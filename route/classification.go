package route

import "github.com/uimp/portalguard/role"

// Kind is the access category of a route.
//
// The zero Kind is RequiresAuth so that an uninitialised Classification fails
// closed.
type Kind uint8

const (
	// RequiresAuth admits any authenticated user with a valid role.
	RequiresAuth Kind = iota
	// Public admits anonymous visitors.
	Public
	// RequiresRole admits authenticated users whose role is in the entry's set.
	RequiresRole
)

func (k Kind) String() string {
	switch k {
	case Public:
		return "public"
	case RequiresRole:
		return "requires-role"
	default:
		return "requires-auth"
	}
}

// Classification is the result of classifying one path.
type Classification struct {
	Kind  Kind
	Roles role.Set
	// Prefix is the table entry that matched, or empty for the fail-closed
	// default.
	Prefix string
}

// IsPublic reports whether the route admits anonymous visitors.
func (c Classification) IsPublic() bool {
	return c.Kind == Public
}

// Permits reports whether a caller holding r may access the route. Public
// routes permit everyone, including Unknown.
func (c Classification) Permits(r role.Role) bool {
	switch c.Kind {
	case Public:
		return true
	case RequiresRole:
		return c.Roles.Has(r)
	default:
		return r.Valid()
	}
}

func (c Classification) String() string {
	if c.Kind == RequiresRole {
		return c.Kind.String() + c.Roles.String()
	}
	return c.Kind.String()
}
