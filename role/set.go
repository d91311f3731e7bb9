package role

import "strings"

// Set is a bitset of roles. The zero value is the empty set.
type Set uint8

// Of returns a Set containing the given roles. Invalid roles are ignored.
func Of(roles ...Role) Set {
	var s Set
	for _, r := range roles {
		s = s.Add(r)
	}
	return s
}

// Any is the set of every valid role.
func Any() Set {
	return Of(All()...)
}

// Add returns s with r included. Invalid roles leave s unchanged.
func (s Set) Add(r Role) Set {
	if !r.Valid() {
		return s
	}
	return s | 1<<r
}

// Has reports whether r is a member of s.
func (s Set) Has(r Role) bool {
	if !r.Valid() {
		return false
	}
	return s&(1<<r) != 0
}

// Union returns the roles present in either set.
func (s Set) Union(other Set) Set {
	return s | other
}

// IsEmpty reports whether the set has no members.
func (s Set) IsEmpty() bool {
	return s == 0
}

// Roles lists the members of s in declaration order.
func (s Set) Roles() []Role {
	out := make([]Role, 0, roleCount)
	for _, r := range All() {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s Set) String() string {
	roles := s.Roles()
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
