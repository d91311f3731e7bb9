package role

import "strings"

// Role is a closed enumeration of portal user categories.
//
// The zero value is Unknown and is never granted access to a protected route.
type Role uint8

const (
	// Unknown is the zero Role. It maps to the public home page.
	Unknown Role = iota
	// Student is a portal student (applicant).
	Student
	// Mentor is a portal mentor.
	Mentor
	// Admin is a portal administrator.
	Admin

	roleCount
)

var names = [roleCount]string{
	Unknown: "UNKNOWN",
	Student: "STUDENT",
	Mentor:  "MENTOR",
	Admin:   "ADMIN",
}

// All returns every valid role in declaration order.
func All() []Role {
	return []Role{Student, Mentor, Admin}
}

// Parse converts a role name to a Role. Matching ignores case and surrounding
// whitespace. Unknown names return (Unknown, false).
func Parse(name string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "STUDENT":
		return Student, true
	case "MENTOR":
		return Mentor, true
	case "ADMIN":
		return Admin, true
	default:
		return Unknown, false
	}
}

// Valid reports whether r is one of Student, Mentor, or Admin.
func (r Role) Valid() bool {
	return r > Unknown && r < roleCount
}

func (r Role) String() string {
	if r >= roleCount {
		return names[Unknown]
	}
	return names[r]
}

// MarshalText encodes the role by canonical name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a canonical role name. Unknown names decode to Unknown
// without error so that stale records fail closed at authorization time rather
// than at load time.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, _ := Parse(string(text))
	*r = parsed
	return nil
}
