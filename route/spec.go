package route

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// AllBucket is the protected-table key for prefixes open to any authenticated
// role.
const AllBucket = "ALL"

// Spec is the declarative form of the route tables.
//
//	public:
//	  - /
//	  - /about
//	protected:
//	  STUDENT: [/dashboard/user]
//	  ALL: [/dashboard, /profile]
type Spec struct {
	Public    []string            `yaml:"public"`
	Protected map[string][]string `yaml:"protected"`
}

// DefaultSpec returns the canonical portal route scheme. Role dashboards live
// under /dashboard; everything else under /dashboard needs any valid role.
func DefaultSpec() Spec {
	return Spec{
		Public: []string{
			"/",
			"/about",
			"/contact",
			"/login",
			"/signup",
			"/forgot-password",
			"/reset-password",
			"/privacy",
			"/terms",
			"/offline",
		},
		Protected: map[string][]string{
			"STUDENT": {"/dashboard/user"},
			"MENTOR":  {"/dashboard/mentor"},
			"ADMIN":   {"/dashboard/admin"},
			AllBucket: {
				"/dashboard",
				"/profile",
				"/settings",
				"/notifications",
				"/feedback",
				"/applications",
			},
		},
	}
}

// ParseSpec decodes a YAML route spec.
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("parse route spec: %w", err)
	}
	return spec, nil
}

// ReadSpec decodes a YAML route spec from r.
func ReadSpec(r io.Reader) (Spec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Spec{}, fmt.Errorf("read route spec: %w", err)
	}
	return ParseSpec(data)
}

// LoadFile reads and compiles a YAML route spec from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read route spec: %w", err)
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, err
	}
	return Compile(spec)
}
