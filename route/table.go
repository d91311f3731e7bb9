package route

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/uimp/portalguard/role"
)

var (
	// ErrInvalidPrefix is returned for empty or relative table entries.
	ErrInvalidPrefix = errors.New("invalid route prefix")
	// ErrUnknownRole is returned for protected buckets that name no role.
	ErrUnknownRole = errors.New("unknown role bucket")
	// ErrConflict is returned when one prefix carries incompatible
	// classifications.
	ErrConflict = errors.New("conflicting route classification")
	// ErrDashboardLockout is returned by CheckDashboards.
	ErrDashboardLockout = errors.New("role locked out of its dashboard")
)

type entry struct {
	prefix string
	exact  bool
	class  Classification
}

func (e entry) matches(p string) bool {
	if e.exact {
		return p == e.prefix
	}
	return p == e.prefix || strings.HasPrefix(p, e.prefix+"/")
}

// Table is a compiled, read-only route table. It is safe for concurrent use.
type Table struct {
	entries []entry
}

// Compile validates spec and builds a Table.
func Compile(spec Spec) (*Table, error) {
	classes := make(map[string]Classification)
	fromAll := make(map[string]bool)

	for _, raw := range spec.Public {
		p, err := normalizePrefix(raw)
		if err != nil {
			return nil, err
		}
		classes[p] = Classification{Kind: Public, Prefix: p}
	}

	buckets := make([]string, 0, len(spec.Protected))
	for name := range spec.Protected {
		buckets = append(buckets, name)
	}
	sort.Strings(buckets)

	for _, name := range buckets {
		var (
			isAll bool
			r     role.Role
		)
		if strings.EqualFold(strings.TrimSpace(name), AllBucket) {
			isAll = true
		} else {
			parsed, ok := role.Parse(name)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownRole, name)
			}
			r = parsed
		}

		for _, raw := range spec.Protected[name] {
			p, err := normalizePrefix(raw)
			if err != nil {
				return nil, err
			}

			prev, exists := classes[p]
			switch {
			case !exists:
				if isAll {
					classes[p] = Classification{Kind: RequiresAuth, Prefix: p}
					fromAll[p] = true
				} else {
					classes[p] = Classification{Kind: RequiresRole, Roles: role.Of(r), Prefix: p}
				}
			case prev.Kind == Public:
				return nil, fmt.Errorf("%w: %s is both public and protected", ErrConflict, p)
			case isAll && prev.Kind == RequiresRole, !isAll && fromAll[p]:
				return nil, fmt.Errorf("%w: %s is listed under %s and a role bucket", ErrConflict, p, AllBucket)
			case !isAll:
				prev.Roles = prev.Roles.Add(r)
				classes[p] = prev
			}
		}
	}

	t := &Table{entries: make([]entry, 0, len(classes))}
	for p, c := range classes {
		t.entries = append(t.entries, entry{prefix: p, exact: p == "/", class: c})
	}
	sort.Slice(t.entries, func(i, j int) bool {
		if len(t.entries[i].prefix) != len(t.entries[j].prefix) {
			return len(t.entries[i].prefix) > len(t.entries[j].prefix)
		}
		return t.entries[i].prefix < t.entries[j].prefix
	})

	return t, nil
}

// MustCompile is like Compile but panics on error. Intended for static tables
// built at process start.
func MustCompile(spec Spec) *Table {
	t, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return t
}

// Default returns the compiled DefaultSpec.
func Default() *Table {
	return MustCompile(DefaultSpec())
}

// Classify returns the classification of the longest matching entry, or
// RequiresAuth when nothing matches.
func (t *Table) Classify(p string) Classification {
	p = Clean(p)
	if t != nil {
		for _, e := range t.entries {
			if e.matches(p) {
				return e.class
			}
		}
	}
	return Classification{Kind: RequiresAuth}
}

// CheckDashboards reports an error wrapping ErrDashboardLockout when some role
// is not permitted on its own dashboard. Such a role would be redirected there
// forever.
func (t *Table) CheckDashboards() error {
	for _, r := range role.All() {
		dash := role.Dashboard(r)
		if c := t.Classify(dash); !c.Permits(r) {
			return fmt.Errorf("%w: %s cannot reach %s (%s)", ErrDashboardLockout, r, dash, c)
		}
	}
	return nil
}

// Entries lists the compiled classifications, longest prefix first.
func (t *Table) Entries() []Classification {
	if t == nil {
		return nil
	}
	out := make([]Classification, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.class
	}
	return out
}

// Clean normalises a request path for matching: it is made absolute, dot
// segments are resolved, and trailing slashes are dropped.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func normalizePrefix(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" || p[0] != '/' {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, raw)
	}
	return path.Clean(p), nil
}
