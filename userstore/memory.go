package userstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/role"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateEmail is returned when a user with the same email exists.
var ErrDuplicateEmail = errors.New("userstore: email already registered")

// Seed is the YAML form of a user list.
//
//	users:
//	  - email: mentor@uimp.dev
//	    password_hash: $argon2id$v=19$...
//	    role: MENTOR
type Seed struct {
	Users []SeedUser `yaml:"users"`
}

// SeedUser is one seeded account. An empty ID gets a generated UUID.
type SeedUser struct {
	ID           string    `yaml:"id"`
	Email        string    `yaml:"email"`
	PasswordHash string    `yaml:"password_hash"`
	Role         role.Role `yaml:"role"`
	Disabled     bool      `yaml:"disabled"`
}

// Memory is a concurrency-safe in-memory user store.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]portalguard.UserRecord
	byEmail map[string]string
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]portalguard.UserRecord),
		byEmail: make(map[string]string),
	}
}

// LoadMemory reads a YAML seed from r.
func LoadMemory(r io.Reader) (*Memory, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("userstore: parse seed: %w", err)
	}
	m := NewMemory()
	for i, u := range seed.Users {
		if _, err := m.Add(portalguard.UserRecord{
			UserID:       u.ID,
			Email:        u.Email,
			PasswordHash: u.PasswordHash,
			Role:         u.Role,
			Disabled:     u.Disabled,
		}); err != nil {
			return nil, fmt.Errorf("userstore: seed user %d: %w", i, err)
		}
	}
	return m, nil
}

// LoadMemoryFile reads a YAML seed file.
func LoadMemoryFile(path string) (*Memory, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("userstore: open seed: %w", err)
	}
	defer f.Close()
	return LoadMemory(f)
}

// Add stores u and returns it with its ID filled in.
func (m *Memory) Add(u portalguard.UserRecord) (portalguard.UserRecord, error) {
	u.Email = normalizeEmail(u.Email)
	if u.Email == "" {
		return portalguard.UserRecord{}, errors.New("userstore: email is required")
	}
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return portalguard.UserRecord{}, fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
	}
	if _, ok := m.byID[u.UserID]; ok {
		return portalguard.UserRecord{}, fmt.Errorf("userstore: duplicate id %s", u.UserID)
	}
	m.byID[u.UserID] = u
	m.byEmail[u.Email] = u.UserID
	return u, nil
}

// GetUserByEmail implements portalguard.UserProvider.
func (m *Memory) GetUserByEmail(_ context.Context, email string) (portalguard.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return portalguard.UserRecord{}, portalguard.ErrUserNotFound
	}
	return m.byID[id], nil
}

// GetUserByID implements portalguard.UserProvider.
func (m *Memory) GetUserByID(_ context.Context, userID string) (portalguard.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[userID]
	if !ok {
		return portalguard.UserRecord{}, portalguard.ErrUserNotFound
	}
	return u, nil
}

// UpdatePasswordHash implements portalguard.PasswordUpgrader.
func (m *Memory) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return m.update(userID, func(u *portalguard.UserRecord) { u.PasswordHash = hash })
}

// SetDisabled toggles whether userID may log in.
func (m *Memory) SetDisabled(_ context.Context, userID string, disabled bool) error {
	return m.update(userID, func(u *portalguard.UserRecord) { u.Disabled = disabled })
}

// Len returns the number of stored users.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func (m *Memory) update(userID string, fn func(*portalguard.UserRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return portalguard.ErrUserNotFound
	}
	fn(&u)
	m.byID[userID] = u
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
