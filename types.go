package portalguard

import (
	"context"
	"time"

	"github.com/uimp/portalguard/role"
)

// Identity is the verified caller attached to an allowed request.
type Identity struct {
	ID    string    `json:"id"`
	Role  role.Role `json:"role"`
	Email string    `json:"email"`
}

// Verification is the result of [Engine.Verify]. The zero value is an invalid
// verification.
type Verification struct {
	Valid     bool
	User      Identity
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserRecord is what a [UserProvider] returns for login.
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         role.Role
	Disabled     bool
}

// UserProvider looks up portal users. Implementations return an error
// wrapping [ErrUserNotFound] for unknown users.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// PasswordUpgrader is optionally implemented by a [UserProvider] that can
// persist a re-hashed password after a successful login.
type PasswordUpgrader interface {
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// LoginResult is returned by a successful [Engine.Login].
type LoginResult struct {
	Token     string
	Identity  Identity
	SessionID string
	ExpiresAt time.Time
}
