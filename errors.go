package portalguard

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by a UserProvider for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginRateLimited is returned when the login attempt budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrAccountDisabled is returned when a disabled user presents valid credentials.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrRoleInvalid is returned when a user record carries no valid role.
	ErrRoleInvalid = errors.New("user role invalid")
	// ErrSessionCreationFailed is returned when a session cannot be persisted.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrTokenInvalid is returned by operations that require a verifiable token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrEngineNotReady is returned when an operation needs a dependency the
	// engine was built without.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrRedisUnavailable wraps Redis failures surfaced by login and logout.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUserStoreUnavailable wraps UserProvider failures other than not-found.
	ErrUserStoreUnavailable = errors.New("user store unavailable")
)
