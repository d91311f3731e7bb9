package session

// Session is the server-side record behind a signed token.
type Session struct {
	SchemaVersion uint8
	SessionID     string
	UserID        string
	Email         string
	Role          uint8

	CreatedAt int64
	ExpiresAt int64
}
