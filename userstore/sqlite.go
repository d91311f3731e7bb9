package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/role"
)

// SQLite is a user store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("userstore: open db: %w", err)
	}

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("userstore: %s: %w", pragma, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("userstore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT    PRIMARY KEY,
		email         TEXT    NOT NULL UNIQUE COLLATE NOCASE CHECK(length(email) > 0),
		password_hash TEXT    NOT NULL,
		role          INTEGER NOT NULL DEFAULT 0,
		disabled      INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateUser inserts a new user with a generated ID.
func (s *SQLite) CreateUser(ctx context.Context, email, passwordHash string, r role.Role) (portalguard.UserRecord, error) {
	u := portalguard.UserRecord{
		UserID:       uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         r,
	}
	if u.Email == "" {
		return portalguard.UserRecord{}, errors.New("userstore: email is required")
	}
	if !r.Valid() {
		return portalguard.UserRecord{}, fmt.Errorf("userstore: create user: %w", portalguard.ErrRoleInvalid)
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, role) VALUES (?, ?, ?, ?)",
		u.UserID, u.Email, u.PasswordHash, int(u.Role),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return portalguard.UserRecord{}, fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
		}
		return portalguard.UserRecord{}, fmt.Errorf("userstore: create user: %w", err)
	}
	return u, nil
}

// GetUserByEmail implements portalguard.UserProvider.
func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (portalguard.UserRecord, error) {
	return s.getUser(ctx, "email = ?", normalizeEmail(email))
}

// GetUserByID implements portalguard.UserProvider.
func (s *SQLite) GetUserByID(ctx context.Context, userID string) (portalguard.UserRecord, error) {
	return s.getUser(ctx, "id = ?", userID)
}

func (s *SQLite) getUser(ctx context.Context, where string, arg any) (portalguard.UserRecord, error) {
	var (
		u        portalguard.UserRecord
		roleInt  int
		disabled int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, role, disabled FROM users WHERE "+where, arg).
		Scan(&u.UserID, &u.Email, &u.PasswordHash, &roleInt, &disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return portalguard.UserRecord{}, portalguard.ErrUserNotFound
	}
	if err != nil {
		return portalguard.UserRecord{}, fmt.Errorf("userstore: get user: %w", err)
	}
	u.Role = toRole(roleInt)
	u.Disabled = disabled != 0
	return u, nil
}

// UpdatePasswordHash implements portalguard.PasswordUpgrader.
func (s *SQLite) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.exec(ctx, "update password", "UPDATE users SET password_hash = ? WHERE id = ?", hash, userID)
}

// SetDisabled toggles whether userID may log in.
func (s *SQLite) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	v := 0
	if disabled {
		v = 1
	}
	return s.exec(ctx, "set disabled", "UPDATE users SET disabled = ? WHERE id = ?", v, userID)
}

// SetRole changes a user's role.
func (s *SQLite) SetRole(ctx context.Context, userID string, r role.Role) error {
	if !r.Valid() {
		return fmt.Errorf("userstore: set role: %w", portalguard.ErrRoleInvalid)
	}
	return s.exec(ctx, "set role", "UPDATE users SET role = ? WHERE id = ?", int(r), userID)
}

// ListUsers returns every user ordered by email.
func (s *SQLite) ListUsers(ctx context.Context) ([]portalguard.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, email, password_hash, role, disabled FROM users ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("userstore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []portalguard.UserRecord
	for rows.Next() {
		var (
			u        portalguard.UserRecord
			roleInt  int
			disabled int
		)
		if err := rows.Scan(&u.UserID, &u.Email, &u.PasswordHash, &roleInt, &disabled); err != nil {
			return nil, fmt.Errorf("userstore: scan user: %w", err)
		}
		u.Role = toRole(roleInt)
		u.Disabled = disabled != 0
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLite) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("userstore: %s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return portalguard.ErrUserNotFound
	}
	return nil
}

func toRole(v int) role.Role {
	r := role.Role(v)
	if v < 0 || v > 255 || !r.Valid() {
		return role.Unknown
	}
	return r
}
