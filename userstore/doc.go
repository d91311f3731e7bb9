// Package userstore provides portalguard.UserProvider implementations: an
// in-memory store seeded from YAML for development, and a SQLite store.
package userstore
