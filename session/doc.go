// Package session provides Redis-backed persistence for portal login sessions.
//
// # Binary encoding
//
// Sessions are stored as a compact, versioned binary blob. The first byte is the
// schema version; string fields are length-prefixed and timestamps are
// big-endian unix seconds.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does not interpret
// tokens or decide route access; those belong to the Engine.
package session
