// Package portalguard decides, per request, whether a portal page may be
// served or which page the visitor must be redirected to instead.
//
// An [Engine] combines three inputs: a verified session token, the compiled
// route table from package route, and the role-to-dashboard mapping in
// package role. [Engine.Decide] returns a [Decision] that is either Allow
// (optionally carrying the verified [Identity]) or Redirect with a target.
// Decisions never surface errors; every verification failure is treated as an
// unauthenticated visitor.
//
// The engine also owns the login flow that creates the tokens it verifies:
// credential checks against a [UserProvider], argon2id password hashing,
// Redis-backed sessions, and login throttling.
//
// # Validation modes
//
// [ModeJWTOnly] verifies tokens without I/O. [ModeStrict] additionally checks
// that the session behind the token still exists in Redis, so logout takes
// effect immediately. A Redis failure in strict mode denies access.
//
// # Concurrency
//
// An Engine is immutable after [Builder.Build] and safe for concurrent use.
package portalguard
