// Package middleware adapts portalguard.Engine to net/http.
//
// # Handlers
//
//   - [Edge] runs the route decision for every navigable request and either
//     redirects or passes the request through with the verified identity.
//   - [RequireIdentity] guards API handlers, answering 401 instead of
//     redirecting.
//   - [ClientIP] records the caller address for login throttling and audit.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token parsing,
// session lookup, and route classification all stay in the Engine.
package middleware
