// Package role defines the closed set of portal roles, a compact role set, and the
// canonical role-to-dashboard mapping shared by every redirect decision.
//
// # Canonical dashboards
//
// [Dashboard] is the only place a role is turned into a landing path. The edge
// decider and the client route guard both call it, so the two layers can never
// disagree about where a given role belongs.
//
// # Architecture boundaries
//
// This package is a pure in-memory value layer with no I/O. Route tables, token
// claims, and session blobs store roles through [Role.String] and [Parse].
//
// # What this package must NOT do
//
//   - Import portalguard, route, jwt, or session.
//   - Accept open-ended role strings: an unknown name never parses.
package role
