// Package route classifies request paths against the portal's static route
// tables using longest-prefix matching.
//
// # Tables
//
// A [Spec] carries the two logical tables: a public path list and a protected
// map from role name (or the "ALL" bucket) to path prefixes. [Compile] turns a
// Spec into an immutable [Table]; conflicting entries are rejected at compile
// time instead of being resolved by match order.
//
// # Matching rules
//
//   - Prefixes match on path-segment boundaries: /dashboard/user matches
//     /dashboard/user and /dashboard/user/applications, never /dashboard/username.
//   - The root entry "/" matches only the root path.
//   - The longest matching prefix wins.
//   - A path that matches nothing is [RequiresAuth] (fail closed).
//
// # What this package must NOT do
//
//   - Mutate a compiled Table.
//   - Verify tokens or issue redirects; callers combine a Classification with
//     an identity.
package route
