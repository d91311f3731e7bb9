// Package guard is the client-side second check that runs after a page has
// mounted.
//
// [Evaluate] maps an auth snapshot to an [Outcome] without side effects. A
// [Guard] owns one mounted page: it feeds snapshots from an authstate.Store
// through Evaluate and issues at most one navigation per distinct target.
// Targets come from portalguard.LoginURL and role.Dashboard, the same
// functions the edge uses, so the two layers never disagree.
package guard
