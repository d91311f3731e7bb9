// Package authstate holds the client-side view of who is signed in.
//
// A [Store] has a single logical writer: every update replaces the whole
// [Snapshot], so readers never observe a half-applied change. Readers call
// [Store.Watch] to get the current snapshot together with a channel that is
// closed on the next replacement.
package authstate
