// Package rate implements Redis fixed-window counters for login throttling.
//
// The first hit in a window sets the key's TTL. Key prefixes:
//   - pl:  login attempts per email
//   - pli: login attempts per client IP
package rate
