// Package jwt issues and verifies the portal's signed session tokens.
//
// Tokens carry the user id, role name, email, and session id. Verification is
// strict: the signing algorithm is pinned, kid rotation is honoured, and
// issuer, audience, and future-iat bounds are enforced when configured.
package jwt
