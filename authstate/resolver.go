package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/uimp/portalguard"
)

// Resolver answers who the current caller is. A nil identity with a nil
// error means signed out.
type Resolver interface {
	WhoAmI(ctx context.Context) (*portalguard.Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) (*portalguard.Identity, error)

// WhoAmI calls f.
func (f ResolverFunc) WhoAmI(ctx context.Context) (*portalguard.Identity, error) {
	return f(ctx)
}

// TokenVerifier is the part of portalguard.Engine a VerifierResolver needs.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) portalguard.Verification
}

// VerifierResolver resolves identity in-process from a token.
type VerifierResolver struct {
	Verifier TokenVerifier
	Token    func() string
}

// WhoAmI verifies the current token.
func (r VerifierResolver) WhoAmI(ctx context.Context) (*portalguard.Identity, error) {
	if r.Verifier == nil || r.Token == nil {
		return nil, errors.New("authstate: verifier resolver not configured")
	}
	v := r.Verifier.Verify(ctx, r.Token())
	if !v.Valid {
		return nil, nil
	}
	return &v.User, nil
}

// ErrUnexpectedStatus is returned by HTTPResolver for responses other than
// 200 and 401.
var ErrUnexpectedStatus = errors.New("authstate: unexpected whoami status")

// HTTPResolver asks a portal's GET /api/auth/me endpoint.
type HTTPResolver struct {
	BaseURL    string
	Client     *http.Client
	CookieName string
	Token      func() string
}

type meResponse struct {
	User *portalguard.Identity `json:"user"`
}

// WhoAmI performs the request. 401 means signed out.
func (r HTTPResolver) WhoAmI(ctx context.Context) (*portalguard.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(r.BaseURL, "/")+"/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	if r.Token != nil {
		if tok := r.Token(); tok != "" {
			name := r.CookieName
			if name == "" {
				name = portalguard.DefaultCookieName
			}
			req.AddCookie(&http.Cookie{Name: name, Value: tok})
		}
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body meResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode whoami: %w", err)
	}
	return body.User, nil
}
