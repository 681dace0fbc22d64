// Package provider defines the contract implemented by the per-provider
// HTTP clients (authorization, token and resource endpoints). Clients are
// stateless: one instance per provider, credentials always passed in.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Token is a provider token response, normalized.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// Identity is profile metadata captured during the exchange, when the
// provider exposes one (Google id_token). Zero value when it does not.
type Identity struct {
	Subject string
	Email   string
}

// AuthorizeRequest carries the per-attempt parameters for the consent URL.
type AuthorizeRequest struct {
	State string

	// PKCE fields, empty for confidential-client providers.
	CodeChallenge       string
	CodeChallengeMethod string
}

// Client is the provider-agnostic surface the lifecycle controller needs.
// Resource endpoints are provider-specific and typed on the concrete client.
type Client interface {
	// Name returns the provider name ("google", "spotify").
	Name() string

	// UsesPKCE reports whether this provider runs the public-client flow.
	UsesPKCE() bool

	// AuthorizeURL builds the consent redirect URL.
	AuthorizeURL(ctx context.Context, req AuthorizeRequest) (string, error)

	// Exchange trades an authorization code (+ verifier for PKCE) for tokens.
	Exchange(ctx context.Context, code, verifier string) (*Token, *Identity, error)

	// Refresh mints a new access token. A response omitting refresh_token
	// is normal; callers retain the previous one.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)

	// Revoke invalidates a token at the provider, best effort. Providers
	// without a revocation endpoint return nil.
	Revoke(ctx context.Context, token string) error

	// Scopes returns the configured scope set.
	Scopes() []string
}

// DefaultTimeout bounds every provider HTTP call.
const DefaultTimeout = 10 * time.Second

// Error is a provider rejection with its HTTP status, distinguishable from
// transport failures.
type Error struct {
	Provider    string
	Op          string
	StatusCode  int
	Code        string // provider error code ("invalid_grant", ...)
	Description string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s http %d: %s %s", e.Provider, e.Op, e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("%s: %s http %d", e.Provider, e.Op, e.StatusCode)
}

// IsUnauthorized reports whether err is a provider 401 (token invalidated
// between issuance and use, or revoked upstream).
func IsUnauthorized(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.StatusCode == 401
}

// IsInvalidGrant reports whether the provider rejected a code or refresh
// token as no longer usable.
func IsInvalidGrant(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	if pe.Code == "invalid_grant" {
		return true
	}
	// Some providers answer a dead refresh token with a bare 400/401.
	return pe.Op == "refresh" && (pe.StatusCode == 400 || pe.StatusCode == 401)
}

// IsTransient reports whether err looks like a timeout or connection
// failure worth a single retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.StatusCode >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
