// Package auth validates bearer tokens on the API surface and carries
// the resulting principal, plus the raw token for upstream forwarding,
// through the request context.
package auth

import (
	"context"
	"errors"
)

// AnonymousSubject identifies requests that arrive while validation is
// disabled.
const AnonymousSubject = "anonymous"

// Common authentication errors.
var (
	// ErrMissingToken is returned when no bearer token accompanies a
	// request that requires one.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned when a token fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is the validated identity of a request.
type Principal struct {
	// Subject is the unique user identifier (the sub claim).
	Subject string `json:"sub"`

	// Email when the provider supplies one.
	Email string `json:"email,omitempty"`

	// Scopes granted to the token, from the OAuth2 "scope" string or a
	// "scopes" list claim.
	Scopes []string `json:"scopes,omitempty"`
}

// Anonymous returns the principal used when validation is disabled.
func Anonymous() Principal {
	return Principal{Subject: AnonymousSubject}
}

// HasScope reports whether the principal carries the given scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type contextKey string

const (
	principalContextKey contextKey = "drover_principal"
	bearerContextKey    contextKey = "drover_bearer"
)

// ContextWithPrincipal stores the validated principal on the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the request principal. The second return
// is false when no middleware ran on this request path.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// ContextWithBearer stores the raw bearer token for forwarding to
// upstream services acting on the caller's behalf.
func ContextWithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerContextKey, token)
}

// BearerFromContext returns the raw bearer token, or "" when the request
// carried none.
func BearerFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerContextKey).(string)
	return token
}
