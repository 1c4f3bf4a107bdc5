package auth

import (
	"net/http"
	"strings"
)

// Middleware validates the Authorization header and stores the principal
// and raw bearer token on the request context.
//
// A nil verifier means validation is disabled: every request proceeds as
// the anonymous principal, and any bearer token that happens to be
// present is still captured so downstream bridges can forward it.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)

			if v == nil {
				ctx := ContextWithPrincipal(r.Context(), Anonymous())
				if ok {
					ctx = ContextWithBearer(ctx, token)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if !ok {
				unauthorized(w, "missing or malformed Authorization header, expected: Bearer <token>")
				return
			}

			principal, err := v.Verify(r.Context(), token)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			ctx = ContextWithBearer(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope gates a route on a token scope. Runs inside Middleware,
// so the principal is already on the context.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, "no principal on request")
				return
			}
			// Anonymous mode carries no scopes and bypasses the check.
			if p.Subject != AnonymousSubject && !p.HasScope(scope) {
				http.Error(w, `{"error":"forbidden: missing scope `+scope+`"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, `{"error":"unauthorized: `+detail+`"}`, http.StatusUnauthorized)
}
