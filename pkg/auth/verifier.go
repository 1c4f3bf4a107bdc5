package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/drover-ai/drover/pkg/config"
)

// jwksRefreshInterval is the minimum interval between JWKS re-fetches,
// bounding how long a rotated key stays unknown.
const jwksRefreshInterval = 15 * time.Minute

// Verifier validates a bearer token and extracts the principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// New builds a verifier from config. A disabled config returns (nil, nil);
// callers treat a nil verifier as anonymous mode.
func New(cfg config.AuthConfig) (Verifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	if cfg.JWKSURL != "" {
		return NewJWKSVerifier(cfg.JWKSURL, cfg.Issuer, cfg.Audience)
	}
	return NewSecretVerifier(cfg.Secret, cfg.Issuer, cfg.Audience), nil
}

// JWKSVerifier validates RS256 tokens against a provider's published key
// set, cached and refreshed to follow key rotation.
type JWKSVerifier struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewJWKSVerifier registers the JWKS URL for cached auto-refresh and
// performs one fetch up front so misconfiguration fails at startup.
func NewJWKSVerifier(jwksURL, issuer, audience string) (*JWKSVerifier, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(jwksRefreshInterval)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWKSVerifier{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// Verify checks the signature against the cached key set plus expiry,
// issuer, and audience, and maps the claims to a Principal.
func (v *JWKSVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return Principal{}, fmt.Errorf("failed to get JWKS: %w", err)
	}

	parsed, err := jwt.Parse([]byte(token),
		append([]jwt.ParseOption{jwt.WithKeySet(keyset)}, validateOptions(v.issuer, v.audience)...)...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return principalFromToken(parsed), nil
}

// SecretVerifier validates HS256 tokens signed with a shared secret.
// Suitable for single-tenant deployments without an identity provider.
type SecretVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewSecretVerifier builds a shared-secret verifier.
func NewSecretVerifier(secret, issuer, audience string) *SecretVerifier {
	return &SecretVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify checks the HMAC signature plus expiry, issuer, and audience, and
// maps the claims to a Principal.
func (v *SecretVerifier) Verify(_ context.Context, token string) (Principal, error) {
	parsed, err := jwt.Parse([]byte(token),
		append([]jwt.ParseOption{jwt.WithKey(jwa.HS256, v.secret)}, validateOptions(v.issuer, v.audience)...)...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return principalFromToken(parsed), nil
}

var (
	_ Verifier = (*JWKSVerifier)(nil)
	_ Verifier = (*SecretVerifier)(nil)
)

// validateOptions builds the claim checks. Empty issuer or audience skips
// that check.
func validateOptions(issuer, audience string) []jwt.ParseOption {
	opts := []jwt.ParseOption{jwt.WithValidate(true)}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return opts
}

// principalFromToken maps validated claims to a Principal. Scopes come
// from the OAuth2 space-separated "scope" string, with a "scopes" list
// claim accepted as a fallback.
func principalFromToken(token jwt.Token) Principal {
	p := Principal{Subject: token.Subject()}

	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			p.Email = s
		}
	}

	if scope, ok := token.Get("scope"); ok {
		if s, ok := scope.(string); ok {
			p.Scopes = strings.Fields(s)
		}
	}
	if len(p.Scopes) == 0 {
		if scopes, ok := token.Get("scopes"); ok {
			if list, ok := scopes.([]any); ok {
				for _, v := range list {
					if s, ok := v.(string); ok {
						p.Scopes = append(p.Scopes, s)
					}
				}
			}
		}
	}

	return p
}
