package auth

import (
	"context"
	"net/http"
	"strings"
)

type claimsKey struct{}

// ClaimsFromContext returns the verified claims stored by Middleware, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(claimsKey{}).(*Claims); ok {
		return c
	}
	return nil
}

// WithClaims returns ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// publicPaths are API paths reachable without a bearer token.
var publicPaths = map[string]bool{
	"/api/v1/auth/login":        true,
	"/api/v1/auth/register":     true,
	"/api/v1/auth/logout":       true,
	"/api/v1/auth/setup":        true,
	"/api/v1/auth/setup/status": true,
	"/api/v1/auth/health":       true,
	"/api/v1/health":            true,
	"/api/v1/payments/webhook":  true,
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Middleware verifies bearer tokens on /api/ routes and stores the claims
// in the request context. Public paths pass through, but still get claims
// attached when a valid token is presented (register uses that to let an
// admin create staff accounts). Websocket routes authenticate themselves.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/api/v1/ws/") {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := BearerToken(r)
			if publicPaths[path] {
				if ok {
					if claims, err := svc.Verify(r.Context(), token); err == nil {
						r = r.WithContext(WithClaims(r.Context(), claims))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := svc.Verify(r.Context(), token)
			if err != nil {
				writeVerifyError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole wraps next so that only principals holding one of roles reach it.
func RequireRole(next http.HandlerFunc, roles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			writeAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if _, err := Authorize(claims, roles...); err != nil {
			writeAuthError(w, http.StatusForbidden, ErrForbidden.Error())
			return
		}
		next(w, r)
	}
}
