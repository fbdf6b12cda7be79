package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
)

type authResultContextKey struct{}

// WithAuthResult stores res in ctx. Guards call it; handlers tests may too.
func WithAuthResult(ctx context.Context, res authcore.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// AuthResultFromContext returns the identity a guard established.
func AuthResultFromContext(ctx context.Context) (authcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(authcore.AuthResult)
	return res, ok
}

// Guard rejects requests without a valid access token with 401.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return RequireRoles(engine)
}

// RequireRoles authenticates the request and requires one of roles. With no
// roles any authenticated caller passes. Authorization failures answer 403,
// or 401 when the engine conceals them.
func RequireRoles(engine *authcore.Engine, roles ...permission.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			res, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			if err := engine.Authorize(res.Role, roles...); err != nil {
				if errors.Is(err, authcore.ErrForbidden) && !engine.ConcealForbidden() {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, authcore.TokenType) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", authcore.TokenType)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
