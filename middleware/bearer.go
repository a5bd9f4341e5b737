package middleware

import (
	"context"
	"net/http"
	"strings"

	authcore "github.com/swiftdrop/authcore"
)

// RequireAccess rejects requests without a valid access bearer token and
// attaches the verified claims to the request context.
func RequireAccess(engine *authcore.Engine) func(http.Handler) http.Handler {
	return guard(engine, (*authcore.Engine).VerifyAccess)
}

// RequireRefresh enforces a refresh bearer token, including the
// revocation blacklist check. Intended for token rotation endpoints.
func RequireRefresh(engine *authcore.Engine) func(http.Handler) http.Handler {
	return guard(engine, (*authcore.Engine).VerifyRefresh)
}

func guard(engine *authcore.Engine, verify func(*authcore.Engine, context.Context, string) (*authcore.Claims, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verify(engine, r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(authcore.WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
