package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/initstack/identity"
)

type userContextKey struct{}

// UserFromContext returns the account injected by [RequireAccess].
func UserFromContext(ctx context.Context) (identity.UserRecord, bool) {
	user, ok := ctx.Value(userContextKey{}).(identity.UserRecord)
	return user, ok
}

// RequireAccess wraps a handler with bearer-token enforcement. Requests
// without a live access token are rejected with 401 before the handler
// runs.
func RequireAccess(engine *identity.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			tok, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := engine.VerifyAccess(r.Context(), tok)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}

	return tok, true
}
