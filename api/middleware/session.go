package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const cartSessionHeader = "X-Cart-Session"

type sessionCtxKey struct{}

// CartSession resolves the anonymous cart session token. Requests without the
// header get a fresh token, echoed back so the client can keep using it.
func CartSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(cartSessionHeader))
			if token == "" {
				token = uuid.NewString()
			}
			w.Header().Set(cartSessionHeader, token)
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), token)))
		})
	}
}

// WithSession stores the cart session token on the context.
func WithSession(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, token)
}

// SessionFromContext returns the cart session token, or "" when the
// middleware did not run.
func SessionFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return token
	}
	return ""
}
