package middleware

import (
	"context"
	"net/http"
	"strings"

	"codesync/internal/auth"
)

const (
	userIDKey contextKey = "user_id"
	emailKey  contextKey = "user_email"
)

// AuthMiddleware verifies the request's JWT and stashes the identity on
// the context. The token rides in the Authorization header as a bearer
// token, or in the "token" query parameter for WebSocket upgrades where
// browsers cannot set headers.
func AuthMiddleware(verifier *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			ctx = context.WithValue(ctx, emailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// UserID returns the authenticated user id, or "" on an anonymous
// context.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// Email returns the authenticated user's email, or "".
func Email(ctx context.Context) string {
	if email, ok := ctx.Value(emailKey).(string); ok {
		return email
	}
	return ""
}
