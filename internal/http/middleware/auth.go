package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/princekumarofficial/gallery-service/internal/types/users"
	"github.com/princekumarofficial/gallery-service/internal/utils/jwt"
	"github.com/princekumarofficial/gallery-service/internal/utils/response"
)

type contextKey string

const (
	IdentityKey     contextKey = "identity"
	AdmissionKeyKey contextKey = "admissionKey"
	RequestIDKey    contextKey = "requestID"
)

// AuthMiddleware creates a middleware that validates JWT tokens and extracts the caller identity
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get the Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("Authorization header required")))
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("Invalid authorization header format")))
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("Token not provided")))
				return
			}

			identity, err := jwt.ParseIdentity(token, jwtSecret)
			if err != nil {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("Invalid token")))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity stores the caller identity in ctx
func WithIdentity(ctx context.Context, identity users.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentityFromContext extracts the caller identity from the request context
func GetIdentityFromContext(ctx context.Context) (users.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(users.Identity)
	return identity, ok
}
