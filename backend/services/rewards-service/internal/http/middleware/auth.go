package middleware

import (
	"context"
	"net/http"
	"strings"

	"evrewards/backend/services/rewards-service/internal/address"
)

type contextKey string

const signerKey contextKey = "signer"

// TokenValidator resolves a bearer token to the signer it was issued to.
type TokenValidator interface {
	ValidateToken(token string) (address.Address, error)
}

// AuthMiddleware validates JWT tokens and puts the verified signer in the context.
func AuthMiddleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			signer, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSigner(r.Context(), signer)))
		})
	}
}

// WithSigner stores signer in ctx.
func WithSigner(ctx context.Context, signer address.Address) context.Context {
	return context.WithValue(ctx, signerKey, signer)
}

// SignerFromContext retrieves the verified signer.
func SignerFromContext(ctx context.Context) (address.Address, bool) {
	signer, ok := ctx.Value(signerKey).(address.Address)
	return signer, ok
}
