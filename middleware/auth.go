package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Indrakargaurav/codeweave/handlers/auth"
	"github.com/go-chi/render"
)

type contextKey string

const ClaimsContextKey = contextKey("claims")

// AuthJWT guards owner-scoped routes. The verified subject ends up in the
// request context and is the identity every ownership check runs against.
func AuthJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Authorization header is required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ParseJWT(parts[1])
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFrom extracts the verified claims placed by AuthJWT.
func ClaimsFrom(ctx context.Context) (*auth.AppClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.AppClaims)
	return claims, ok
}
