package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/smorozov/vaultcore/internal/server/auth"
	"github.com/smorozov/vaultcore/internal/server/services"
)

type contextKey string

const userIDKey contextKey = "user_id"

// withUserID adds the authenticated user id to the context.
func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// userID retrieves the authenticated user id from the context.
func userID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// authMiddleware verifies the Bearer token, puts the user id in the context,
// and captures the request attributes the audit sink records.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		id, err := auth.GetUserIDFromToken(parts[1], s.secretKey)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := withUserID(r.Context(), id)
		ctx = services.WithRequestMeta(ctx, services.RequestMeta{
			Device: r.UserAgent(),
			IP:     r.RemoteAddr,
			Region: r.Header.Get("X-Region"),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
