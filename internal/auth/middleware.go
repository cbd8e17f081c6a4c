package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/streamvault/streamvault/internal/httputil"
	"github.com/streamvault/streamvault/internal/models"
)

type contextKey string

const ContextUser contextKey = "user"

type ContextUserData struct {
	UserID   models.UserID
	DeviceID models.DeviceID
	IsOwner  bool
}

// Middleware validates the JWT access token on every request. It never
// touches the database: a request with an expired or revoked access
// token is rejected outright and the client is expected to hit the
// refresh endpoint, which is the only place a database lookup against
// the stored AuthToken happens.
type Middleware struct {
	secret []byte
}

func NewMiddleware(secret []byte) *Middleware {
	return &Middleware{secret: secret}
}

func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		claims, err := ParseAccessToken(m.secret, token)
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ContextUser, ContextUserData{
			UserID:   claims.UserID,
			DeviceID: claims.DeviceID,
			IsOwner:  claims.IsOwner,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil || !user.IsOwner {
			httputil.WriteError(w, http.StatusForbidden, "FORBIDDEN", "owner access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserFromContext(ctx context.Context) *ContextUserData {
	if v, ok := ctx.Value(ContextUser).(ContextUserData); ok {
		return &v
	}
	return nil
}

// extractToken pulls the JWT access token from the Authorization
// header. Unlike the access token, the refresh token never travels in
// a header; it lives only in the refresh_token cookie read directly by
// the refresh handler.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
