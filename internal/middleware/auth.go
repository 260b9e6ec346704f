package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/baharkarakas/user-accounts/internal/auth"
)

type ctxKey string

const ctxUserIDKey ctxKey = "uid"

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxUserIDKey).(string)
	return v, ok && v != ""
}

func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, uid)
}

type AuthMiddleware struct {
	TM *auth.TokenManager
}

func NewAuthMiddleware(tm *auth.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{TM: tm}
}

// Authenticate puts the subject of a valid bearer access token in the request
// context. Requests without one pass through anonymously.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, isRefresh, err := m.TM.ParseAny(token)
		if err != nil || isRefresh {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
	})
}

func bearer(r *http.Request) (string, bool) {
	ah := r.Header.Get("Authorization")
	if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(ah[7:])
	return token, token != ""
}
