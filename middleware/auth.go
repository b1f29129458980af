package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/malwarebo/reserva/security"
	"github.com/malwarebo/reserva/utils"
)

type contextKey string

const (
	sessionIDContextKey contextKey = "session_id"
)

type AuthMiddleware struct {
	jwtManager  *security.JWTManager
	rateLimiter *security.RateLimiter
}

func CreateAuthMiddleware(jwtManager *security.JWTManager, rateLimiter *security.RateLimiter) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:  jwtManager,
		rateLimiter: rateLimiter,
	}
}

// JWTMiddleware authenticates requests with the short-lived access token.
// Health and session issuance endpoints stay open so clients can bootstrap.
func (am *AuthMiddleware) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			am.writeErrorResponse(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			am.writeErrorResponse(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := am.jwtManager.ValidateToken(token)
		if err != nil {
			am.writeErrorResponse(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := utils.WithUserID(r.Context(), claims.UserID)
		ctx = context.WithValue(ctx, sessionIDContextKey, claims.SessionID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware throttles per authenticated user, falling back to the
// remote address for unauthenticated requests. Rejections are 429, which the
// client-side retry classifier treats as transient.
func (am *AuthMiddleware) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := utils.GetUserID(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}

		if !am.rateLimiter.Allow(key) {
			am.writeErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDContextKey).(string); ok {
		return id
	}
	return ""
}

func isPublicPath(path string) bool {
	switch path {
	case "/api/v1/health", "/api/v1/sessions", "/api/v1/sessions/refresh":
		return true
	}
	return false
}

func (am *AuthMiddleware) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(map[string]string{
		"error":     message,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
