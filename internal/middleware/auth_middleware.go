package middleware

import (
	"context"
	"net/http"
	"strings"

	"diarylink/internal/auth"
	"diarylink/internal/config"
)

// contextKey 是用于在 context.Context 中存储值的自定义类型，以避免键冲突。
type contextKey string

// UserIDKey 是用于在上下文中存储用户ID的键。
const UserIDKey contextKey = "userID"

// DisplayNameKey 是用于在上下文中存储显示名的键。
const DisplayNameKey contextKey = "displayName"

// AuthMiddleware 是一个 HTTP 中间件，用于验证 JWT 并将用户信息添加到上下文中。
func AuthMiddleware(next http.Handler, authCfg config.AuthConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "请求未包含授权令牌", http.StatusUnauthorized)
			return
		}

		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
			http.Error(w, "授权头部格式无效", http.StatusUnauthorized)
			return
		}

		tokenString := headerParts[1]
		claims, err := auth.ValidateToken(tokenString, authCfg.JWTSecretKey)
		if err != nil {
			http.Error(w, "令牌无效", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, DisplayNameKey, claims.DisplayName)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext 从上下文中获取用户ID。
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// GetDisplayNameFromContext 从上下文中获取显示名。
func GetDisplayNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(DisplayNameKey).(string)
	return name, ok
}
