package api

import (
	"net/http"
	"strings"

	"rental-service/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

// requireAuth validates the bearer token and provisions the caller's
// profile. The stream route may pass the token as access_token because
// EventSource cannot set headers.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" && strings.HasSuffix(c.FullPath(), "/stream") {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"details": "missing bearer token",
			})
			return
		}

		claims, err := auth.ParseToken(token, h.jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"details": err.Error(),
			})
			return
		}

		if err := h.svc.Profiles.EnsureProfile(c.Request.Context(), claims.Subject, claims.Email); err != nil {
			h.logger.Error("Failed to provision profile", zap.String("user_id", claims.Subject), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to load profile",
				"details": err.Error(),
			})
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// requireAdmin allows only profiles with the admin role
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := h.svc.Profiles.IsAdmin(c.Request.Context(), currentUser(c))
		if err != nil {
			h.respondError(c, "Failed to load profile", err)
			c.Abort()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Forbidden",
				"details": "admin role required",
			})
			return
		}
		c.Next()
	}
}

// currentUser returns the authenticated user id
func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
