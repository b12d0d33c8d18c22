package handler

import "github.com/gin-gonic/gin"

const userIDKey = "user_id"

// SetCurrentUserID binds the authenticated user to the request context. The
// auth middleware is the only caller.
func SetCurrentUserID(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
}

// CurrentUserID returns the authenticated user bound by the auth middleware,
// or empty when unauthenticated.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
