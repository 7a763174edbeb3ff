package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor-backend/internal/http/response"
	"github.com/parlorchat/parlor-backend/internal/pkg/ctxutil"
	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
	"github.com/parlorchat/parlor-backend/internal/services"
)

// Auth authenticates the request from the auth cookie, falling back to
// a bearer Authorization header, and stashes the caller's identity in
// the request context.
func Auth(auth services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			response.RespondError(c, apierr.Unauthorized("missing_token",
				fmt.Errorf("no credentials supplied")))
			return
		}
		rd, err := auth.ParseToken(token)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), rd)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(services.AuthCookieName); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
