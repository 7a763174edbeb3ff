package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor-backend/internal/platform/envutil"
)

// CORS allows the configured frontend origins with credentials so the
// auth cookie is sent on cross-origin requests.
func CORS() gin.HandlerFunc {
	origins := strings.Split(envutil.Get("CORS_ORIGINS", "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-Cache-Hit"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
