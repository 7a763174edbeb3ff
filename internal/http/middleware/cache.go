package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor-backend/internal/clients/redis"
	"github.com/parlorchat/parlor-backend/internal/pkg/ctxutil"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/envutil"
)

const cacheHitHeader = "X-Cache-Hit"

type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// ResponseCache serves authenticated GET responses from Redis, keyed
// per user and request path, and drops the user's cached entries after
// any successful write. A nil cache disables the middleware entirely.
func ResponseCache(cache redis.Cache, log *logger.Logger) gin.HandlerFunc {
	if cache == nil {
		return func(c *gin.Context) { c.Next() }
	}
	ttl := time.Duration(envutil.Int("CACHE_TTL_SECONDS", 60)) * time.Second

	return func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil {
			c.Next()
			return
		}
		prefix := fmt.Sprintf("user:%s:", rd.UserID)

		if c.Request.Method != http.MethodGet {
			c.Next()
			if c.Writer.Status() < 400 {
				if err := cache.InvalidateByPrefix(c.Request.Context(), prefix); err != nil {
					log.Warn("cache invalidation failed", "err", err)
				}
			}
			return
		}

		key := prefix + c.Request.URL.RequestURI()
		if entry, err := cache.Get(c.Request.Context(), key); err == nil && entry != nil {
			for k, v := range entry.Headers {
				c.Writer.Header().Set(k, v)
			}
			c.Writer.Header().Set(cacheHitHeader, "true")
			c.Data(entry.Status, entry.Headers["Content-Type"], entry.Body)
			c.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Writer.Header().Set(cacheHitHeader, "false")
		c.Next()

		if rec.Status() != http.StatusOK {
			return
		}
		entry := &redis.Entry{
			Body:   rec.buf.Bytes(),
			Status: rec.Status(),
			Headers: map[string]string{
				"Content-Type": rec.Header().Get("Content-Type"),
			},
		}
		if err := cache.Set(c.Request.Context(), key, entry, ttl); err != nil {
			log.Warn("cache store failed", "err", err)
		}
	}
}
