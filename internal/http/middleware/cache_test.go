package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor-backend/internal/clients/redis"
	"github.com/parlorchat/parlor-backend/internal/pkg/ctxutil"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
)

// memCache is an in-memory stand-in for the Redis-backed cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*redis.Entry
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*redis.Entry{}}
}

func (m *memCache) Get(ctx context.Context, key string) (*redis.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *memCache) Set(ctx context.Context, key string, entry *redis.Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

func (m *memCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *memCache) InvalidateByPrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *memCache) Close() error { return nil }

func newCacheRouter(t *testing.T, cache redis.Cache, userID uuid.UUID) (*gin.Engine, *int) {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)

	hits := 0
	router := gin.New()
	identify := func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
	}
	router.Use(identify, ResponseCache(cache, log))
	router.GET("/data", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"n": hits})
	})
	router.POST("/data", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router, &hits
}

func TestResponseCacheServesSecondRead(t *testing.T) {
	cache := newMemCache()
	router, hits := newCacheRouter(t, cache, uuid.New())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Equal(t, "false", w.Header().Get("X-Cache-Hit"))
	first := w.Body.String()

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Equal(t, "true", w.Header().Get("X-Cache-Hit"))
	assert.Equal(t, first, w.Body.String())
	assert.Equal(t, 1, *hits)
}

func TestResponseCacheScopedPerUser(t *testing.T) {
	cache := newMemCache()
	routerA, _ := newCacheRouter(t, cache, uuid.New())
	routerB, _ := newCacheRouter(t, cache, uuid.New())

	w := httptest.NewRecorder()
	routerA.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	require.Equal(t, "false", w.Header().Get("X-Cache-Hit"))

	// A different user misses on the same path.
	w = httptest.NewRecorder()
	routerB.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Equal(t, "false", w.Header().Get("X-Cache-Hit"))
}

func TestResponseCacheInvalidatesOnWrite(t *testing.T) {
	cache := newMemCache()
	router, hits := newCacheRouter(t, cache, uuid.New())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/data", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/data", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Equal(t, "false", w.Header().Get("X-Cache-Hit"))
	assert.Equal(t, 2, *hits)
}

func TestResponseCacheNilCachePassesThrough(t *testing.T) {
	router, hits := newCacheRouter(t, nil, uuid.New())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/data", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Equal(t, 2, *hits)
}
