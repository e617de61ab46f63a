package cache

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/queue-reliability/internal/monitoring"
)

func TestCacheSetGetClear(t *testing.T) {
	c := NewCache(time.Minute)

	_, found := c.Get("missing")
	assert.False(t, found)

	c.Set("k", []byte(`{"ok":true}`), "application/json")
	item, found := c.Get("k")
	require.True(t, found)
	assert.Equal(t, []byte(`{"ok":true}`), item.Data)
	assert.Equal(t, "application/json", item.ContentType)
	assert.Equal(t, 1, c.Size())

	c.Clear()
	_, found = c.Get("k")
	assert.False(t, found)
	assert.Equal(t, 0, c.Size())
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("k", []byte("v"), "text/plain")

	_, found := c.Get("k")
	assert.True(t, found)

	time.Sleep(20 * time.Millisecond)

	_, found = c.Get("k")
	assert.False(t, found)
}

func newCachedRouter(c *Cache, metrics *monitoring.Metrics, hits *int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(c.Middleware("/v1", metrics, monitoring.NewLogger()))
	handler := func(ctx *gin.Context) {
		atomic.AddInt64(hits, 1)
		ctx.JSON(http.StatusOK, gin.H{"path": ctx.Request.URL.Path})
	}
	router.GET("/v1/developers", handler)
	router.GET("/v1/stats", handler)
	router.POST("/v1/admin/rebuild", handler)
	return router
}

func TestMiddlewareServesSecondReadFromCache(t *testing.T) {
	c := NewCache(time.Minute)
	metrics := monitoring.NewMetrics()
	var handlerHits int64
	router := newCachedRouter(c, metrics, &handlerHits)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/v1/developers?page=1", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/v1/developers?page=1", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int64(1), atomic.LoadInt64(&handlerHits))
	assert.Equal(t, int64(1), atomic.LoadInt64(&metrics.CacheHits))
	assert.Equal(t, int64(1), atomic.LoadInt64(&metrics.CacheMisses))
}

func TestMiddlewareKeyIncludesQueryString(t *testing.T) {
	c := NewCache(time.Minute)
	metrics := monitoring.NewMetrics()
	var handlerHits int64
	router := newCachedRouter(c, metrics, &handlerHits)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/developers?page=1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/developers?page=2", nil))

	assert.Equal(t, int64(2), atomic.LoadInt64(&handlerHits))
	assert.Equal(t, 2, c.Size())
}

func TestMiddlewareSkipsWrites(t *testing.T) {
	c := NewCache(time.Minute)
	metrics := monitoring.NewMetrics()
	var handlerHits int64
	router := newCachedRouter(c, metrics, &handlerHits)

	for i := 0; i < 3; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/admin/rebuild", nil))
	}

	assert.Equal(t, int64(3), atomic.LoadInt64(&handlerHits))
	assert.Equal(t, 0, c.Size())
}

func TestMiddlewareClearInvalidates(t *testing.T) {
	c := NewCache(time.Minute)
	metrics := monitoring.NewMetrics()
	var handlerHits int64
	router := newCachedRouter(c, metrics, &handlerHits)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	c.Clear()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	assert.Equal(t, int64(2), atomic.LoadInt64(&handlerHits))
}
