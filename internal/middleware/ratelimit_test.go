package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRateLimitRouter(t *testing.T, rps float64, burst int) *gin.Engine {
	t.Helper()
	rl := NewRateLimiter(rate.Limit(rps), burst)
	t.Cleanup(rl.Stop)

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func hit(r http.Handler, remoteAddr string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	r := setupRateLimitRouter(t, 1, 5)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(r, ""), "request %d", i)
	}
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	r := setupRateLimitRouter(t, 1, 2)

	// Exhaust the burst
	for i := 0; i < 2; i++ {
		hit(r, "")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, false, body["success"])
}

func TestRateLimiter_DifferentIPsHaveSeparateLimits(t *testing.T) {
	r := setupRateLimitRouter(t, 1, 1)

	assert.Equal(t, http.StatusOK, hit(r, "1.1.1.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "1.1.1.1:1234"))
	assert.Equal(t, http.StatusOK, hit(r, "2.2.2.2:5678"))
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1, WithIdleTTL(time.Minute), WithSweepInterval(time.Hour))
	t.Cleanup(rl.Stop)

	rl.getVisitor("1.1.1.1")
	rl.getVisitor("2.2.2.2")

	assert.Equal(t, 0, rl.evictIdle(time.Now()))
	assert.Equal(t, 2, rl.evictIdle(time.Now().Add(2*time.Minute)))

	_, ok := rl.visitors.Load("1.1.1.1")
	assert.False(t, ok)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, WithSweepInterval(time.Millisecond))
	rl.Stop()
	rl.Stop()
}
