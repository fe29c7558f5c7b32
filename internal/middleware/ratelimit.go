package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL       = 3 * time.Minute
	defaultSweepInterval = time.Minute
)

type visitor struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (v *visitor) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *visitor) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return now.Sub(v.lastSeen)
}

// RateLimiter tracks per-IP token bucket limiters. Visitors idle for longer
// than the TTL are dropped by a janitor goroutine that runs until Stop.
type RateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	sweep    time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type RateLimiterOption func(*RateLimiter)

// WithIdleTTL sets how long a silent client keeps its bucket.
func WithIdleTTL(ttl time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) { rl.idleTTL = ttl }
}

// WithSweepInterval sets how often idle buckets are collected.
func WithSweepInterval(d time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) { rl.sweep = d }
}

// NewRateLimiter starts a limiter allowing rps requests per second per
// client IP with bursts up to burst.
func NewRateLimiter(rps rate.Limit, burst int, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		rps:     rps,
		burst:   burst,
		idleTTL: defaultIdleTTL,
		sweep:   defaultSweepInterval,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(rl)
	}
	go rl.cleanupLoop()
	return rl
}

// Handler returns the gin middleware.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return rl.handle
}

// Stop ends the janitor and waits for it to exit.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	<-rl.done
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	now := time.Now()
	if val, ok := rl.visitors.Load(ip); ok {
		v := val.(*visitor)
		v.touch(now)
		return v.limiter
	}

	v := &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst), lastSeen: now}
	actual, _ := rl.visitors.LoadOrStore(ip, v)
	return actual.(*visitor).limiter
}

func (rl *RateLimiter) handle(c *gin.Context) {
	ip := c.ClientIP()
	limiter := rl.getVisitor(ip)

	if !limiter.Allow() {
		log.WithFields(log.Fields{"ip": ip, "path": c.Request.URL.Path}).Warn("rate limit exceeded")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"message": "too many requests, please try again later",
		})
		return
	}

	c.Next()
}

func (rl *RateLimiter) cleanupLoop() {
	defer close(rl.done)

	ticker := time.NewTicker(rl.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) int {
	evicted := 0
	rl.visitors.Range(func(key, value any) bool {
		if value.(*visitor).idleSince(now) > rl.idleTTL {
			rl.visitors.Delete(key)
			evicted++
		}
		return true
	})
	return evicted
}
