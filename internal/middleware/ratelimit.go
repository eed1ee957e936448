package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"servicemarket/internal/pkg/response"
)

const codeRateLimited = "RATE_LIMITED"

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit throttles requests per client IP. Limiters idle for more than
// ten minutes are dropped on the next request that creates one.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	var (
		mu       sync.Mutex
		limiters = make(map[string]*ipLimiter)
	)

	get := func(ip string, now time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		if l, ok := limiters[ip]; ok {
			l.lastSeen = now
			return l.limiter
		}
		for k, l := range limiters {
			if now.Sub(l.lastSeen) > 10*time.Minute {
				delete(limiters, k)
			}
		}
		l := &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst), lastSeen: now}
		limiters[ip] = l
		return l.limiter
	}

	return func(c *gin.Context) {
		if rps <= 0 {
			c.Next()
			return
		}
		if !get(c.ClientIP(), time.Now()).Allow() {
			response.Abort(c, http.StatusTooManyRequests, codeRateLimited, "Too many requests")
			return
		}
		c.Next()
	}
}
