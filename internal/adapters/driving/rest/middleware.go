package rest

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/tmsearch/internal/logger"
)

// clientIdle is how long a client's bucket survives without requests.
const clientIdle = 10 * time.Minute

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientBucket
	lastSweep time.Time
	now       func() time.Time
}

// RateLimit allows rps requests per second per client with the given burst.
// A non-positive rps disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	l := &rateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
	return l.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	ip := c.ClientIP()
	now := l.now()

	l.mu.Lock()
	l.sweepLocked(now)
	b, ok := l.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = b
	}
	b.seen = now
	allowed := b.limiter.AllowN(now, 1)
	l.mu.Unlock()

	if !allowed {
		logger.L().Warn("rate limit hit", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: http.StatusText(http.StatusTooManyRequests)})
		return
	}
	c.Next()
}

func (l *rateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < clientIdle {
		return
	}
	for ip, b := range l.clients {
		if now.Sub(b.seen) > clientIdle {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

// RequestLogger logs one line per request with zap fields.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.L().Error("request", fields...)
			return
		}
		logger.L().Info("request", fields...)
	}
}
