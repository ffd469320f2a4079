package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
)

const (
	userIDHeader  = "X-User-ID"
	userIDKey     = "user_id"
	maxUserIDSize = 128
)

// LoggingMiddleware logs all HTTP requests
func LoggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.LogHTTPRequest(c.Request.Context(), c.Request.Method, path, c.Writer.Status(), time.Since(start),
			"ip", c.ClientIP(),
			"user_id", c.GetString(userIDKey),
		)
	}
}

// CORSMiddleware enables CORS for browser extensions and local tooling
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if allowedOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-User-ID")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "86400")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func allowedOrigin(origin string) bool {
	for _, prefix := range []string{
		"chrome-extension://",
		"moz-extension://",
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// AuthMiddleware validates the bearer API key. An empty key is rejected when
// the server is built, so every request here is checked.
func AuthMiddleware(expectedAPIKey string, log *logger.Logger) gin.HandlerFunc {
	expected := []byte(expectedAPIKey)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warnw("Missing Authorization header",
				"path", c.Request.URL.Path,
				"ip", c.ClientIP(),
			)
			abortWithError(c, http.StatusUnauthorized, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			log.Warnw("Invalid Authorization format", "ip", c.ClientIP())
			abortWithError(c, http.StatusUnauthorized, "Invalid Authorization format. Expected: Bearer <token>")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), expected) != 1 {
			log.Warnw("Invalid API key",
				"ip", c.ClientIP(),
				"path", c.Request.URL.Path,
			)
			abortWithError(c, http.StatusUnauthorized, "Invalid API key")
			return
		}

		c.Next()
	}
}

// UserMiddleware resolves the caller identity from X-User-ID. History rows
// are scoped to it.
func UserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userIDHeader))
		if userID == "" {
			abortWithError(c, http.StatusBadRequest, "Missing X-User-ID header")
			return
		}
		if len(userID) > maxUserIDSize {
			abortWithError(c, http.StatusBadRequest, "X-User-ID header is too long")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// ipLimiters hands out one token bucket per client IP. Idle buckets are
// swept on access.
type ipLimiters struct {
	mu        sync.Mutex
	clients   map[string]*limitedClient
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(cfg config.RateLimitConfig) *ipLimiters {
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &ipLimiters{
		clients: make(map[string]*limitedClient),
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idle/2 {
		for key, cl := range l.clients {
			if now.Sub(cl.lastSeen) > l.idle {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &limitedClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimitMiddleware implements token bucket rate limiting per IP. A
// non-positive rate disables it.
func RateLimitMiddleware(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newIPLimiters(cfg)

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			abortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
