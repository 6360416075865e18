package httpapi

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"vortx/internal/apperr"
	"vortx/internal/identity"
	"vortx/internal/observability"
)

const (
	requestIDKey    = "request_id"
	firebaseUserKey = "firebase_user"
	customerIDKey   = "customer_id"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// trackRoute records a metrics span keyed by the matched route pattern.
func trackRoute(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		span := metrics.Start(c.Request.Method + " " + route)
		c.Next()
		var err error
		if c.Writer.Status() >= http.StatusInternalServerError {
			err = errServerStatus
		}
		span.End(err)
	}
}

var errServerStatus = errors.New("server error response")

// cors allows the configured origins on paths under prefix, answering
// preflight requests.
func cors(prefix string, origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		}
		if o != "" {
			allowed[o] = true
		}
	}
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, prefix) {
			c.Next()
			return
		}
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, x-publishable-api-key")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ipLimiter keeps one token bucket per client IP.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func newIPLimiter(interval time.Duration, burst int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(interval),
		burst:    burst,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (l *ipLimiter) middleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.burst <= 0 {
			c.Next()
			return
		}
		if !l.allow(c.ClientIP()) {
			logger.Warn("rate limited", "path", c.Request.URL.Path, "client_ip", c.ClientIP())
			c.Header("Retry-After", "1")
			writeProblem(c, Problem{
				Status: http.StatusTooManyRequests,
				Detail: "Rate limit exceeded. Retry after the specified interval.",
			})
			return
		}
		c.Next()
	}
}

// firebaseAuth requires a valid Firebase ID token in the Authorization header.
func firebaseAuth(verifier identity.Verifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := identity.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, logger, apperr.Auth("no token provided", nil))
			return
		}
		user, err := verifier.VerifyIDToken(c.Request.Context(), token)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Set(firebaseUserKey, user)
		c.Next()
	}
}

// sessionAuth requires a session token issued by firebase-customer/sync.
func sessionAuth(sessions *identity.Sessions, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := identity.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, logger, apperr.Auth("no token provided", nil))
			return
		}
		customerID, err := sessions.Parse(token)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Set(customerIDKey, customerID)
		c.Next()
	}
}

// adminAuth requires the operator bearer token configured as ADMIN_TOKEN.
func adminAuth(token string, logger *slog.Logger) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got, ok := identity.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, logger, apperr.Auth("no token provided", nil))
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			logger.Warn("admin token rejected", "path", c.Request.URL.Path, "client_ip", c.ClientIP())
			writeError(c, logger, apperr.Auth("invalid admin token", nil))
			return
		}
		c.Next()
	}
}

func firebaseUser(c *gin.Context) *identity.Token {
	v, _ := c.Get(firebaseUserKey)
	user, _ := v.(*identity.Token)
	return user
}
