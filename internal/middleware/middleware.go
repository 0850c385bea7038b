package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"lendery/internal/config"
	"lendery/internal/database"
	"lendery/internal/logger"
	"lendery/internal/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type rateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type clientTracker struct {
	errors404    []time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

type dbKey struct{}

var (
	clients    = make(map[string]*rateLimiter)
	mu         sync.Mutex
	trackers   = make(map[string]*clientTracker)
	trackersMu sync.Mutex
)

func RateLimit(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip rate limiting in development mode
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		ip := c.ClientIP()

		mu.Lock()
		limiter, exists := clients[ip]
		if !exists {
			limiter = &rateLimiter{limiter: rate.NewLimiter(rate.Every(time.Second/20), 20)}
			clients[ip] = limiter
		}
		limiter.lastSeen = time.Now()
		allowed := limiter.limiter.Allow()
		cleanupOldClients()
		mu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// AuthRateLimit guards login and registration: 5 attempts, then one per minute.
func AuthRateLimit(cfg *config.Config) gin.HandlerFunc {
	authClients := make(map[string]*rateLimiter)
	var authMu sync.Mutex

	return func(c *gin.Context) {
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		ip := c.ClientIP()

		authMu.Lock()
		limiter, exists := authClients[ip]
		if !exists {
			limiter = &rateLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute), 5)}
			authClients[ip] = limiter
		}
		limiter.lastSeen = time.Now()
		allowed := limiter.limiter.Allow()

		for clientIP, client := range authClients {
			if time.Since(client.lastSeen) > 30*time.Minute {
				delete(authClients, clientIP)
			}
		}
		authMu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Authentication rate limit exceeded"})
			return
		}

		c.Next()
	}
}

func IPBlocker(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		ip := c.ClientIP()

		trackersMu.Lock()
		tracker, exists := trackers[ip]
		blocked := exists && time.Now().Before(tracker.blockedUntil)
		trackersMu.Unlock()

		if blocked {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Too many invalid requests, try again later"})
			return
		}

		c.Next()
	}
}

// Track404AndBlock blocks an IP for 15 minutes after 10 requests to unknown
// routes within 5 minutes.
func Track404AndBlock(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only unmatched routes count; handlers answer 404 for ids that are
		// missing or belong to someone else.
		if cfg.IsDevelopment() || c.Writer.Status() != http.StatusNotFound || c.FullPath() != "" {
			return
		}

		ip := c.ClientIP()
		now := time.Now()

		trackersMu.Lock()
		defer trackersMu.Unlock()

		tracker, exists := trackers[ip]
		if !exists {
			tracker = &clientTracker{lastSeen: now}
			trackers[ip] = tracker
		}

		tracker.lastSeen = now
		tracker.errors404 = append(tracker.errors404, now)

		cutoff := now.Add(-5 * time.Minute)
		recent := tracker.errors404[:0]
		for _, t := range tracker.errors404 {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
		tracker.errors404 = recent

		if len(tracker.errors404) >= 10 {
			tracker.blockedUntil = now.Add(15 * time.Minute)
			logger.Warn("Blocked IP after repeated 404s", "ip", ip, "count", len(tracker.errors404))
			tracker.errors404 = nil
		}

		for trackerIP, t := range trackers {
			if time.Since(t.lastSeen) > 30*time.Minute && now.After(t.blockedUntil) {
				delete(trackers, trackerIP)
			}
		}
	}
}

func cleanupOldClients() {
	for ip, client := range clients {
		if time.Since(client.lastSeen) > 10*time.Minute {
			delete(clients, ip)
		}
	}
}

func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := false
		for _, allowedOrigin := range origins {
			if origin != "" && (origin == allowedOrigin || allowedOrigin == "*") {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func SecurityHeaders(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

func LogRequests() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s %s\n",
			param.TimeStamp.Format("2006/01/02 15:04:05"),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
		)
	})
}

func AddDBContext(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), dbKey{}, db)
		c.Request = c.Request.WithContext(ctx)
		c.Set("db", db)
		c.Next()
	}
}

// SessionToken reads the session from "Authorization: Bearer <token>",
// falling back to the session_id cookie.
func SessionToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie("session_id"); err == nil {
		return cookie
	}
	return ""
}

func authenticate(c *gin.Context, db *sql.DB, cfg *config.Config) (*models.User, bool) {
	token := SessionToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return nil, false
	}

	user, err := database.ValidateSession(db, token, cfg.SessionDuration)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrUserBlocked):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is blocked"})
		case errors.Is(err, database.ErrSessionExpired):
			c.SetSameSite(http.SameSiteStrictMode)
			c.SetCookie("session_id", "", -1, "/", "", !cfg.IsDevelopment(), true)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
		default:
			logger.Error("Failed to validate session", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return nil, false
	}

	c.Set("user", user)
	c.Set("user_id", user.ID)
	c.Set("is_admin", user.IsAdmin)
	c.Set("session_id", token)
	c.Set("db", db)
	return user, true
}

func AuthRequired(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authenticate(c, db, cfg); !ok {
			return
		}
		c.Next()
	}
}

func AdminRequired(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := authenticate(c, db, cfg)
		if !ok {
			return
		}
		if !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}
