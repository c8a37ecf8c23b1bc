// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alan-mat/docqa/internal/qa"
	"github.com/alan-mat/docqa/internal/registry"
	"github.com/alan-mat/docqa/internal/transport"
)

const (
	RequestIDHeader = "X-Request-ID"
	SessionCookie   = "docqa_session"

	sessionCookieMaxAge = 24 * 60 * 60

	keyRequestID = "request_id"
	keySessionID = "session_id"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(keyRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(keyRequestID),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "err", c.Errors.String())
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request failed", attrs...)
			return
		}
		logger.Debug("request completed", attrs...)
	}
}

// limiterIdleTTL is how long a client's token bucket survives without requests.
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	*rate.Limiter
	lastSeen atomic.Int64
}

// rateLimiter keeps one token bucket per client IP. Idle buckets are swept
// at most once per idleTTL.
type rateLimiter struct {
	limiters *registry.Registry[string, *clientLimiter]
	limit    rate.Limit
	burst    int

	idleTTL   time.Duration
	now       func() time.Time
	mu        sync.Mutex
	lastSweep time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		limiters:  registry.New[string, *clientLimiter](),
		limit:     rate.Limit(rps),
		burst:     burst,
		idleTTL:   limiterIdleTTL,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

func (l *rateLimiter) get(key string) *rate.Limiter {
	now := l.now()
	l.sweep(now)

	cl := l.limiters.GetOrRegister(key, func() *clientLimiter {
		return &clientLimiter{Limiter: rate.NewLimiter(l.limit, l.burst)}
	})
	cl.lastSeen.Store(now.UnixNano())
	return cl.Limiter
}

func (l *rateLimiter) sweep(now time.Time) {
	l.mu.Lock()
	if now.Sub(l.lastSweep) < l.idleTTL {
		l.mu.Unlock()
		return
	}
	l.lastSweep = now
	l.mu.Unlock()

	cutoff := now.Add(-l.idleTTL).UnixNano()
	var idle []string
	for _, key := range l.limiters.List() {
		if cl, ok := l.limiters.Get(key); ok && cl.lastSeen.Load() < cutoff {
			idle = append(idle, key)
		}
	}
	if len(idle) > 0 {
		l.limiters.Delete(idle...)
		slog.Debug("evicted idle rate limiters", "count", len(idle), "remaining", l.limiters.Len())
	}
}

func (l *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limit <= 0 || c.FullPath() == "/healthz" {
			c.Next()
			return
		}

		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}

// sessionID issues the session cookie on the first visit.
func sessionID(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err == nil {
			_, err = uuid.Parse(id)
		}
		if err != nil {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, id, sessionCookieMaxAge, "/", "", secure, true)
		}
		c.Set(keySessionID, id)
		c.Next()
	}
}

func getSessionID(c *gin.Context) string {
	return c.GetString(keySessionID)
}

var errTooLarge = errors.New("request body too large")

type errorResponse struct {
	Error string `json:"error"`
	JobID string `json:"job_id,omitempty"`
}

func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr), errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, qa.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, transport.ErrTraceNotFound):
		return http.StatusNotFound
	case qa.IsValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(status int, err error) string {
	switch {
	case errors.Is(err, qa.ErrNotReady):
		return qa.NotReadyMessage
	case status == http.StatusRequestEntityTooLarge:
		return "file too large"
	case status == http.StatusNotFound:
		return "not found"
	case status >= http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}

func abortWithError(c *gin.Context, err error) {
	abortWithJobError(c, err, "")
}

func abortWithJobError(c *gin.Context, err error, jobID string) {
	status := statusFor(err)
	c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{
		Error: messageFor(status, err),
		JobID: jobID,
	})
}
