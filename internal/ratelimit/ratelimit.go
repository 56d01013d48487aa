// Package ratelimit guards expensive endpoints with sliding-window limits.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Limiter enforces per-minute and per-hour request limits. A limit of zero
// disables that window.
type Limiter struct {
	perMinute int
	perHour   int
	enabled   bool
	now       func() time.Time

	mu     sync.Mutex
	minute []time.Time
	hour   []time.Time
}

func NewLimiter(perMinute, perHour int, enabled bool) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		enabled:   enabled,
		now:       time.Now,
	}
}

// Allow records a request and reports whether it fits the limits. When it
// does not, the returned duration is how long until a slot frees up.
func (l *Limiter) Allow() (bool, time.Duration) {
	if !l.enabled {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	if l.perMinute > 0 && len(l.minute) >= l.perMinute {
		return false, l.minute[0].Add(time.Minute).Sub(now)
	}
	if l.perHour > 0 && len(l.hour) >= l.perHour {
		return false, l.hour[0].Add(time.Hour).Sub(now)
	}

	l.minute = append(l.minute, now)
	l.hour = append(l.hour, now)
	return true, 0
}

func (l *Limiter) cleanup(now time.Time) {
	l.minute = dropBefore(l.minute, now.Add(-time.Minute))
	l.hour = dropBefore(l.hour, now.Add(-time.Hour))
}

// dropBefore keeps only times after the cutoff. Times are appended in order
// so the kept ones are a suffix.
func dropBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// Stats reports current usage
func (l *Limiter) Stats() Stats {
	if !l.enabled {
		return Stats{Enabled: false}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanup(l.now())

	return Stats{
		Enabled:            true,
		RequestsLastMinute: len(l.minute),
		RequestsLastHour:   len(l.hour),
		LimitPerMinute:     l.perMinute,
		LimitPerHour:       l.perHour,
	}
}

type Stats struct {
	Enabled            bool `json:"enabled"`
	RequestsLastMinute int  `json:"requests_last_minute"`
	RequestsLastHour   int  `json:"requests_last_hour"`
	LimitPerMinute     int  `json:"limit_per_minute"`
	LimitPerHour       int  `json:"limit_per_hour"`
}

// Reset clears all tracked requests
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minute = nil
	l.hour = nil
}

// Middleware rejects requests over the limit with 429 and Retry-After
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.Allow()
		if ok {
			c.Next()
			return
		}
		secs := int((wait + time.Second - 1) / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"status":  "rate_limited",
			"message": "Too many scan requests, try again later",
		})
	}
}
