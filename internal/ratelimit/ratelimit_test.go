package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(perMinute, perHour int) (*Limiter, *time.Time) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(perMinute, perHour, true)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_MinuteWindow(t *testing.T) {
	l, now := newTestLimiter(2, 0)

	ok, _ := l.Allow()
	assert.True(t, ok)
	*now = now.Add(10 * time.Second)
	ok, _ = l.Allow()
	assert.True(t, ok)

	ok, wait := l.Allow()
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second, wait)

	*now = now.Add(51 * time.Second)
	ok, _ = l.Allow()
	assert.True(t, ok, "first request left the window")
}

func TestLimiter_HourWindow(t *testing.T) {
	l, now := newTestLimiter(0, 3)
	for i := 0; i < 3; i++ {
		ok, _ := l.Allow()
		require.True(t, ok)
		*now = now.Add(5 * time.Minute)
	}
	ok, wait := l.Allow()
	assert.False(t, ok)
	assert.Equal(t, 45*time.Minute, wait)

	st := l.Stats()
	assert.Equal(t, 3, st.RequestsLastHour)
	assert.Equal(t, 3, st.LimitPerHour)
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(1, 1, false)
	for i := 0; i < 5; i++ {
		ok, _ := l.Allow()
		assert.True(t, ok)
	}
	assert.False(t, l.Stats().Enabled)
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(1, 0)
	ok, _ := l.Allow()
	require.True(t, ok)
	ok, _ = l.Allow()
	require.False(t, ok)

	l.Reset()
	ok, _ = l.Allow()
	assert.True(t, ok)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(1, 0)

	r := gin.New()
	r.POST("/scan", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scan", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scan", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}
