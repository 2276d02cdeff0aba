package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/config"
)

func newRateLimitRouter(cfg *config.RateLimitingConfig) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doGet(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4411"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_DisabledPassesThrough(t *testing.T) {
	r := newRateLimitRouter(&config.RateLimitingConfig{Enabled: false})

	for i := 0; i < 50; i++ {
		if w := doGet(r); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_LocalBucketExhausts(t *testing.T) {
	r := newRateLimitRouter(&config.RateLimitingConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             3,
	})

	for i := 0; i < 3; i++ {
		if w := doGet(r); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	if w := doGet(r); w.Code != http.StatusTooManyRequests {
		t.Errorf("request past burst: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestRateLimitMiddleware_KeysAreIndependent(t *testing.T) {
	r := newRateLimitRouter(&config.RateLimitingConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
	})

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "203.0.113.7:4411"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, first)
	if w.Code != http.StatusOK {
		t.Fatalf("first client: status = %d, want %d", w.Code, http.StatusOK)
	}

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "198.51.100.9:5522"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, second)
	if w.Code != http.StatusOK {
		t.Errorf("second client: status = %d, want %d (buckets must be per client)", w.Code, http.StatusOK)
	}
}

func TestLocalLimiter_RefillsOverTime(t *testing.T) {
	l := newLocalLimiter(6000, 1)

	if !l.allow("k") {
		t.Fatal("first call should be allowed")
	}
	if l.allow("k") {
		t.Fatal("second immediate call should be denied")
	}

	// 6000/min = 100 tokens/sec; rewind lastSeen to simulate elapsed time.
	l.mu.Lock()
	l.buckets["k"].lastSeen = l.buckets["k"].lastSeen.Add(-100_000_000) // 100ms
	l.mu.Unlock()

	if !l.allow("k") {
		t.Error("call after refill window should be allowed")
	}
}
