package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadgen_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const msgWrongStatus = "status = %d, want %d"

type fakeRateLimitConfig struct {
	enabled  bool
	requests int
	window   time.Duration
	exempt   []string
}

func (c fakeRateLimitConfig) GetRateLimitEnabled() bool { return c.enabled }

func (c fakeRateLimitConfig) GetRateLimitRequests() int { return c.requests }

func (c fakeRateLimitConfig) GetRateLimitWindow() time.Duration { return c.window }

func (c fakeRateLimitConfig) GetRateLimitExemptPaths() []string { return c.exempt }

func okHandler(c *gin.Context) { c.Status(http.StatusOK) }

func newEngine(middleware gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware)
	engine.GET("/api/v1/leads", okHandler)
	engine.GET("/health", okHandler)
	return engine
}

func setupLimiter(t *testing.T, cfg fakeRateLimitConfig) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	limiter := NewRedisRateLimiter(rdb, cfg, logger.New("test"))
	return newEngine(limiter.RateLimit()), mr
}

func get(engine *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	engine.ServeHTTP(w, req)
	return w
}

func TestRedisWindowCapsRequests(t *testing.T) {
	engine, _ := setupLimiter(t, fakeRateLimitConfig{enabled: true, requests: 3, window: time.Hour})

	for i, want := range []string{"2", "1", "0"} {
		w := get(engine, "/api/v1/leads", nil)
		if w.Code != http.StatusOK {
			t.Fatalf(msgWrongStatus, w.Code, http.StatusOK)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != want {
			t.Fatalf("request %d remaining = %q, want %q", i+1, got, want)
		}
	}

	w := get(engine, "/api/v1/leads", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf(msgWrongStatus, w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header on the limited response")
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("remaining after the cap = %q, want %q", got, "0")
	}
}

func TestExemptPathBypassesWindow(t *testing.T) {
	engine, _ := setupLimiter(t, fakeRateLimitConfig{
		enabled:  true,
		requests: 1,
		window:   time.Hour,
		exempt:   []string{"/health"},
	})

	if w := get(engine, "/api/v1/leads", nil); w.Code != http.StatusOK {
		t.Fatalf(msgWrongStatus, w.Code, http.StatusOK)
	}
	if w := get(engine, "/api/v1/leads", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf(msgWrongStatus, w.Code, http.StatusTooManyRequests)
	}

	for i := 0; i < 5; i++ {
		w := get(engine, "/health", nil)
		if w.Code != http.StatusOK {
			t.Fatalf(msgWrongStatus, w.Code, http.StatusOK)
		}
		if w.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatal("expected no counting headers on an exempt path")
		}
	}
}

func TestDisabledLimiterPassesThrough(t *testing.T) {
	engine, _ := setupLimiter(t, fakeRateLimitConfig{enabled: false, requests: 1, window: time.Hour})

	for i := 0; i < 5; i++ {
		w := get(engine, "/api/v1/leads", nil)
		if w.Code != http.StatusOK {
			t.Fatalf(msgWrongStatus, w.Code, http.StatusOK)
		}
		if w.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatal("expected no counting headers when the limiter is disabled")
		}
	}
}

func TestRedisOutageFailsOpen(t *testing.T) {
	engine, mr := setupLimiter(t, fakeRateLimitConfig{enabled: true, requests: 1, window: time.Hour})
	mr.Close()

	for i := 0; i < 3; i++ {
		if w := get(engine, "/api/v1/leads", nil); w.Code != http.StatusOK {
			t.Fatalf(msgWrongStatus, w.Code, http.StatusOK)
		}
	}
}

func TestClientsHaveSeparateBudgets(t *testing.T) {
	engine, _ := setupLimiter(t, fakeRateLimitConfig{enabled: true, requests: 1, window: time.Hour})

	alpha := map[string]string{"X-API-Key": "source-alpha"}
	if w := get(engine, "/api/v1/leads", alpha); w.Code != http.StatusOK {
		t.Fatalf(msgWrongStatus, w.Code, http.StatusOK)
	}
	if w := get(engine, "/api/v1/leads", alpha); w.Code != http.StatusTooManyRequests {
		t.Fatalf(msgWrongStatus, w.Code, http.StatusTooManyRequests)
	}

	// A different key and an anonymous caller count against their own windows.
	if w := get(engine, "/api/v1/leads", map[string]string{"X-API-Key": "source-beta"}); w.Code != http.StatusOK {
		t.Fatalf(msgWrongStatus, w.Code, http.StatusOK)
	}
	if w := get(engine, "/api/v1/leads", nil); w.Code != http.StatusOK {
		t.Fatalf(msgWrongStatus, w.Code, http.StatusOK)
	}
}

func TestIPLimiterEnforcesBurst(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 2, logger.New("test"))
	engine := newEngine(limiter.RateLimit())

	for i := 0; i < 2; i++ {
		if w := get(engine, "/api/v1/leads", nil); w.Code != http.StatusOK {
			t.Fatalf(msgWrongStatus, w.Code, http.StatusOK)
		}
	}
	if w := get(engine, "/api/v1/leads", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf(msgWrongStatus, w.Code, http.StatusTooManyRequests)
	}
}
