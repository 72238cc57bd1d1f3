package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/userctx"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_SecondRequestReturns429(t *testing.T) {
	cfg := &config.Config{RateLimitRPS: 1, RateLimitBurst: 1}
	handler := RateLimitMiddleware(cfg, zap.NewNop(), okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/today", nil)
	req.RemoteAddr = "1.2.3.4:12345"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After=1, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	cfg := &config.Config{RateLimitRPS: 0}

	calls := 0
	handler := RateLimitMiddleware(cfg, zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "1.2.3.4:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	if calls != 10 {
		t.Errorf("expected 10 calls, got %d", calls)
	}
}

// Участники за одним NAT не делят bucket.
func TestRateLimit_KeyedByIdentity(t *testing.T) {
	limiter := NewRateLimiter(1, 1, zap.NewNop())
	handler := limiter.Middleware(okHandler())

	send := func(sub string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/today", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		if sub != "" {
			req = req.WithContext(userctx.WithIdentity(req.Context(), sub, userctx.RoleMember))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send("alice"); code != http.StatusOK {
		t.Fatalf("alice: expected 200, got %d", code)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Fatalf("bob: expected 200, got %d", code)
	}
	if code := send(""); code != http.StatusOK {
		t.Fatalf("anonymous: expected 200, got %d", code)
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("alice again: expected 429, got %d", code)
	}
}

func TestRateLimit_IdleClientsEvicted(t *testing.T) {
	limiter := NewRateLimiter(1, 1, zap.NewNop())
	now := time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("ip:1.1.1.1")
	limiter.Allow("ip:2.2.2.2")
	if n := limiter.size(); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}

	now = now.Add(idleTTL + time.Minute)
	limiter.Allow("ip:3.3.3.3")
	if n := limiter.size(); n != 1 {
		t.Errorf("expected idle clients evicted, got %d", n)
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr", "1.2.3.4:5555", "", "1.2.3.4"},
		{"forwarded chain", "10.0.0.1:80", "203.0.113.7, 10.0.0.1", "203.0.113.7"},
		{"no port", "1.2.3.4", "", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractIP(req); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
