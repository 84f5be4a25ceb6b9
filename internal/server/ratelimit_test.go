package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := newRateLimiter(5, time.Second)

	for i := 0; i < 5; i++ {
		if !rl.allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("192.168.1.1") {
		t.Error("6th request should be denied")
	}

	// A different IP has its own budget.
	if !rl.allow("192.168.1.2") {
		t.Error("request from different IP should be allowed")
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2, 100*time.Millisecond)

	if !rl.allow("192.168.1.1") || !rl.allow("192.168.1.1") {
		t.Fatal("first two requests should be allowed")
	}
	if rl.allow("192.168.1.1") {
		t.Error("third request should be denied")
	}

	time.Sleep(110 * time.Millisecond)

	if !rl.allow("192.168.1.1") {
		t.Error("request after the window should be allowed")
	}
}

func TestRateLimitOnServer(t *testing.T) {
	ts := newTestStore()
	srv := New(Config{Addr: ":0", RateLimitPerMinute: 3}, ts, newTestBlob())
	h := srv.Handler()

	hit := func() int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		if code := hit(); code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i+1, code)
		}
	}
	if code := hit(); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{name: "remote addr only", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "x-forwarded-for single", remoteAddr: "127.0.0.1:1", xff: "203.0.113.1", want: "203.0.113.1"},
		{name: "x-forwarded-for list takes first", remoteAddr: "127.0.0.1:1", xff: "203.0.113.1, 198.51.100.1", want: "203.0.113.1"},
		{name: "x-real-ip", remoteAddr: "127.0.0.1:1", xri: "203.0.113.5", want: "203.0.113.5"},
		{name: "x-forwarded-for beats x-real-ip", remoteAddr: "127.0.0.1:1", xff: "203.0.113.1", xri: "203.0.113.5", want: "203.0.113.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
