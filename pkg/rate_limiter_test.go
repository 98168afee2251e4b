package pkg

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiterAllow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("expected burst of 2 to be allowed")
	}
	if rl.Allow("a") {
		t.Fatalf("expected third request to be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("clients must not share a bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatalf("expected a token after one second")
	}
}

func TestRateLimiterPrune(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(10 * time.Minute)
	rl.Allow("new")

	if pruned := rl.Prune(5 * time.Minute); pruned != 1 {
		t.Fatalf("expected 1 pruned client, got %d", pruned)
	}
	if _, ok := rl.clients["new"]; !ok {
		t.Fatalf("expected recent client to be kept")
	}
}

func TestClientKey(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:5555":   "localhost",
		"[::1]:5555":       "localhost",
		"10.0.0.7:1234":    "10.0.0.7",
		"no-port-attached": "no-port-attached",
	}
	for in, want := range tests {
		if got := clientKey(in); got != want {
			t.Fatalf("clientKey(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.001, 1)

	router := gin.New()
	router.Use(rl.Limit())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected [200 429], got %v", codes)
	}
}
