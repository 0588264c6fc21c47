package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByIPAndJSONField(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/public/visits", strings.NewReader(`{"ref":" Alice ","url":"https://shop.example/?ref=alice"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.RemoteAddr = "1.2.3.4:5678"

	key := KeyByIPAndJSONField("ref")(c)
	if key != "alice|1.2.3.4" {
		t.Fatalf("key want alice|1.2.3.4 got %s", key)
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		t.Fatalf("read body after key extraction failed: %v", err)
	}
	if !strings.Contains(string(body), " Alice ") {
		t.Fatalf("request body should be restored after reading field")
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1, Message: "slow down %d"}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("expected handler response body, got %s", w.Body.String())
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		name   string
		ttl    time.Duration
		window int
		want   int
	}{
		{name: "remaining ttl", ttl: 42 * time.Second, window: 60, want: 42},
		{name: "no expiry", ttl: -1, window: 60, want: 60},
		{name: "missing key", ttl: -2, window: 0, want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryAfterSeconds(tc.ttl, tc.window); got != tc.want {
				t.Fatalf("retry after want %d got %d", tc.want, got)
			}
		})
	}
}

func TestKeyByIPAndNumericJSONField(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/public/visits", strings.NewReader(`{"ref":17}`))
	c.Request.RemoteAddr = "5.6.7.8:1000"

	if key := KeyByIPAndJSONField("ref")(c); key != "17|5.6.7.8" {
		t.Fatalf("key want 17|5.6.7.8 got %s", key)
	}
}
