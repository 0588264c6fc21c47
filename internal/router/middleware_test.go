package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func TestResolveAllowedOrigin(t *testing.T) {
	got := resolveAllowedOrigin("https://example.com", []string{"*"}, false)
	if got != "*" {
		t.Fatalf("wildcard without credentials should return *, got %s", got)
	}

	got = resolveAllowedOrigin("https://example.com", []string{"*"}, true)
	if got != "https://example.com" {
		t.Fatalf("wildcard with credentials should echo origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://a.example.com", []string{"https://a.example.com", "https://b.example.com"}, false)
	if got != "https://a.example.com" {
		t.Fatalf("allow-list should return matched origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://x.example.com", []string{"https://a.example.com"}, false)
	if got != "" {
		t.Fatalf("unmatched origin should be empty, got %s", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("response request id want req-123 got %s", w.Header().Get(requestIDHeader))
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["request_id"] != "req-123" {
		t.Fatalf("context request id want req-123 got %s", resp["request_id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	generated := w2.Header().Get(requestIDHeader)
	if generated == "" {
		t.Fatalf("generated request id should not be empty")
	}
	if resp := strings.TrimSpace(generated); resp == "" {
		t.Fatalf("generated request id should not be blank")
	}
}

type envelope struct {
	StatusCode int `json:"status_code"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp
}

func TestAdminAuthMiddlewareMissingSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AdminAuthMiddleware(""))
	r.GET("/admin/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if resp := decodeEnvelope(t, w); resp.StatusCode != 401 {
		t.Fatalf("status_code want 401 got %d", resp.StatusCode)
	}
}

func TestAdminAuthMiddlewareScopes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AdminAuthMiddleware("admin-secret"))
	r.GET("/admin/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString(adminSubjectContextKey)})
	})

	adminToken, _, err := service.IssueAccessToken("admin-secret", service.AccessTokenClaims{
		Scope:            service.TokenScopeAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"},
	}, time.Hour)
	if err != nil {
		t.Fatalf("issue admin token failed: %v", err)
	}
	connectorToken, _, err := service.IssueAccessToken("admin-secret", service.AccessTokenClaims{
		Scope:    service.TokenScopeConnector,
		Provider: "generic",
	}, time.Hour)
	if err != nil {
		t.Fatalf("issue connector token failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"subject":"ops"`) {
		t.Fatalf("admin token should pass, got %s", w.Body.String())
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req2.Header.Set("Authorization", "Bearer "+connectorToken)
	r.ServeHTTP(w2, req2)
	if resp := decodeEnvelope(t, w2); resp.StatusCode != 401 {
		t.Fatalf("connector token on admin route want 401 got %d", resp.StatusCode)
	}

	w3 := httptest.NewRecorder()
	req3 := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req3.Header.Set("Authorization", "Token "+adminToken)
	r.ServeHTTP(w3, req3)
	if resp := decodeEnvelope(t, w3); resp.StatusCode != 401 {
		t.Fatalf("malformed header want 401 got %d", resp.StatusCode)
	}
}

func TestConnectorAuthMiddlewareProviderMatch(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/connectors/:provider/orders", ConnectorAuthMiddleware("hook-secret"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"provider": c.GetString(connectorProviderContextKey)})
	})

	token, _, err := service.IssueAccessToken("hook-secret", service.AccessTokenClaims{
		Scope:    service.TokenScopeConnector,
		Provider: "shop",
	}, 0)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/connectors/Shop/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"provider":"shop"`) {
		t.Fatalf("matching provider should pass, got %s", w.Body.String())
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/connectors/other/orders", nil)
	req2.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w2, req2)
	if resp := decodeEnvelope(t, w2); resp.StatusCode != 403 {
		t.Fatalf("provider mismatch want 403 got %d", resp.StatusCode)
	}
}
