package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/provider"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	testAdminSecret = "router-admin-secret"
	testHookSecret  = "router-hook-secret"
)

type apiEnvelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

type routerFixture struct {
	engine         *gin.Engine
	db             *gorm.DB
	adminToken     string
	connectorToken string
}

func setupRouterTest(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.Server.Mode = "debug"
	cfg.JWT.SecretKey = testAdminSecret
	cfg.Connectors.TokenSecret = testHookSecret
	cfg.Connectors.Providers = []string{"shop"}
	cfg.Referral.CookieName = constants.AttributionCookieName
	container := provider.NewContainerWithDB(cfg, db)

	adminToken, _, err := service.IssueAccessToken(testAdminSecret, service.AccessTokenClaims{Scope: service.TokenScopeAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("issue admin token failed: %v", err)
	}
	connectorToken, _, err := service.IssueAccessToken(testHookSecret, service.AccessTokenClaims{Scope: service.TokenScopeConnector, Provider: "shop"}, time.Hour)
	if err != nil {
		t.Fatalf("issue connector token failed: %v", err)
	}
	return &routerFixture{
		engine:         SetupRouter(cfg, container),
		db:             db,
		adminToken:     adminToken,
		connectorToken: connectorToken,
	}
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body interface{}, cookies ...*http.Cookie) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env apiEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal %s %s response failed: %v body=%s", method, path, err, w.Body.String())
	}
	return w, env
}

func decodeData(t *testing.T, env apiEnvelope, dest interface{}) {
	t.Helper()
	if env.StatusCode != 0 {
		t.Fatalf("expected success, got %d %s", env.StatusCode, env.Msg)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data failed: %v data=%s", err, string(env.Data))
	}
}

func TestReferralFlowOverHTTP(t *testing.T) {
	f := setupRouterTest(t)

	_, env := f.do(t, http.MethodPost, "/api/v1/admin/users", f.adminToken, gin.H{"username": "alice", "email": "alice@example.com"})
	var user models.User
	decodeData(t, env, &user)

	_, env = f.do(t, http.MethodPost, "/api/v1/admin/affiliates", f.adminToken, gin.H{
		"user_id":   user.ID,
		"rate_type": constants.RateTypePercentage,
		"rate":      "10",
	})
	var affiliate models.Affiliate
	decodeData(t, env, &affiliate)

	w, env := f.do(t, http.MethodPost, "/api/v1/public/visits", "", gin.H{"ref": fmt.Sprintf("%d", affiliate.ID)})
	var visit service.TrackVisitResult
	decodeData(t, env, &visit)
	if visit.Outcome != constants.VisitOutcomeCreated {
		t.Fatalf("expected visit created, got %+v", visit)
	}
	var cookieValue string
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == constants.AttributionCookieName {
			cookieValue = cookie.Value
		}
	}
	if cookieValue == "" {
		t.Fatalf("attribution cookie missing")
	}

	_, env = f.do(t, http.MethodPost, "/api/v1/connectors/shop/orders", f.connectorToken, service.RawOrder{
		ProviderID:        "1001",
		Currency:          "USD",
		Status:            constants.PlatformOrderStatusPending,
		Subtotal:          10000,
		Customer:          service.RawCustomer{Email: "buyer@example.com"},
		AttributionCookie: cookieValue,
	})
	var outcome service.ReferralOutcome
	decodeData(t, env, &outcome)
	if outcome.Outcome != constants.ReferralOutcomeCreated || outcome.Referral == nil {
		t.Fatalf("expected created referral, got %+v", outcome)
	}
	if outcome.Referral.Status != constants.ReferralStatusPending || outcome.Referral.Amount.StringFixed(2) != "10.00" {
		t.Fatalf("unexpected referral: %+v", outcome.Referral)
	}
	if outcome.Referral.Provider != "shop" {
		t.Fatalf("provider should come from the route, got %s", outcome.Referral.Provider)
	}

	_, env = f.do(t, http.MethodPost, "/api/v1/connectors/shop/orders/1001/status", f.connectorToken, gin.H{"status": "paid"})
	var view struct {
		Referral *models.Referral `json:"referral"`
	}
	decodeData(t, env, &view)
	if view.Referral == nil || view.Referral.Status != constants.ReferralStatusUnpaid {
		t.Fatalf("expected unpaid referral, got %+v", view.Referral)
	}

	_, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/affiliates/%d", affiliate.ID), f.adminToken, nil)
	var reloaded models.Affiliate
	decodeData(t, env, &reloaded)
	if reloaded.UnpaidEarnings.StringFixed(2) != "10.00" || reloaded.Visits != 1 || reloaded.Referrals != 1 {
		t.Fatalf("unexpected ledger: unpaid=%s visits=%d referrals=%d", reloaded.UnpaidEarnings.StringFixed(2), reloaded.Visits, reloaded.Referrals)
	}

	_, env = f.do(t, http.MethodPost, "/api/v1/admin/payouts", f.adminToken, gin.H{
		"affiliate_ids": []uint{affiliate.ID},
		"currency":      "usd",
	})
	var payout models.Payout
	decodeData(t, env, &payout)
	if payout.ID == 0 {
		t.Fatalf("expected payout to be created")
	}

	_, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/referrals/%d", outcome.Referral.ID), f.adminToken, nil)
	var detail struct {
		Referral   models.Referral           `json:"referral"`
		Activities []models.ReferralActivity `json:"activities"`
	}
	decodeData(t, env, &detail)
	paid := detail.Referral
	if len(detail.Activities) != 0 {
		t.Fatalf("queue disabled, expected no activities, got %d", len(detail.Activities))
	}
	if paid.Status != constants.ReferralStatusPaid || paid.PayoutID == nil || *paid.PayoutID != payout.ID {
		t.Fatalf("expected referral paid by payout %d, got %+v", payout.ID, paid)
	}

	// 已结算的推广订单不可驳回
	_, env = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/referrals/%d/reject", paid.ID), f.adminToken, gin.H{"reason": "fraud"})
	if env.StatusCode != 409 {
		t.Fatalf("reject paid referral want 409 got %d", env.StatusCode)
	}
}

func TestConnectorRoutesRequireMatchingToken(t *testing.T) {
	f := setupRouterTest(t)

	_, env := f.do(t, http.MethodPost, "/api/v1/connectors/shop/orders", "", service.RawOrder{ProviderID: "1"})
	if env.StatusCode != 401 {
		t.Fatalf("missing token want 401 got %d", env.StatusCode)
	}

	_, env = f.do(t, http.MethodPost, "/api/v1/connectors/other/orders", f.connectorToken, service.RawOrder{ProviderID: "1"})
	if env.StatusCode != 403 {
		t.Fatalf("provider mismatch want 403 got %d", env.StatusCode)
	}

	otherToken, _, err := service.IssueAccessToken(testHookSecret, service.AccessTokenClaims{Scope: service.TokenScopeConnector, Provider: "other"}, 0)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	_, env = f.do(t, http.MethodPost, "/api/v1/connectors/other/orders", otherToken, service.RawOrder{ProviderID: "1"})
	if env.StatusCode != 404 {
		t.Fatalf("unregistered provider want 404 got %d", env.StatusCode)
	}

	_, env = f.do(t, http.MethodPost, "/api/v1/connectors/shop/orders", f.connectorToken, service.RawOrder{ProviderID: "1", Currency: "US"})
	if env.StatusCode != 400 {
		t.Fatalf("invalid order want 400 got %d", env.StatusCode)
	}

	_, env = f.do(t, http.MethodGet, "/api/v1/connectors/shop/orders/404/referral", f.connectorToken, nil)
	if env.StatusCode != 404 {
		t.Fatalf("missing referral want 404 got %d", env.StatusCode)
	}

	// 管理端令牌不能调用连接器接口
	_, env = f.do(t, http.MethodPost, "/api/v1/connectors/shop/orders", f.adminToken, service.RawOrder{ProviderID: "1"})
	if env.StatusCode != 401 {
		t.Fatalf("admin token on connector route want 401 got %d", env.StatusCode)
	}
}

func TestAdminSettingsPartialUpdate(t *testing.T) {
	f := setupRouterTest(t)

	_, env := f.do(t, http.MethodPut, "/api/v1/admin/settings/referral", f.adminToken, gin.H{"rate": 25})
	var setting service.ReferralSetting
	decodeData(t, env, &setting)
	if setting.Rate != 25 {
		t.Fatalf("rate want 25 got %v", setting.Rate)
	}
	defaults := service.ReferralDefaultSetting()
	if setting.CookieDurationDays != defaults.CookieDurationDays || setting.ReferralFormat != defaults.ReferralFormat {
		t.Fatalf("untouched fields should keep defaults, got %+v", setting)
	}

	_, env = f.do(t, http.MethodPut, "/api/v1/admin/settings/referral", f.adminToken, gin.H{"rate": 150, "rate_type": "percentage"})
	if env.StatusCode != 400 {
		t.Fatalf("invalid percentage want 400 got %d", env.StatusCode)
	}

	_, env = f.do(t, http.MethodPut, "/api/v1/admin/settings/connectors/shop", f.adminToken, gin.H{"enabled": false})
	var connectorSetting service.ConnectorSetting
	decodeData(t, env, &connectorSetting)
	if connectorSetting.Enabled {
		t.Fatalf("connector should be disabled")
	}

	_, env = f.do(t, http.MethodGet, "/api/v1/admin/settings/connectors/unknown", f.adminToken, nil)
	if env.StatusCode != 404 {
		t.Fatalf("unknown connector want 404 got %d", env.StatusCode)
	}

	_, env = f.do(t, http.MethodPost, "/api/v1/admin/connector-tokens", f.adminToken, gin.H{"provider": "shop", "ttl_hours": 1})
	var issued struct {
		Provider string `json:"provider"`
		Token    string `json:"token"`
	}
	decodeData(t, env, &issued)
	if _, err := service.ParseAccessToken(testHookSecret, issued.Token, service.TokenScopeConnector); err != nil {
		t.Fatalf("issued token should verify: %v", err)
	}

	_, env = f.do(t, http.MethodPost, "/api/v1/admin/ledger/reconcile", f.adminToken, nil)
	var reconcile struct {
		Queued bool `json:"queued"`
	}
	decodeData(t, env, &reconcile)
	if reconcile.Queued {
		t.Fatalf("queue disabled, reconcile should run inline")
	}
}
