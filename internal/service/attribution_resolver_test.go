package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
)

func TestParseAttributionCookie(t *testing.T) {
	cookie, err := ParseAttributionCookie(" 12|34 ")
	if err != nil {
		t.Fatalf("parse cookie failed: %v", err)
	}
	if cookie.AffiliateParam != "12" || cookie.VisitID != 34 {
		t.Fatalf("unexpected cookie: %+v", cookie)
	}
	if FormatAttributionCookie("12", 34) != "12|34" {
		t.Fatalf("unexpected formatted cookie")
	}
	for _, raw := range []string{"", "12", "12|", "|34", "12|abc", "12|0", "12|34|56"} {
		if _, err := ParseAttributionCookie(raw); !errors.Is(err, ErrAttributionCookieInvalid) {
			t.Fatalf("expected invalid cookie for %q, got %v", raw, err)
		}
	}
}

func TestTrackVisitOutcomes(t *testing.T) {
	f := setupEngineTest(t)
	affiliate := f.createAffiliate(t, "olga", "", constants.RateTypeDefault, "")
	param := fmt.Sprintf("%d", affiliate.ID)

	invalid, err := f.resolver.TrackVisit(TrackVisitInput{AffiliateParam: "99999"})
	if err != nil {
		t.Fatalf("track visit failed: %v", err)
	}
	if invalid.Outcome != constants.VisitOutcomeInvalidAffiliate || invalid.CookieValue != "" {
		t.Fatalf("expected invalid affiliate, got %+v", invalid)
	}

	self, err := f.resolver.TrackVisit(TrackVisitInput{AffiliateParam: param, UserID: affiliate.UserID})
	if err != nil {
		t.Fatalf("track visit failed: %v", err)
	}
	if self.Outcome != constants.VisitOutcomeSelfVisit || self.CookieValue != "" {
		t.Fatalf("expected self visit ignored, got %+v", self)
	}

	created, err := f.resolver.TrackVisit(TrackVisitInput{
		AffiliateParam: param,
		URL:            "https://shop.example.com/?ref=" + param,
		UTMSource:      strings.Repeat("s", 300),
		IP:             "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("track visit failed: %v", err)
	}
	if created.Outcome != constants.VisitOutcomeCreated || created.VisitID == 0 {
		t.Fatalf("expected created visit, got %+v", created)
	}
	if created.CookieValue != FormatAttributionCookie(param, created.VisitID) {
		t.Fatalf("unexpected cookie value %q", created.CookieValue)
	}
	if created.MaxAge != 30*86400 {
		t.Fatalf("expected 30 day max age, got %d", created.MaxAge)
	}
	var visit models.Visit
	if err := f.db.First(&visit, created.VisitID).Error; err != nil {
		t.Fatalf("load visit failed: %v", err)
	}
	if len([]rune(visit.UTMSource)) != visitUTMMaxRune {
		t.Fatalf("expected utm source truncated to %d, got %d", visitUTMMaxRune, len([]rune(visit.UTMSource)))
	}

	existing, err := f.resolver.TrackVisit(TrackVisitInput{AffiliateParam: param, Cookie: created.CookieValue})
	if err != nil {
		t.Fatalf("track visit failed: %v", err)
	}
	if existing.Outcome != constants.VisitOutcomeExisting || existing.VisitID != created.VisitID {
		t.Fatalf("expected existing visit reused, got %+v", existing)
	}

	reloaded := f.reloadAffiliate(t, affiliate.ID)
	if reloaded.Visits != 1 {
		t.Fatalf("expected 1 visit counted, got %d", reloaded.Visits)
	}
	f.assertLedgerConsistent(t, affiliate.ID)
}

func TestTrackVisitCreditLastReferrer(t *testing.T) {
	f := setupEngineTest(t)
	first := f.createAffiliate(t, "paul", "", constants.RateTypeDefault, "")
	second := f.createAffiliate(t, "quinn", "", constants.RateTypeDefault, "")
	cookie := f.visitCookie(t, first)

	overridden, err := f.resolver.TrackVisit(TrackVisitInput{AffiliateParam: fmt.Sprintf("%d", second.ID), Cookie: cookie})
	if err != nil {
		t.Fatalf("track visit failed: %v", err)
	}
	if overridden.Outcome != constants.VisitOutcomeCreated || overridden.AffiliateID != second.ID {
		t.Fatalf("expected last referrer to take over, got %+v", overridden)
	}

	setting := ReferralDefaultSetting()
	setting.CreditLastReferrer = false
	if _, err := f.settings.UpdateReferralSetting(setting); err != nil {
		t.Fatalf("update setting failed: %v", err)
	}
	kept, err := f.resolver.TrackVisit(TrackVisitInput{AffiliateParam: fmt.Sprintf("%d", second.ID), Cookie: cookie})
	if err != nil {
		t.Fatalf("track visit failed: %v", err)
	}
	if kept.Outcome != constants.VisitOutcomeAlreadyExist || kept.CookieValue != "" || kept.MaxAge != 0 {
		t.Fatalf("expected first referrer kept, got %+v", kept)
	}
}

func TestTrackVisitUsernameFormat(t *testing.T) {
	f := setupEngineTest(t)
	affiliate := f.createAffiliate(t, "rachel", "", constants.RateTypeDefault, "")
	setting := ReferralDefaultSetting()
	setting.ReferralFormat = constants.ReferralFormatUsername
	if _, err := f.settings.UpdateReferralSetting(setting); err != nil {
		t.Fatalf("update setting failed: %v", err)
	}

	result, err := f.resolver.TrackVisit(TrackVisitInput{AffiliateParam: "rachel"})
	if err != nil {
		t.Fatalf("track visit failed: %v", err)
	}
	if result.Outcome != constants.VisitOutcomeCreated || !strings.HasPrefix(result.CookieValue, "rachel|") {
		t.Fatalf("expected username cookie, got %+v", result)
	}

	attribution, err := f.resolver.Resolve(VisitorContext{Cookie: result.CookieValue})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if attribution == nil || attribution.Affiliate.ID != affiliate.ID || attribution.Source != AttributionSourceCookie {
		t.Fatalf("unexpected attribution: %+v", attribution)
	}

	numeric, err := f.resolver.TrackVisit(TrackVisitInput{AffiliateParam: fmt.Sprintf("%d", affiliate.ID)})
	if err != nil {
		t.Fatalf("track visit failed: %v", err)
	}
	if numeric.Outcome != constants.VisitOutcomeInvalidAffiliate {
		t.Fatalf("expected id param rejected in username mode, got %s", numeric.Outcome)
	}
}

func TestResolveIgnoresExpiredAndInactive(t *testing.T) {
	f := setupEngineTest(t)
	affiliate := f.createAffiliate(t, "sam", "", constants.RateTypeDefault, "")
	cookie := f.visitCookie(t, affiliate)
	parsed, err := ParseAttributionCookie(cookie)
	if err != nil {
		t.Fatalf("parse cookie failed: %v", err)
	}

	expiredAt := time.Now().Add(-31 * 24 * time.Hour)
	if err := f.db.Model(&models.Visit{}).Where("id = ?", parsed.VisitID).Update("created_at", expiredAt).Error; err != nil {
		t.Fatalf("age visit failed: %v", err)
	}
	if attribution, err := f.resolver.Resolve(VisitorContext{Cookie: cookie}); err != nil || attribution != nil {
		t.Fatalf("expected expired visit ignored, got %+v err=%v", attribution, err)
	}

	fresh := f.visitCookie(t, affiliate)
	if err := f.db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).Update("status", constants.AffiliateStatusRejected).Error; err != nil {
		t.Fatalf("deactivate affiliate failed: %v", err)
	}
	if attribution, err := f.resolver.Resolve(VisitorContext{Cookie: fresh}); err != nil || attribution != nil {
		t.Fatalf("expected inactive affiliate ignored, got %+v err=%v", attribution, err)
	}
}

func TestIsSelfReferral(t *testing.T) {
	affiliate := &models.Affiliate{UserID: 5, PaymentEmail: "a@x.com"}
	if !IsSelfReferral(affiliate, "A@X.COM", 0) {
		t.Fatalf("expected email match to be self referral")
	}
	if !IsSelfReferral(affiliate, "", 5) {
		t.Fatalf("expected user match to be self referral")
	}
	if IsSelfReferral(affiliate, "b@x.com", 6) {
		t.Fatalf("expected different customer not to be self referral")
	}
	if IsSelfReferral(&models.Affiliate{UserID: 5}, "", 0) {
		t.Fatalf("expected empty email not to match")
	}
}
