package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type recordingListener struct {
	mu     sync.Mutex
	events []ReferralEvent
}

func (l *recordingListener) OnReferralEvent(_ context.Context, event ReferralEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingListener) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.events))
	for _, event := range l.events {
		names = append(names, event.Name)
	}
	return names
}

type engineFixture struct {
	db            *gorm.DB
	settings      *SettingService
	affiliateRepo *repository.GormAffiliateRepository
	referralRepo  *repository.GormReferralRepository
	customerRepo  *repository.GormCustomerRepository
	ledger        *AffiliateLedger
	resolver      *AttributionResolver
	referrals     *ReferralService
	payouts       *PayoutService
	affiliates    *AffiliateService
	listener      *recordingListener
}

func setupEngineTest(t *testing.T, opts ...ReferralServiceOption) *engineFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:referral_engine_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	affiliateRepo := repository.NewAffiliateRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	visitRepo := repository.NewVisitRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	userRepo := repository.NewUserRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)

	settings := NewSettingService(newMockSettingRepo())
	listener := &recordingListener{}
	bus := NewReferralEventBus(listener)
	ledger := NewAffiliateLedger(affiliateRepo, referralRepo)
	resolver := NewAttributionResolver(affiliateRepo, visitRepo, customerRepo, ledger, settings)

	return &engineFixture{
		db:            db,
		settings:      settings,
		affiliateRepo: affiliateRepo,
		referralRepo:  referralRepo,
		customerRepo:  customerRepo,
		ledger:        ledger,
		resolver:      resolver,
		referrals:     NewReferralService(affiliateRepo, referralRepo, visitRepo, customerRepo, resolver, ledger, settings, bus, opts...),
		payouts:       NewPayoutService(affiliateRepo, referralRepo, payoutRepo, ledger, bus),
		affiliates:    NewAffiliateService(affiliateRepo, userRepo, visitRepo, ledger),
		listener:      listener,
	}
}

func (f *engineFixture) createAffiliate(t *testing.T, username, paymentEmail, rateType, rate string) *models.Affiliate {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", Status: constants.UserStatusActive}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	affiliate := models.Affiliate{
		UserID:       user.ID,
		RateType:     rateType,
		PaymentEmail: paymentEmail,
		Status:       constants.AffiliateStatusActive,
	}
	if rate != "" {
		money := models.NewMoneyFromDecimal(decimal.RequireFromString(rate))
		affiliate.Rate = &money
	}
	if err := f.db.Create(&affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	return &affiliate
}

// visitCookie 通过访问追踪拿到推广 Cookie
func (f *engineFixture) visitCookie(t *testing.T, affiliate *models.Affiliate) string {
	t.Helper()
	result, err := f.resolver.TrackVisit(TrackVisitInput{
		AffiliateParam: fmt.Sprintf("%d", affiliate.ID),
		URL:            "https://shop.example.com/landing",
	})
	if err != nil {
		t.Fatalf("track visit failed: %v", err)
	}
	if result.Outcome != constants.VisitOutcomeCreated || result.CookieValue == "" {
		t.Fatalf("expected created visit, got %+v", result)
	}
	return result.CookieValue
}

func (f *engineFixture) reloadAffiliate(t *testing.T, id uint) *models.Affiliate {
	t.Helper()
	affiliate, err := f.affiliateRepo.GetByID(id)
	if err != nil || affiliate == nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	return affiliate
}

func (f *engineFixture) reloadReferral(t *testing.T, id uint) *models.Referral {
	t.Helper()
	referral, err := f.referralRepo.GetByID(id)
	if err != nil || referral == nil {
		t.Fatalf("reload referral failed: %v", err)
	}
	return referral
}

// assertLedgerConsistent 汇总字段必须等于推广订单的实时聚合
func (f *engineFixture) assertLedgerConsistent(t *testing.T, affiliateID uint) {
	t.Helper()
	affiliate := f.reloadAffiliate(t, affiliateID)
	aggregate, err := f.referralRepo.SumLedger(affiliateID)
	if err != nil {
		t.Fatalf("sum ledger failed: %v", err)
	}
	if !affiliate.TotalEarnings.Decimal.Equal(aggregate.TotalEarnings) ||
		!affiliate.UnpaidEarnings.Decimal.Equal(aggregate.UnpaidEarnings) ||
		affiliate.Referrals != aggregate.Referrals ||
		affiliate.Visits != aggregate.Visits {
		t.Fatalf("ledger drift: stored=%s/%s/%d/%d aggregate=%s/%s/%d/%d",
			affiliate.TotalEarnings, affiliate.UnpaidEarnings, affiliate.Referrals, affiliate.Visits,
			aggregate.TotalEarnings, aggregate.UnpaidEarnings, aggregate.Referrals, aggregate.Visits)
	}
}

func paidOrder(providerID string, subtotalCents int64, cookie string) RawOrder {
	return RawOrder{
		Provider:          constants.ConnectorProviderGeneric,
		ProviderID:        providerID,
		Currency:          "USD",
		Status:            constants.PlatformOrderStatusPaid,
		Subtotal:          subtotalCents,
		Customer:          RawCustomer{Email: "buyer@example.com", FirstName: "Ann"},
		AttributionCookie: cookie,
	}
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal failed: %v", err)
	}
	return parsed
}
