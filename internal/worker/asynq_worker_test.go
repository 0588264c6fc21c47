package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/provider"
	"github.com/dujiao-next/affiliate-engine/internal/queue"
	"github.com/dujiao-next/affiliate-engine/internal/repository"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func setupConsumerTest(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_consumer_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	affiliateRepo := repository.NewAffiliateRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	container := &provider.Container{
		AffiliateRepo:   affiliateRepo,
		ReferralRepo:    referralRepo,
		ActivityRepo:    repository.NewReferralActivityRepository(db),
		AffiliateLedger: service.NewAffiliateLedger(affiliateRepo, referralRepo),
	}
	return NewConsumer(container), db
}

func TestHandleReferralEventDeduplicates(t *testing.T) {
	consumer, db := setupConsumerTest(t)
	task, err := queue.NewReferralEventTask(queue.ReferralEventPayload{
		EventID:        "evt-1",
		Event:          constants.ReferralEventMarkedUnpaid,
		ReferralID:     7,
		AffiliateID:    3,
		PreviousStatus: constants.ReferralStatusPending,
		Status:         constants.ReferralStatusUnpaid,
		Amount:         "12.30",
		OccurredAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := consumer.handleReferralEvent(context.Background(), task); err != nil {
			t.Fatalf("handle referral event failed: %v", err)
		}
	}

	var rows []models.ReferralActivity
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("load activities failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected single activity row, got %d", len(rows))
	}
	if rows[0].ReferralID != 7 || rows[0].Status != constants.ReferralStatusUnpaid || rows[0].Amount.String() != "12.30" {
		t.Fatalf("unexpected activity: %+v", rows[0])
	}
}

func TestHandleReferralEventSkipsInvalidPayload(t *testing.T) {
	consumer, db := setupConsumerTest(t)
	task, err := queue.NewReferralEventTask(queue.ReferralEventPayload{Event: constants.ReferralEventCreated})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleReferralEvent(context.Background(), task); err != nil {
		t.Fatalf("expected invalid payload skipped, got %v", err)
	}
	if err := consumer.handleReferralEvent(context.Background(), asynq.NewTask(queue.TaskReferralEvent, []byte("{"))); err == nil {
		t.Fatalf("expected malformed payload error")
	}
	var count int64
	db.Model(&models.ReferralActivity{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no activity rows, got %d", count)
	}
}

func TestHandleAffiliateRecount(t *testing.T) {
	consumer, db := setupConsumerTest(t)
	user := models.User{Username: "worker_user", Email: "worker@example.com", Status: constants.UserStatusActive}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	affiliate := models.Affiliate{UserID: user.ID, RateType: constants.RateTypeDefault, Status: constants.AffiliateStatusActive, Referrals: 9}
	if err := db.Create(&affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}

	task, err := queue.NewAffiliateRecountTask(queue.AffiliateRecountPayload{AffiliateID: affiliate.ID})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleAffiliateRecount(context.Background(), task); err != nil {
		t.Fatalf("handle recount failed: %v", err)
	}
	var reloaded models.Affiliate
	if err := db.First(&reloaded, affiliate.ID).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if reloaded.Referrals != 0 {
		t.Fatalf("expected referrals recounted to 0, got %d", reloaded.Referrals)
	}

	missing, _ := queue.NewAffiliateRecountTask(queue.AffiliateRecountPayload{AffiliateID: 999})
	if err := consumer.handleAffiliateRecount(context.Background(), missing); err != nil {
		t.Fatalf("expected missing affiliate skipped, got %v", err)
	}
	if err := consumer.handleLedgerReconcile(context.Background(), queue.NewLedgerReconcileTask()); err != nil {
		t.Fatalf("handle reconcile failed: %v", err)
	}
}

func TestReconcileInterval(t *testing.T) {
	if got := reconcileInterval(config.WorkerConfig{}); got != 0 {
		t.Fatalf("expected disabled interval, got %s", got)
	}
	if got := reconcileInterval(config.WorkerConfig{LedgerReconcileIntervalSeconds: 90}); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	if _, err := NewService(&config.QueueConfig{Enabled: false}, config.WorkerConfig{}, &Consumer{}); err == nil {
		t.Fatalf("expected disabled queue error")
	}
}
