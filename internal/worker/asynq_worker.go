package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/provider"
	"github.com/dujiao-next/affiliate-engine/internal/queue"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskReferralEvent, c.handleReferralEvent)
	mux.HandleFunc(queue.TaskAffiliateRecount, c.handleAffiliateRecount)
	mux.HandleFunc(queue.TaskLedgerReconcile, c.handleLedgerReconcile)
}

// handleReferralEvent 落库推广订单事件流水，重复投递按 event_id 去重
func (c *Consumer) handleReferralEvent(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_referral_event_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReferralEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_referral_event_unmarshal_failed", "error", err)
		return err
	}
	eventID := strings.TrimSpace(payload.EventID)
	if eventID == "" || payload.ReferralID == 0 {
		logger.Debugw("worker_referral_event_skip_invalid_payload", "event_id", eventID, "referral_id", payload.ReferralID)
		return nil
	}
	if c.ActivityRepo == nil {
		logger.Warnw("worker_referral_event_skip_repo_nil", "event_id", eventID)
		return nil
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(payload.Amount); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			logger.Warnw("worker_referral_event_amount_invalid", "event_id", eventID, "amount", raw, "error", err)
		} else {
			amount = parsed
		}
	}
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	activity := &models.ReferralActivity{
		EventID:        eventID,
		Event:          strings.TrimSpace(payload.Event),
		ReferralID:     payload.ReferralID,
		AffiliateID:    payload.AffiliateID,
		PreviousStatus: strings.TrimSpace(payload.PreviousStatus),
		Status:         strings.TrimSpace(payload.Status),
		Amount:         models.NewMoneyFromDecimal(amount),
		OccurredAt:     occurredAt,
	}
	inserted, err := c.ActivityRepo.Create(activity)
	if err != nil {
		logger.Warnw("worker_referral_event_save_failed", "event_id", eventID, "referral_id", payload.ReferralID, "error", err)
		return err
	}
	if !inserted {
		logger.Debugw("worker_referral_event_skip_duplicate", "event_id", eventID)
	}
	return nil
}

func (c *Consumer) handleAffiliateRecount(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_affiliate_recount_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.AffiliateRecountPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_affiliate_recount_unmarshal_failed", "error", err)
		return err
	}
	if payload.AffiliateID == 0 {
		logger.Debugw("worker_affiliate_recount_skip_invalid_payload", "affiliate_id", payload.AffiliateID)
		return nil
	}
	if c.AffiliateLedger == nil {
		logger.Warnw("worker_affiliate_recount_skip_ledger_nil", "affiliate_id", payload.AffiliateID)
		return nil
	}
	if _, err := c.AffiliateLedger.RecountEarnings(payload.AffiliateID); err != nil {
		if errors.Is(err, service.ErrAffiliateNotFound) {
			logger.Debugw("worker_affiliate_recount_skip_not_found", "affiliate_id", payload.AffiliateID)
			return nil
		}
		logger.Warnw("worker_affiliate_recount_failed", "affiliate_id", payload.AffiliateID, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleLedgerReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.AffiliateLedger == nil {
		logger.Debugw("worker_ledger_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	started := time.Now()
	count, err := c.AffiliateLedger.RecountAll(ctx)
	if err != nil {
		logger.Warnw("worker_ledger_reconcile_failed", "recounted", count, "error", err)
		return err
	}
	logger.Infow("worker_ledger_reconcile_done", "recounted", count, "elapsed_ms", time.Since(started).Milliseconds())
	return nil
}
