package queue

import (
	"encoding/json"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskReferralEvent 推广订单事件投递任务
	TaskReferralEvent = constants.TaskReferralEvent
	// TaskAffiliateRecount 单个推广员账本重算任务
	TaskAffiliateRecount = constants.TaskAffiliateRecount
	// TaskLedgerReconcile 全量账本校准任务
	TaskLedgerReconcile = constants.TaskLedgerReconcile
)

// ReferralEventPayload 推广订单事件任务载荷
type ReferralEventPayload struct {
	EventID        string    `json:"event_id"`
	Event          string    `json:"event"`
	ReferralID     uint      `json:"referral_id"`
	AffiliateID    uint      `json:"affiliate_id"`
	PreviousStatus string    `json:"previous_status"`
	Status         string    `json:"status"`
	Amount         string    `json:"amount"`
	Currency       string    `json:"currency"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// AffiliateRecountPayload 账本重算任务载荷
type AffiliateRecountPayload struct {
	AffiliateID uint `json:"affiliate_id"`
}

// NewReferralEventTask 创建推广订单事件任务
func NewReferralEventTask(payload ReferralEventPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReferralEvent, body), nil
}

// NewAffiliateRecountTask 创建账本重算任务
func NewAffiliateRecountTask(payload AffiliateRecountPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliateRecount, body), nil
}

// NewLedgerReconcileTask 创建全量账本校准任务
func NewLedgerReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerReconcile, nil)
}
