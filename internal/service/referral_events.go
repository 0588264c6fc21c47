package service

import (
	"context"
	"sync"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/queue"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ReferralEvent 推广订单领域事件，携带变更后的完整快照
type ReferralEvent struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Referral       models.Referral `json:"referral"`
	PreviousStatus string          `json:"previous_status"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// ReferralEventListener 推广订单事件订阅者
type ReferralEventListener interface {
	OnReferralEvent(ctx context.Context, event ReferralEvent)
}

// ReferralEventListenerFunc 函数形式的订阅者
type ReferralEventListenerFunc func(ctx context.Context, event ReferralEvent)

// OnReferralEvent 实现 ReferralEventListener
func (f ReferralEventListenerFunc) OnReferralEvent(ctx context.Context, event ReferralEvent) {
	f(ctx, event)
}

// ReferralEventBus 事件分发，订阅者异常不影响推广订单状态流转
type ReferralEventBus struct {
	mu        sync.RWMutex
	listeners []ReferralEventListener
}

// NewReferralEventBus 创建事件总线
func NewReferralEventBus(listeners ...ReferralEventListener) *ReferralEventBus {
	bus := &ReferralEventBus{}
	for _, listener := range listeners {
		bus.Subscribe(listener)
	}
	return bus
}

// Subscribe 注册订阅者
func (b *ReferralEventBus) Subscribe(listener ReferralEventListener) {
	if b == nil || listener == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, listener)
}

// Publish 依次通知订阅者
func (b *ReferralEventBus) Publish(ctx context.Context, event ReferralEvent) {
	if b == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.RLock()
	listeners := append([]ReferralEventListener(nil), b.listeners...)
	b.mu.RUnlock()

	for _, listener := range listeners {
		b.dispatch(ctx, listener, event)
	}
}

func (b *ReferralEventBus) dispatch(ctx context.Context, listener ReferralEventListener, event ReferralEvent) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Errorw("referral_event_listener_panic",
				"event", event.Name,
				"event_id", event.ID,
				"referral_id", event.Referral.ID,
				"panic", recovered,
			)
		}
	}()
	listener.OnReferralEvent(ctx, event)
}

func newReferralEvent(name string, referral *models.Referral, previousStatus string) ReferralEvent {
	snapshot := models.Referral{}
	if referral != nil {
		snapshot = *referral
		snapshot.Affiliate = nil
		snapshot.Customer = nil
	}
	return ReferralEvent{
		ID:             uuid.NewString(),
		Name:           name,
		Referral:       snapshot,
		PreviousStatus: previousStatus,
		OccurredAt:     time.Now(),
	}
}

// LogReferralEventListener 结构化日志订阅者
type LogReferralEventListener struct{}

// OnReferralEvent 记录事件日志
func (LogReferralEventListener) OnReferralEvent(ctx context.Context, event ReferralEvent) {
	logger.FromContext(ctx).Infow("referral_event",
		"event", event.Name,
		"event_id", event.ID,
		"referral_id", event.Referral.ID,
		"affiliate_id", event.Referral.AffiliateID,
		"previous_status", event.PreviousStatus,
		"status", event.Referral.Status,
		"amount", event.Referral.Amount.String(),
		"currency", event.Referral.Currency,
	)
}

// ReferralEventEnqueuer 事件入队接口
type ReferralEventEnqueuer interface {
	EnqueueReferralEvent(payload queue.ReferralEventPayload, opts ...asynq.Option) error
}

// QueueReferralEventListener 将事件投递到异步队列，由 worker 写入推广订单动态
type QueueReferralEventListener struct {
	client ReferralEventEnqueuer
}

// NewQueueReferralEventListener 创建队列订阅者
func NewQueueReferralEventListener(client ReferralEventEnqueuer) *QueueReferralEventListener {
	return &QueueReferralEventListener{client: client}
}

// OnReferralEvent 入队，失败只记录日志
func (l *QueueReferralEventListener) OnReferralEvent(ctx context.Context, event ReferralEvent) {
	if l == nil || l.client == nil {
		return
	}
	payload := queue.ReferralEventPayload{
		EventID:        event.ID,
		Event:          event.Name,
		ReferralID:     event.Referral.ID,
		AffiliateID:    event.Referral.AffiliateID,
		PreviousStatus: event.PreviousStatus,
		Status:         event.Referral.Status,
		Amount:         event.Referral.Amount.String(),
		Currency:       event.Referral.Currency,
		OccurredAt:     event.OccurredAt,
	}
	if err := l.client.EnqueueReferralEvent(payload); err != nil {
		logger.FromContext(ctx).Warnw("referral_event_enqueue_failed",
			"event", event.Name,
			"event_id", event.ID,
			"referral_id", event.Referral.ID,
			"error", err,
		)
	}
}
