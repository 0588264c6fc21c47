package worker

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务
type Service struct {
	name              string
	server            *asynq.Server
	mux               *asynq.ServeMux
	consumer          *Consumer
	reconcileInterval time.Duration
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, workerCfg config.WorkerConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	server := asynq.NewServer(queue.RedisOpt(cfg), queue.ServerConfig(cfg))
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:              "worker",
		server:            server,
		mux:               mux,
		consumer:          consumer,
		reconcileInterval: reconcileInterval(workerCfg),
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动消费并阻塞到 ctx 取消；信号由 app.Runner 统一处理，不使用 asynq 自带的 Run
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	if s.reconcileInterval > 0 && s.consumer != nil {
		go s.runLedgerReconcileLoop(ctx)
	}
	<-ctx.Done()
	return nil
}

// Stop 等待处理中的任务结束后停止
func (s *Service) Stop(_ context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.server.Shutdown()
	return nil
}

// runLedgerReconcileLoop 定时投递全量账本校准任务，多实例下按任务ID去重
func (s *Service) runLedgerReconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scheduleLedgerReconcile(ctx)
		}
	}
}

func (s *Service) scheduleLedgerReconcile(ctx context.Context) {
	client := s.consumer.QueueClient
	if client.Enabled() {
		if err := client.EnqueueLedgerReconcile(asynq.Retention(s.reconcileInterval / 2)); err != nil {
			logger.Warnw("worker_ledger_reconcile_enqueue_failed", "error", err)
		}
		return
	}
	if s.consumer.AffiliateLedger == nil {
		return
	}
	if _, err := s.consumer.AffiliateLedger.RecountAll(ctx); err != nil {
		logger.Warnw("worker_ledger_reconcile_failed", "error", err)
	}
}

func reconcileInterval(cfg config.WorkerConfig) time.Duration {
	if cfg.LedgerReconcileIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(cfg.LedgerReconcileIntervalSeconds) * time.Second
}
