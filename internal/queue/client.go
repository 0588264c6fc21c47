package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/constants"

	"github.com/hibiken/asynq"
)

// DefaultQueue 默认队列名称
const DefaultQueue = constants.QueueDefault

const referralEventMaxRetry = 5

// Client 队列客户端封装，未启用时所有投递都是空操作
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// EnqueueReferralEvent 推送推广订单事件，EventID 作为任务ID去重
func (c *Client) EnqueueReferralEvent(payload ReferralEventPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewReferralEventTask(payload)
	if err != nil {
		return err
	}
	base := []asynq.Option{asynq.MaxRetry(referralEventMaxRetry)}
	if eventID := strings.TrimSpace(payload.EventID); eventID != "" {
		base = append(base, asynq.TaskID("referral-event:"+eventID))
	}
	return c.enqueue(task, append(base, opts...)...)
}

// EnqueueAffiliateRecount 推送账本重算任务
func (c *Client) EnqueueAffiliateRecount(payload AffiliateRecountPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewAffiliateRecountTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task, opts...)
}

// EnqueueLedgerReconcile 推送全量账本校准任务，同一时间只保留一个
func (c *Client) EnqueueLedgerReconcile(opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	return c.enqueue(NewLedgerReconcileTask(), append([]asynq.Option{asynq.TaskID(TaskLedgerReconcile)}, opts...)...)
}

// enqueue 投递到默认队列；TaskID 冲突说明同一任务已在队列中，视为成功
func (c *Client) enqueue(task *asynq.Task, opts ...asynq.Option) error {
	_, err := c.client.Enqueue(task, append([]asynq.Option{asynq.Queue(DefaultQueue)}, opts...)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// ServerConfig 生成 worker 端配置
func ServerConfig(cfg *config.QueueConfig) asynq.Config {
	serverCfg := asynq.Config{Concurrency: 10, Queues: map[string]int{DefaultQueue: 1}}
	if cfg == nil {
		return serverCfg
	}
	if cfg.Concurrency > 0 {
		serverCfg.Concurrency = cfg.Concurrency
	}
	if len(cfg.Queues) > 0 {
		serverCfg.Queues = cfg.Queues
	}
	return serverCfg
}

// RedisOpt 队列使用的 Redis 连接参数
func RedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = fmt.Sprintf("%s:%d", host, port)
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}
