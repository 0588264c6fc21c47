package provider

import (
	"github.com/dujiao-next/affiliate-engine/internal/cache"
	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/queue"
	"github.com/dujiao-next/affiliate-engine/internal/repository"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	Cache       *cache.Store
	QueueClient *queue.Client

	// Repositories
	UserRepo      repository.UserRepository
	AffiliateRepo repository.AffiliateRepository
	ReferralRepo  repository.ReferralRepository
	VisitRepo     repository.VisitRepository
	CustomerRepo  repository.CustomerRepository
	PayoutRepo    repository.PayoutRepository
	SettingRepo   repository.SettingRepository
	ActivityRepo  repository.ReferralActivityRepository

	// Services
	SettingService      *service.SettingService
	AffiliateLedger     *service.AffiliateLedger
	EventBus            *service.ReferralEventBus
	AttributionResolver *service.AttributionResolver
	ReferralService     *service.ReferralService
	PayoutService       *service.PayoutService
	AffiliateService    *service.AffiliateService
	Connectors          *service.ConnectorRegistry
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	return NewContainerWithDB(cfg, models.DB)
}

// NewContainerWithDB 使用指定数据库初始化容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB) *Container {
	// 初始化缓存
	store, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		Cache:       store,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	c.initServices()

	return c
}

// Close 释放缓存与队列连接
func (c *Container) Close() {
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := c.Cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.UserRepo = repository.NewUserRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.ReferralRepo = repository.NewReferralRepository(db)
	c.VisitRepo = repository.NewVisitRepository(db)
	c.CustomerRepo = repository.NewCustomerRepository(db)
	c.PayoutRepo = repository.NewPayoutRepository(db)
	c.SettingRepo = repository.NewSettingRepository(db)
	c.ActivityRepo = repository.NewReferralActivityRepository(db)
}

func (c *Container) initServices() {
	c.SettingService = service.NewSettingService(c.SettingRepo)
	if c.Cache.Enabled() {
		c.SettingService.WithCache(c.Cache, c.Config.Redis.SettingTTL())
	}

	c.EventBus = service.NewReferralEventBus(service.LogReferralEventListener{})
	if c.QueueClient.Enabled() {
		c.EventBus.Subscribe(service.NewQueueReferralEventListener(c.QueueClient))
	}

	c.AffiliateLedger = service.NewAffiliateLedger(c.AffiliateRepo, c.ReferralRepo)
	c.AttributionResolver = service.NewAttributionResolver(c.AffiliateRepo, c.VisitRepo, c.CustomerRepo, c.AffiliateLedger, c.SettingService)
	c.ReferralService = service.NewReferralService(
		c.AffiliateRepo,
		c.ReferralRepo,
		c.VisitRepo,
		c.CustomerRepo,
		c.AttributionResolver,
		c.AffiliateLedger,
		c.SettingService,
		c.EventBus,
	)
	c.PayoutService = service.NewPayoutService(c.AffiliateRepo, c.ReferralRepo, c.PayoutRepo, c.AffiliateLedger, c.EventBus)
	c.AffiliateService = service.NewAffiliateService(c.AffiliateRepo, c.UserRepo, c.VisitRepo, c.AffiliateLedger)
	c.Connectors = service.NewConnectorRegistryFromProviders(c.Config.Connectors.Providers, c.ReferralService)
}
