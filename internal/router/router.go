package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/constants"
	adminhandlers "github.com/dujiao-next/affiliate-engine/internal/http/handlers/admin"
	connectorhandlers "github.com/dujiao-next/affiliate-engine/internal/http/handlers/connector"
	publichandlers "github.com/dujiao-next/affiliate-engine/internal/http/handlers/public"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（前台 / 连接器 / 后台）
	publicHandler := publichandlers.New(c)
	connectorHandler := connectorhandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = constants.RedisPrefixDefault
	}
	visitRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:visit", redisPrefix),
		WindowSeconds: cfg.Referral.VisitRateLimit.WindowSeconds,
		MaxRequests:   cfg.Referral.VisitRateLimit.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 店铺前端
		public := apiV1.Group("/public")
		{
			public.POST("/visits", RateLimitMiddleware(c.Cache.Client(), visitRule, KeyByIPAndJSONField("ref")), publicHandler.TrackVisit)
		}

		// 平台连接器回调
		connectors := apiV1.Group("/connectors/:provider")
		connectors.Use(ConnectorAuthMiddleware(cfg.Connectors.TokenSecret))
		{
			connectors.POST("/orders", connectorHandler.CreateOrder)
			connectors.GET("/orders/:provider_id/referral", connectorHandler.GetOrderReferral)
			connectors.POST("/orders/:provider_id/status", connectorHandler.ChangePaymentStatus)
			connectors.POST("/orders/:provider_id/paid", connectorHandler.MarkPaid)
			connectors.POST("/orders/:provider_id/reject", connectorHandler.RejectOrder)
			connectors.POST("/orders/:provider_id/refunds", connectorHandler.RefundOrder)
			connectors.POST("/renewals", connectorHandler.CreateRenewal)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		admin.Use(AdminAuthMiddleware(cfg.JWT.SecretKey))
		{
			// 推广员
			admin.POST("/users", adminHandler.CreateUser)
			admin.POST("/affiliates", adminHandler.RegisterAffiliate)
			admin.GET("/affiliates", adminHandler.ListAffiliates)
			admin.GET("/affiliates/:id", adminHandler.GetAffiliate)
			admin.PUT("/affiliates/:id/status", adminHandler.UpdateAffiliateStatus)
			admin.PUT("/affiliates/:id/rate", adminHandler.UpdateAffiliateRate)
			admin.POST("/affiliates/:id/recount", adminHandler.RecountAffiliate)
			admin.POST("/affiliate-groups", adminHandler.CreateAffiliateGroup)
			admin.GET("/visits", adminHandler.ListVisits)

			// 推广订单
			admin.GET("/referrals", adminHandler.ListReferrals)
			admin.GET("/referrals/:id", adminHandler.GetReferral)
			admin.POST("/referrals/:id/reject", adminHandler.RejectReferral)

			// 结算
			admin.POST("/payouts", adminHandler.CreatePayout)
			admin.GET("/payouts", adminHandler.ListPayouts)
			admin.GET("/payouts/:id", adminHandler.GetPayout)

			// 账本
			admin.POST("/ledger/reconcile", adminHandler.ReconcileLedger)

			// 设置
			admin.GET("/settings/referral", adminHandler.GetReferralSettings)
			admin.PUT("/settings/referral", adminHandler.UpdateReferralSettings)
			admin.GET("/connectors", adminHandler.ListConnectors)
			admin.GET("/settings/connectors/:provider", adminHandler.GetConnectorSettings)
			admin.PUT("/settings/connectors/:provider", adminHandler.UpdateConnectorSettings)
			admin.POST("/connector-tokens", adminHandler.IssueConnectorToken)
		}
	}

	// 健康检查
	r.GET("/health", func(ctx *gin.Context) {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := c.Cache.Ping(pingCtx); err != nil {
			ctx.JSON(503, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
