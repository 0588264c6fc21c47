package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/app"
	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

const (
	ansiReset     = "\033[0m"
	ansiBold      = "\033[1m"
	ansiDim       = "\033[2m"
	ansiCyan      = "\033[36m"
	ansiBrightMag = "\033[95m"
)

func main() {
	// 解析命令行参数
	var (
		mode        string
		envFile     string
		adminSubject string
		adminTTLHrs int
	)
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.StringVar(&envFile, "env", ".env", "环境变量文件，不存在时忽略")
	flag.StringVar(&adminSubject, "issue-admin-token", "", "为指定操作人签发管理端令牌后退出")
	flag.IntVar(&adminTTLHrs, "admin-token-ttl", 0, "管理端令牌有效小时数，0 使用 jwt.expire_hours")
	flag.Parse()

	// .env 先于 viper 加载，环境变量覆盖配置文件
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "加载 %s 失败: %v\n", envFile, err)
	}

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if subject := strings.TrimSpace(adminSubject); subject != "" {
		ttl := adminTTLHrs
		if ttl <= 0 {
			ttl = cfg.JWT.ExpireHours
		}
		token, expiresAt, err := service.IssueAccessToken(cfg.JWT.SecretKey, service.AccessTokenClaims{
			Scope:            service.TokenScopeAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		}, time.Duration(ttl)*time.Hour)
		if err != nil {
			stdLog.Fatalf("签发管理端令牌失败: %v", err)
		}
		fmt.Println(token)
		if !expiresAt.IsZero() {
			fmt.Fprintf(os.Stderr, "expires_at: %s\n", expiresAt.Format(time.RFC3339))
		}
		return
	}

	printStartupBanner()

	if cfg.Server.Mode == "release" {
		if isWeakSecret(cfg.JWT.SecretKey) || isWeakSecret(cfg.Connectors.TokenSecret) {
			stdLog.Fatalf("JWT / 连接器密钥过弱或仍为默认值，请在生产环境中配置强随机密钥")
		}
	} else if isWeakSecret(cfg.JWT.SecretKey) || isWeakSecret(cfg.Connectors.TokenSecret) {
		stdLog.Printf("警告: JWT / 连接器密钥过弱或仍为默认值，建议在生产环境中更换")
	}

	// 初始化数据库
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, cfg.Server.Mode == "debug"); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}

	// 自动迁移数据库表
	if err := models.AutoMigrate(models.DB); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

func printStartupBanner() {
	fmt.Println(ansiBrightMag + "╔══════════════════════════════════════════════════════╗" + ansiReset)
	fmt.Println(ansiBrightMag + "║          Affiliate Engine API 启动中                 ║" + ansiReset)
	fmt.Println(ansiBrightMag + "╚══════════════════════════════════════════════════════╝" + ansiReset)
	fmt.Println(ansiCyan + ansiBold + "visits -> referrals -> ledger -> payouts" + ansiReset)
	fmt.Println(ansiDim + "--------------------------------------------------------------" + ansiReset)
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	if strings.Contains(normalized, "change-me") ||
		strings.Contains(normalized, "change-in-production") ||
		strings.Contains(normalized, "your-secret-key") {
		return true
	}
	return false
}
