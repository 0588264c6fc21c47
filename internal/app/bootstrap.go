package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/provider"
	"github.com/dujiao-next/affiliate-engine/internal/router"
	"github.com/dujiao-next/affiliate-engine/internal/worker"

	"go.uber.org/zap"
)

// 启动模式
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

// Options 应用启动选项
type Options struct {
	Config  *config.Config
	Logger  *zap.SugaredLogger
	Signals []os.Signal
	Mode    string
}

// BuildServices 按启动模式组装服务
func BuildServices(cfg *config.Config, mode string, container *provider.Container) ([]Service, error) {
	if cfg == nil || container == nil {
		return nil, errors.New("config or container is nil")
	}
	switch mode {
	case ModeAll, ModeAPI, ModeWorker:
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	var services []Service
	if mode != ModeWorker {
		readHeaderTimeout := time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second
		services = append(services, NewHTTPService(cfg.Server.Addr(), router.SetupRouter(cfg, container), readHeaderTimeout))
	}

	if mode != ModeAPI {
		// all 模式下队列关闭时只跑 HTTP，事件在进程内同步落库
		if !cfg.Queue.Enabled && mode == ModeAll {
			logger.Warnw("app_worker_skipped_queue_disabled", "mode", mode)
			return services, nil
		}
		workerService, err := worker.NewService(&cfg.Queue, cfg.Worker, worker.NewConsumer(container))
		if err != nil {
			return nil, err
		}
		services = append(services, workerService)
	}
	return services, nil
}

// Run 应用启动入口，阻塞直到收到退出信号或某个服务失败
func Run(opts Options) error {
	if opts.Config == nil {
		return errors.New("config is nil")
	}
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}

	container := provider.NewContainer(opts.Config)
	defer container.Close()

	services, err := BuildServices(opts.Config, opts.Mode, container)
	if err != nil {
		return err
	}
	runner, err := NewRunner(opts.Logger, services...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if len(opts.Signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, opts.Signals...)
		defer stop()
	}

	opts.Logger.Infow("app_start", "addr", opts.Config.Server.Addr(), "mode", opts.Mode)
	return runner.Run(ctx, time.Duration(opts.Config.Server.ShutdownTimeoutSeconds)*time.Second)
}
