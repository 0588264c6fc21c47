package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Service 可独立启停的后台服务
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner 并发启动多个服务，任一退出即整体停止
type Runner struct {
	services []Service
	log      *zap.SugaredLogger
}

// NewRunner 创建服务运行器
func NewRunner(log *zap.SugaredLogger, services ...Service) (*Runner, error) {
	if len(services) == 0 {
		return nil, errors.New("no services to run")
	}
	for i, svc := range services {
		if svc == nil {
			return nil, fmt.Errorf("service #%d is nil", i)
		}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{services: services, log: log}, nil
}

type exitResult struct {
	name string
	err  error
}

// Run 阻塞直到 ctx 取消或某个服务退出，随后在 stopTimeout 内依次停止全部服务
func (r *Runner) Run(ctx context.Context, stopTimeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan exitResult, len(r.services))
	for _, svc := range r.services {
		go func(svc Service) {
			r.log.Infow("service_start", "service", svc.Name())
			exits <- exitResult{name: svc.Name(), err: svc.Start(ctx)}
		}(svc)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case exit := <-exits:
		r.log.Infow("service_exit", "service", exit.name, "error", exit.err)
		if exit.err != nil {
			runErr = fmt.Errorf("%s: %w", exit.name, exit.err)
		}
	}
	cancel()

	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	for _, svc := range r.services {
		if err := svc.Stop(stopCtx); err != nil {
			r.log.Errorw("service_stop_failed", "service", svc.Name(), "error", err)
		}
	}
	return runErr
}
