package app

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPService gin 引擎的生命周期封装
type HTTPService struct {
	server *http.Server
}

// NewHTTPService 创建 HTTP 服务
func NewHTTPService(addr string, handler http.Handler, readHeaderTimeout time.Duration) *HTTPService {
	return &HTTPService{server: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}}
}

func (s *HTTPService) Name() string { return "http" }

// Start 监听直到 Stop 被调用；ctx 取消由 Runner 统一转为 Stop
func (s *HTTPService) Start(_ context.Context) error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
