package admin

import "github.com/dujiao-next/affiliate-engine/internal/provider"

// Handler 管理端接口：推广员、推广订单、结算与运行时配置，路由层已校验管理令牌
type Handler struct {
	*provider.Container
}

// New 创建管理端处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
