package public

import "github.com/dujiao-next/affiliate-engine/internal/provider"

// Handler 店铺前端直接调用的匿名接口，目前只有访问追踪
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
