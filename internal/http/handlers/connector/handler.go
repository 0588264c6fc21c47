package connector

import (
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/provider"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler 电商平台连接器回调处理器
type Handler struct {
	*provider.Container
}

// New 创建连接器处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// resolveConnector 按路径中的 provider 取连接器，未注册时直接写入响应
func (h *Handler) resolveConnector(c *gin.Context) (service.Connector, bool) {
	connector, err := h.Connectors.Get(c.Param("provider"))
	if err != nil {
		respondError(c, response.CodeNotFound, err.Error(), nil)
		return nil, false
	}
	return connector, true
}
