package admin

import (
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// IssueConnectorTokenRequest 签发连接器回调令牌请求
type IssueConnectorTokenRequest struct {
	Provider string `json:"provider" binding:"required"`
	TTLHours int    `json:"ttl_hours"`
}

// IssueConnectorToken 为已注册的平台签发回调令牌，ttl_hours 为 0 表示不过期
func (h *Handler) IssueConnectorToken(c *gin.Context) {
	var req IssueConnectorTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	if req.TTLHours < 0 {
		respondError(c, response.CodeBadRequest, "ttl_hours 不能为负数", nil)
		return
	}
	connector, err := h.Connectors.Get(req.Provider)
	if err != nil {
		respondServiceError(c, err, "签发连接器令牌失败")
		return
	}

	token, expiresAt, err := service.IssueAccessToken(h.Config.Connectors.TokenSecret, service.AccessTokenClaims{
		Scope:    service.TokenScopeConnector,
		Provider: connector.Provider(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strings.TrimSpace(adminSubject(c)),
		},
	}, time.Duration(req.TTLHours)*time.Hour)
	if err != nil {
		respondServiceError(c, err, "签发连接器令牌失败")
		return
	}
	requestLog(c).Infow("admin_connector_token_issued", "provider", connector.Provider(), "operator", adminSubject(c))

	data := gin.H{"provider": connector.Provider(), "token": token}
	if !expiresAt.IsZero() {
		data["expires_at"] = expiresAt
	}
	response.Success(c, data)
}
