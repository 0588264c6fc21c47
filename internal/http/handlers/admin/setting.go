package admin

import (
	"github.com/dujiao-next/affiliate-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetReferralSettings 获取全局推广配置
func (h *Handler) GetReferralSettings(c *gin.Context) {
	setting, err := h.SettingService.GetReferralSetting()
	if err != nil {
		respondError(c, response.CodeInternal, "获取推广配置失败", err)
		return
	}
	response.Success(c, setting)
}

// UpdateReferralSettings 更新全局推广配置，未提交的字段保持原值
func (h *Handler) UpdateReferralSettings(c *gin.Context) {
	current, err := h.SettingService.GetReferralSetting()
	if err != nil {
		respondError(c, response.CodeInternal, "获取推广配置失败", err)
		return
	}
	if err := c.ShouldBindJSON(&current); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	setting, err := h.SettingService.UpdateReferralSetting(current)
	if err != nil {
		respondServiceError(c, err, "保存推广配置失败")
		return
	}
	requestLog(c).Infow("admin_referral_setting_updated", "operator", adminSubject(c))
	response.Success(c, setting)
}

// GetConnectorSettings 获取连接器配置
func (h *Handler) GetConnectorSettings(c *gin.Context) {
	connector, err := h.Connectors.Get(c.Param("provider"))
	if err != nil {
		respondServiceError(c, err, "获取连接器配置失败")
		return
	}
	setting, err := h.SettingService.GetConnectorSetting(connector.Provider())
	if err != nil {
		respondError(c, response.CodeInternal, "获取连接器配置失败", err)
		return
	}
	response.Success(c, setting)
}

// UpdateConnectorSettings 更新连接器配置，未提交的字段保持原值
func (h *Handler) UpdateConnectorSettings(c *gin.Context) {
	connector, err := h.Connectors.Get(c.Param("provider"))
	if err != nil {
		respondServiceError(c, err, "保存连接器配置失败")
		return
	}
	current, err := h.SettingService.GetConnectorSetting(connector.Provider())
	if err != nil {
		respondError(c, response.CodeInternal, "获取连接器配置失败", err)
		return
	}
	if err := c.ShouldBindJSON(&current); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	setting, err := h.SettingService.UpdateConnectorSetting(connector.Provider(), current)
	if err != nil {
		respondServiceError(c, err, "保存连接器配置失败")
		return
	}
	requestLog(c).Infow("admin_connector_setting_updated", "provider", connector.Provider(), "operator", adminSubject(c))
	response.Success(c, setting)
}

// ListConnectors 已注册的平台连接器
func (h *Handler) ListConnectors(c *gin.Context) {
	response.Success(c, gin.H{"providers": h.Connectors.Providers()})
}
