package connector

import (
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// PaymentStatusRequest 支付状态变更请求
type PaymentStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// RejectRequest 取消订单请求
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RefundRequest 退款请求，refunded_total 为累计退款（最小货币单位）
type RefundRequest struct {
	RefundedTotal int64             `json:"refunded_total"`
	FullRefund    bool              `json:"full_refund"`
	Order         *service.RawOrder `json:"order"`
}

// referralView 回调响应，referral 为空表示该订单没有推广记录
type referralView struct {
	Referral *models.Referral `json:"referral"`
}

// CreateOrder 平台新订单
func (h *Handler) CreateOrder(c *gin.Context) {
	connector, ok := h.resolveConnector(c)
	if !ok {
		return
	}
	var req service.RawOrder
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "订单数据格式错误", err)
		return
	}
	outcome, err := connector.RecordReferral(c.Request.Context(), req)
	if err != nil {
		respondReferralError(c, err)
		return
	}
	response.Success(c, outcome)
}

// CreateRenewal 订阅续费
func (h *Handler) CreateRenewal(c *gin.Context) {
	connector, ok := h.resolveConnector(c)
	if !ok {
		return
	}
	var req service.RawOrder
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "订单数据格式错误", err)
		return
	}
	outcome, err := connector.RecordRenewal(c.Request.Context(), req)
	if err != nil {
		respondReferralError(c, err)
		return
	}
	response.Success(c, outcome)
}

// GetOrderReferral 查询平台订单对应的推广订单
func (h *Handler) GetOrderReferral(c *gin.Context) {
	connector, ok := h.resolveConnector(c)
	if !ok {
		return
	}
	referral, err := connector.GetExistingReferral(c.Param("provider_id"))
	if err != nil {
		respondReferralError(c, err)
		return
	}
	if referral == nil {
		response.NotFound(c, service.ErrReferralNotFound.Error())
		return
	}
	response.Success(c, referral)
}

// ChangePaymentStatus 平台订单支付状态变更
func (h *Handler) ChangePaymentStatus(c *gin.Context) {
	connector, ok := h.resolveConnector(c)
	if !ok {
		return
	}
	var req PaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	referral, err := connector.ChangePaymentStatus(c.Request.Context(), c.Param("provider_id"), strings.TrimSpace(req.Status))
	if err != nil {
		respondReferralError(c, err)
		return
	}
	response.Success(c, referralView{Referral: referral})
}

// MarkPaid 平台确认收款
func (h *Handler) MarkPaid(c *gin.Context) {
	connector, ok := h.resolveConnector(c)
	if !ok {
		return
	}
	referral, err := connector.MarkReferralPaid(c.Request.Context(), c.Param("provider_id"))
	if err != nil {
		respondReferralError(c, err)
		return
	}
	response.Success(c, referralView{Referral: referral})
}

// RejectOrder 平台订单取消
func (h *Handler) RejectOrder(c *gin.Context) {
	connector, ok := h.resolveConnector(c)
	if !ok {
		return
	}
	var req RejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "请求参数错误", err)
			return
		}
	}
	referral, err := connector.RejectReferral(c.Request.Context(), c.Param("provider_id"), strings.TrimSpace(req.Reason))
	if err != nil {
		respondReferralError(c, err)
		return
	}
	response.Success(c, referralView{Referral: referral})
}

// RefundOrder 平台订单退款
func (h *Handler) RefundOrder(c *gin.Context) {
	connector, ok := h.resolveConnector(c)
	if !ok {
		return
	}
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	referral, err := connector.RefundReferral(c.Request.Context(), service.RefundInput{
		Provider:      connector.Provider(),
		ProviderID:    c.Param("provider_id"),
		RefundedTotal: req.RefundedTotal,
		FullRefund:    req.FullRefund,
		Order:         req.Order,
	})
	if err != nil {
		respondReferralError(c, err)
		return
	}
	response.Success(c, referralView{Referral: referral})
}
