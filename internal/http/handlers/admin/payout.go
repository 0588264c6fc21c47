package admin

import (
	"strings"

	handlershared "github.com/dujiao-next/affiliate-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/repository"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// CreatePayoutRequest 创建结算批次请求
type CreatePayoutRequest struct {
	AffiliateIDs []uint `json:"affiliate_ids" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
	Note         string `json:"note"`
}

// CreatePayout 结算推广员 unpaid 佣金
func (h *Handler) CreatePayout(c *gin.Context) {
	var req CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	payout, err := h.PayoutService.CreatePayout(c.Request.Context(), service.PayoutInput{
		AffiliateIDs: req.AffiliateIDs,
		Currency:     req.Currency,
		Note:         req.Note,
		CreatedBy:    adminSubject(c),
	})
	if err != nil {
		respondServiceError(c, err, "创建结算批次失败")
		return
	}
	response.Success(c, payout)
}

// ListPayouts 结算批次列表
func (h *Handler) ListPayouts(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	rows, total, err := h.PayoutService.ListPayouts(repository.PayoutListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "查询结算批次失败", err)
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}

// GetPayout 结算批次详情
func (h *Handler) GetPayout(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	payout, err := h.PayoutService.GetPayout(id)
	if err != nil {
		respondServiceError(c, err, "查询结算批次失败")
		return
	}
	response.Success(c, payout)
}
