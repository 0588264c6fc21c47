package admin

import (
	"strings"
	"time"

	handlershared "github.com/dujiao-next/affiliate-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/gin-gonic/gin"
)

// RejectReferralRequest 驳回推广订单请求
type RejectReferralRequest struct {
	Reason string `json:"reason"`
}

// ListReferrals 推广订单列表
func (h *Handler) ListReferrals(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	filter := repository.ReferralListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: handlershared.QueryUint(c, "affiliate_id"),
		Status:      strings.TrimSpace(c.Query("status")),
		Type:        strings.TrimSpace(c.Query("type")),
		Provider:    strings.ToLower(strings.TrimSpace(c.Query("provider"))),
		ProviderID:  strings.TrimSpace(c.Query("provider_id")),
		PayoutID:    handlershared.QueryUint(c, "payout_id"),
	}
	if from, ok := parseQueryTime(c, "created_from"); ok {
		filter.CreatedFrom = &from
	}
	if to, ok := parseQueryTime(c, "created_to"); ok {
		filter.CreatedTo = &to
	}

	rows, total, err := h.ReferralService.ListReferrals(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "查询推广订单失败", err)
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}

// GetReferral 推广订单详情
func (h *Handler) GetReferral(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	referral, err := h.ReferralService.GetReferral(id)
	if err != nil {
		respondServiceError(c, err, "查询推广订单失败")
		return
	}
	// 事件流水由 worker 异步写入，队列关闭时为空
	activities, err := h.ActivityRepo.ListByReferral(referral.ID)
	if err != nil {
		respondError(c, response.CodeInternal, "查询推广订单流水失败", err)
		return
	}
	response.Success(c, gin.H{"referral": referral, "activities": activities})
}

// RejectReferral 管理员驳回推广订单
func (h *Handler) RejectReferral(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req RejectReferralRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "请求参数错误", err)
			return
		}
	}
	referral, err := h.ReferralService.RejectReferral(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		respondServiceError(c, err, "驳回推广订单失败")
		return
	}
	requestLog(c).Infow("admin_referral_rejected", "referral_id", id, "operator", adminSubject(c))
	response.Success(c, referral)
}

// parseQueryTime 支持 RFC3339 与 2006-01-02 两种格式
func parseQueryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		return t, true
	}
	return time.Time{}, false
}
