package admin

import (
	"strings"

	handlershared "github.com/dujiao-next/affiliate-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/queue"
	"github.com/dujiao-next/affiliate-engine/internal/repository"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateUserRequest 创建推广员所属账号请求
type CreateUserRequest struct {
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// RegisterAffiliateRequest 开通推广员请求
type RegisterAffiliateRequest struct {
	UserID       uint                   `json:"user_id" binding:"required"`
	PaymentEmail string                 `json:"payment_email"`
	RateType     string                 `json:"rate_type"`
	Rate         *decimal.Decimal       `json:"rate"`
	GroupID      *uint                  `json:"group_id"`
	Status       string                 `json:"status"`
	Settings     map[string]interface{} `json:"settings"`
}

// UpdateAffiliateStatusRequest 更新推广员状态请求
type UpdateAffiliateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateAffiliateRateRequest 调整推广员费率请求
type UpdateAffiliateRateRequest struct {
	RateType string           `json:"rate_type" binding:"required"`
	Rate     *decimal.Decimal `json:"rate"`
	GroupID  *uint            `json:"group_id"`
}

// CreateAffiliateGroupRequest 创建推广员分组请求
type CreateAffiliateGroupRequest struct {
	Name     string          `json:"name" binding:"required"`
	Rate     decimal.Decimal `json:"rate"`
	RateType string          `json:"rate_type"`
	Status   string          `json:"status"`
}

// CreateUser 创建推广员所属账号
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	user, err := h.AffiliateService.CreateUser(service.CreateUserInput{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		respondServiceError(c, err, "创建用户失败")
		return
	}
	response.Success(c, user)
}

// RegisterAffiliate 为已有用户开通推广员
func (h *Handler) RegisterAffiliate(c *gin.Context) {
	var req RegisterAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	affiliate, err := h.AffiliateService.RegisterAffiliate(service.RegisterAffiliateInput{
		UserID:       req.UserID,
		PaymentEmail: req.PaymentEmail,
		RateType:     req.RateType,
		Rate:         req.Rate,
		GroupID:      req.GroupID,
		Status:       req.Status,
		Settings:     req.Settings,
	})
	if err != nil {
		respondServiceError(c, err, "开通推广员失败")
		return
	}
	requestLog(c).Infow("admin_affiliate_registered", "affiliate_id", affiliate.ID, "operator", adminSubject(c))
	response.Success(c, affiliate)
}

// ListAffiliates 推广员列表
func (h *Handler) ListAffiliates(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	rows, total, err := h.AffiliateService.ListAffiliates(repository.AffiliateListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		GroupID:  handlershared.QueryUint(c, "group_id"),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "查询推广员失败", err)
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}

// GetAffiliate 推广员详情
func (h *Handler) GetAffiliate(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	affiliate, err := h.AffiliateService.GetAffiliate(id)
	if err != nil {
		respondServiceError(c, err, "查询推广员失败")
		return
	}
	response.Success(c, affiliate)
}

// UpdateAffiliateStatus 更新推广员状态
func (h *Handler) UpdateAffiliateStatus(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req UpdateAffiliateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	affiliate, err := h.AffiliateService.UpdateAffiliateStatus(id, req.Status)
	if err != nil {
		respondServiceError(c, err, "更新推广员状态失败")
		return
	}
	requestLog(c).Infow("admin_affiliate_status_updated", "affiliate_id", id, "status", affiliate.Status, "operator", adminSubject(c))
	response.Success(c, affiliate)
}

// UpdateAffiliateRate 调整推广员费率
func (h *Handler) UpdateAffiliateRate(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req UpdateAffiliateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	affiliate, err := h.AffiliateService.UpdateAffiliateRate(id, service.UpdateAffiliateRateInput{
		RateType: req.RateType,
		Rate:     req.Rate,
		GroupID:  req.GroupID,
	})
	if err != nil {
		respondServiceError(c, err, "调整推广员费率失败")
		return
	}
	response.Success(c, affiliate)
}

// RecountAffiliate 重算推广员账本，async=true 时投递到队列
func (h *Handler) RecountAffiliate(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	if strings.EqualFold(strings.TrimSpace(c.Query("async")), "true") {
		if !h.QueueClient.Enabled() {
			respondServiceError(c, service.ErrQueueUnavailable, "投递重算任务失败")
			return
		}
		if _, err := h.AffiliateService.GetAffiliate(id); err != nil {
			respondServiceError(c, err, "投递重算任务失败")
			return
		}
		if err := h.QueueClient.EnqueueAffiliateRecount(queue.AffiliateRecountPayload{AffiliateID: id}); err != nil {
			respondError(c, response.CodeInternal, "投递重算任务失败", err)
			return
		}
		response.Success(c, gin.H{"affiliate_id": id, "queued": true})
		return
	}

	snapshot, err := h.AffiliateService.RecountAffiliate(id)
	if err != nil {
		respondServiceError(c, err, "重算推广员账本失败")
		return
	}
	response.Success(c, snapshot)
}

// CreateAffiliateGroup 创建推广员分组
func (h *Handler) CreateAffiliateGroup(c *gin.Context) {
	var req CreateAffiliateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	group, err := h.AffiliateService.CreateGroup(service.CreateAffiliateGroupInput{
		Name:     req.Name,
		Rate:     req.Rate,
		RateType: req.RateType,
		Status:   req.Status,
	})
	if err != nil {
		respondServiceError(c, err, "创建推广员分组失败")
		return
	}
	response.Success(c, group)
}

// ListVisits 访问记录列表
func (h *Handler) ListVisits(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	rows, total, err := h.AffiliateService.ListVisits(repository.VisitListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: handlershared.QueryUint(c, "affiliate_id"),
		Converted:   handlershared.QueryBoolPtr(c, "converted"),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "查询访问记录失败", err)
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}
