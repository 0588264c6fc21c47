package public

import (
	"net/http"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// TrackVisitRequest 推广访问追踪请求
type TrackVisitRequest struct {
	Ref         string `json:"ref" binding:"required"`
	UserID      uint   `json:"user_id"`
	URL         string `json:"url"`
	Referrer    string `json:"referrer"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
}

// TrackVisit 记录推广访问，并按结果写入归因 Cookie
func (h *Handler) TrackVisit(c *gin.Context) {
	var req TrackVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	cookieName := h.cookieName()
	currentCookie := ""
	if cookie, err := c.Request.Cookie(cookieName); err == nil {
		currentCookie = cookie.Value
	}

	referrer := strings.TrimSpace(req.Referrer)
	if referrer == "" {
		referrer = c.GetHeader("Referer")
	}

	result, err := h.AttributionResolver.TrackVisit(service.TrackVisitInput{
		AffiliateParam: req.Ref,
		Cookie:         currentCookie,
		UserID:         req.UserID,
		URL:            req.URL,
		Referrer:       referrer,
		UTMSource:      req.UTMSource,
		UTMMedium:      req.UTMMedium,
		UTMCampaign:    req.UTMCampaign,
		IP:             c.ClientIP(),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "访问记录失败", err)
		return
	}

	if result.CookieValue != "" {
		h.writeAttributionCookie(c, cookieName, result.CookieValue, result.MaxAge)
	}
	response.Success(c, result)
}

func (h *Handler) cookieName() string {
	if h.Config != nil {
		if name := strings.TrimSpace(h.Config.Referral.CookieName); name != "" {
			return name
		}
	}
	return constants.AttributionCookieName
}

// writeAttributionCookie 写入原始值，避免竖线被转义导致平台侧无法解析
func (h *Handler) writeAttributionCookie(c *gin.Context, name, value string, maxAge int) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	}
	if h.Config != nil {
		if path := strings.TrimSpace(h.Config.Referral.CookiePath); path != "" {
			cookie.Path = path
		}
		cookie.Domain = strings.TrimSpace(h.Config.Referral.CookieDomain)
		cookie.Secure = h.Config.Referral.CookieSecure
	}
	http.SetCookie(c.Writer, cookie)
}
