package admin

import (
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	handlershared "github.com/dujiao-next/affiliate-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var adminErrorRules = []handlershared.MappedError{
	{Target: service.ErrAffiliateNotFound, Code: response.CodeNotFound},
	{Target: service.ErrUserNotFound, Code: response.CodeNotFound},
	{Target: service.ErrReferralNotFound, Code: response.CodeNotFound},
	{Target: service.ErrNotFound, Code: response.CodeNotFound},
	{Target: service.ErrConnectorNotRegistered, Code: response.CodeNotFound},
	{Target: service.ErrAffiliateExists, Code: response.CodeConflict},
	{Target: service.ErrReferralStatusInvalid, Code: response.CodeConflict},
	{Target: service.ErrAffiliateStatusInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrAffiliateRateInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrAffiliateGroupInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrReferralConfigInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrConnectorConfigInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrPayoutInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrPayoutEmpty, Code: response.CodeBadRequest},
	{Target: service.ErrAccessTokenInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrQueueUnavailable, Code: response.CodeUnavailable},
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondServiceError(c *gin.Context, err error, fallbackMsg string) {
	handlershared.RespondWithMappedError(c, err, adminErrorRules, response.CodeInternal, fallbackMsg)
}

func adminSubject(c *gin.Context) string {
	return c.GetString("admin_subject")
}
