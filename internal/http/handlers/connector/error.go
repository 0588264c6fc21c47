package connector

import (
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	handlershared "github.com/dujiao-next/affiliate-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
)

var referralErrorRules = []handlershared.MappedError{
	{Target: service.ErrOrderInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrConnectorNotRegistered, Code: response.CodeNotFound},
	{Target: service.ErrReferralNotFound, Code: response.CodeNotFound},
	{Target: service.ErrRenewalParentNotFound, Code: response.CodeNotFound},
	{Target: service.ErrReferralStatusInvalid, Code: response.CodeConflict},
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondReferralError(c *gin.Context, err error) {
	handlershared.RespondWithMappedError(c, err, referralErrorRules, response.CodeInternal, "推广订单处理失败")
}
