package shared

import (
	"strconv"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ParseUintParam 读取路径参数中的正整数 ID，失败时直接写入错误响应。
func ParseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		RespondError(c, response.CodeBadRequest, "参数 "+name+" 无效", nil)
		return 0, false
	}
	return uint(value), true
}

// QueryUint 读取可选的查询参数，非法值按 0 处理。
func QueryUint(c *gin.Context, name string) uint {
	value, err := strconv.ParseUint(strings.TrimSpace(c.Query(name)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(value)
}

// QueryBoolPtr 读取可选布尔查询参数，缺省返回 nil。
func QueryBoolPtr(c *gin.Context, name string) *bool {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &value
}
