package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int

	// Message 触发限流时的提示，%d 为剩余等待秒数
	Message string
}

const defaultRateLimitMsg = "请求过于频繁，请 %d 秒后重试"

// RateLimitMiddleware Redis 固定窗口限流；Redis 异常时放行，访问追踪不因限流组件故障丢失
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	window := time.Duration(rule.WindowSeconds) * time.Second
	return func(c *gin.Context) {
		if client == nil || rule.WindowSeconds <= 0 || rule.MaxRequests <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP()
		if keyFunc != nil {
			if custom := strings.TrimSpace(keyFunc(c)); custom != "" {
				key = custom
			}
		}
		if rule.Prefix != "" {
			key = rule.Prefix + ":" + key
		}

		var incr *redis.IntCmd
		var ttl *redis.DurationCmd
		_, err := client.TxPipelined(c.Request.Context(), func(pipe redis.Pipeliner) error {
			// 首次请求建立带过期时间的计数器，INCR 不会重置 TTL
			pipe.SetNX(c.Request.Context(), key, 0, window)
			incr = pipe.Incr(c.Request.Context(), key)
			ttl = pipe.TTL(c.Request.Context(), key)
			return nil
		})
		if err != nil {
			logger.Warnw("rate_limit_redis_failed", "key", key, "error", err)
			c.Next()
			return
		}

		if incr.Val() > int64(rule.MaxRequests) {
			wait := retryAfterSeconds(ttl.Val(), rule.WindowSeconds)
			format := strings.TrimSpace(rule.Message)
			if format == "" {
				format = defaultRateLimitMsg
			}
			c.Header("Retry-After", strconv.Itoa(wait))
			response.Error(c, response.CodeTooManyRequests, fmt.Sprintf(format, wait))
			c.Abort()
			return
		}
		c.Next()
	}
}

// retryAfterSeconds 剩余窗口秒数，TTL 缺失（-1/-2）时回落到整个窗口
func retryAfterSeconds(ttl time.Duration, windowSeconds int) int {
	if seconds := int(ttl / time.Second); seconds >= 1 {
		return seconds
	}
	if windowSeconds >= 1 {
		return windowSeconds
	}
	return 1
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByIPAndJSONField 使用 JSON 字段 + IP 作为限流 key，读取后恢复请求体
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(readJSONField(c, field))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

func readJSONField(c *gin.Context, field string) string {
	if c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	raw, ok := payload[field]
	if !ok {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	// 推广员 ID 也可能以数字传入
	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		return number.String()
	}
	return ""
}
