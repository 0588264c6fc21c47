package service

import "errors"

// 通用错误
var (
	ErrNotFound           = errors.New("资源不存在")
	ErrQueueUnavailable   = errors.New("异步队列不可用")
	ErrAccessTokenInvalid = errors.New("无效的访问令牌")
)

// 推广员与配置错误
var (
	ErrAffiliateNotFound        = errors.New("推广员不存在")
	ErrAffiliateExists          = errors.New("推广员已存在")
	ErrAffiliateStatusInvalid   = errors.New("推广员状态无效")
	ErrAffiliateRateInvalid     = errors.New("推广员费率配置无效")
	ErrAffiliateGroupInvalid    = errors.New("推广员分组无效")
	ErrUserNotFound             = errors.New("用户不存在")
	ErrUserExists               = errors.New("用户名已存在")
	ErrUserInvalid              = errors.New("用户信息无效")
	ErrReferralConfigInvalid    = errors.New("推广配置无效")
	ErrConnectorConfigInvalid   = errors.New("连接器配置无效")
	ErrConnectorNotRegistered   = errors.New("连接器未注册")
	ErrAttributionCookieInvalid = errors.New("推广 Cookie 格式无效")
	ErrVisitCreateFailed        = errors.New("访问记录写入失败")
)

// 推广订单与结算错误
var (
	ErrOrderInvalid          = errors.New("平台订单数据无效")
	ErrReferralNotFound      = errors.New("推广订单不存在")
	ErrReferralStatusInvalid = errors.New("推广订单状态不允许该操作")
	ErrRenewalParentNotFound = errors.New("续费的原始推广订单不存在")
	ErrPayoutEmpty           = errors.New("没有可结算的推广订单")
	ErrPayoutInvalid         = errors.New("结算参数无效")
)
