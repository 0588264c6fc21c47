package constants

// 推广员状态常量
const (
	AffiliateStatusActive    = "active"
	AffiliateStatusPending   = "pending"
	AffiliateStatusCancelled = "cancelled"
	AffiliateStatusRejected  = "rejected"
)

// 佣金费率类型常量
const (
	RateTypeDefault    = "default"
	RateTypePercentage = "percentage"
	RateTypeFlat       = "flat"
	RateTypeGroup      = "group"
)

// 推广员分组状态常量
const (
	AffiliateGroupStatusActive   = "active"
	AffiliateGroupStatusInactive = "inactive"
)

// 推广订单状态常量
const (
	ReferralStatusPending   = "pending"
	ReferralStatusUnpaid    = "unpaid"
	ReferralStatusPaid      = "paid"
	ReferralStatusRejected  = "rejected"
	ReferralStatusCancelled = "cancelled"
)

// 推广订单类型常量
const (
	ReferralTypeSale          = "sale"
	ReferralTypePayment       = "payment"
	ReferralTypeLead          = "lead"
	ReferralTypeRecurringSale = "recurring_sale"
)

// 推广订单事件常量
const (
	ReferralEventCreated           = "referral_created"
	ReferralEventMarkedUnpaid      = "referral_marked_unpaid"
	ReferralEventMarkedPaid        = "referral_marked_paid"
	ReferralEventMarkedRejected    = "referral_marked_rejected"
	ReferralEventCommissionUpdated = "referral_commission_updated"
)

// 推广订单拒绝原因常量
const (
	ReferralRejectReasonRefunded  = "order_refunded"
	ReferralRejectReasonCancelled = "order_cancelled"
	ReferralRejectReasonFailed    = "payment_failed"
	ReferralRejectReasonAdmin     = "admin_rejected"
)

// 平台订单状态常量
const (
	PlatformOrderStatusPending    = "pending"
	PlatformOrderStatusProcessing = "processing"
	PlatformOrderStatusPaid       = "paid"
	PlatformOrderStatusCompleted  = "completed"
	PlatformOrderStatusRefunded   = "refunded"
	PlatformOrderStatusCancelled  = "cancelled"
	PlatformOrderStatusFailed     = "failed"
)

// 佣金规则匹配目标常量
const (
	RateRuleTargetProduct  = "product"
	RateRuleTargetCategory = "category"
)

// 推广链接参数格式常量
const (
	ReferralFormatID       = "id"
	ReferralFormatUsername = "username"
)

// 访问追踪结果常量
const (
	VisitOutcomeCreated          = "created"
	VisitOutcomeExisting         = "existing"
	VisitOutcomeAlreadyExist     = "already_exist"
	VisitOutcomeInvalidAffiliate = "invalid_affiliate"
	VisitOutcomeSelfVisit        = "self_visit"
)

// 下单处理结果常量
const (
	ReferralOutcomeCreated        = "created"
	ReferralOutcomeExisting       = "existing"
	ReferralOutcomeNoAttribution  = "no_attribution"
	ReferralOutcomeSelfReferral   = "self_referral"
	ReferralOutcomeZeroCommission = "zero_commission"
	ReferralOutcomeDisabled       = "connector_disabled"
	ReferralOutcomeRecurringOff   = "recurring_disabled"
)

// 结算批次状态常量
const (
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 连接器常量
const (
	ConnectorProviderGeneric = "generic"
)

// 异步队列常量
const (
	QueueDefault = "default"
)

// 异步任务类型常量
const (
	TaskReferralEvent    = "referral:event"
	TaskAffiliateRecount = "affiliate:recount"
	TaskLedgerReconcile  = "affiliate:ledger_reconcile"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "aff"
)

// 推广 Cookie 常量
const (
	AttributionCookieName      = "f_aff"
	AttributionCookieSeparator = "|"
)

// 设置键常量
const (
	SettingKeyReferralConfig        = "referral_config"
	SettingKeyConnectorConfigPrefix = "connector_config:"
)
