package models

import "time"

// Referral 推广订单（佣金记录）
type Referral struct {
	ID                  uint             `gorm:"primarykey" json:"id"`                                                                           // 主键
	AffiliateID         uint             `gorm:"not null;index" json:"affiliate_id"`                                                             // 推广员ID
	ParentID            *uint            `gorm:"index" json:"parent_id,omitempty"`                                                               // 父推广订单（续费）
	CustomerID          *uint            `gorm:"index" json:"customer_id,omitempty"`                                                             // 客户ID
	VisitID             *uint            `gorm:"index" json:"visit_id,omitempty"`                                                                // 归因访问ID
	Description         string           `gorm:"type:varchar(255)" json:"description"`                                                           // 描述
	Status              string           `gorm:"type:varchar(20);not null;index" json:"status"`                                                  // 状态
	Amount              Money            `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`                                            // 佣金金额
	OrderTotal          Money            `gorm:"type:decimal(20,2);not null;default:0" json:"order_total"`                                       // 计佣订单金额
	RefundedTotal       Money            `gorm:"type:decimal(20,2);not null;default:0" json:"refunded_total"`                                    // 累计退款金额
	Currency            string           `gorm:"type:varchar(10);not null" json:"currency"`                                                      // 币种
	Type                string           `gorm:"type:varchar(30);not null;default:'sale'" json:"type"`                                           // 类型
	Provider            string           `gorm:"type:varchar(50);not null;uniqueIndex:idx_referral_provider_order" json:"provider"`              // 来源平台
	ProviderID          string           `gorm:"type:varchar(128);not null;uniqueIndex:idx_referral_provider_order" json:"provider_id"`          // 平台订单号
	SplitKey            string           `gorm:"type:varchar(128);not null;default:'';uniqueIndex:idx_referral_provider_order" json:"split_key"` // 同一订单下的子记录标识（续费周期等）
	ProviderSubID       string           `gorm:"type:varchar(128);index" json:"provider_sub_id"`                                                 // 平台订阅号
	Products            ReferralProducts `gorm:"type:json" json:"products"`                                                                      // 商品快照
	RejectReason        string           `gorm:"type:varchar(255)" json:"reject_reason"`                                                         // 拒绝原因
	PayoutID            *uint            `gorm:"index" json:"payout_id,omitempty"`                                                               // 结算批次
	PayoutTransactionID *uint            `gorm:"index" json:"payout_transaction_id,omitempty"`                                                   // 结算流水
	PaidAt              *time.Time       `json:"paid_at,omitempty"`                                                                              // 结算时间
	CreatedAt           time.Time        `gorm:"index" json:"created_at"`                                                                        // 创建时间
	UpdatedAt           time.Time        `gorm:"index" json:"updated_at"`                                                                        // 更新时间

	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"` // 推广员
	Customer  *Customer  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`   // 客户
}

// TableName 指定表名
func (Referral) TableName() string {
	return "affiliate_referrals"
}
