package models

import "time"

// Payout 佣金结算批次
type Payout struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                // 主键
	Status        string    `gorm:"type:varchar(20);not null;index" json:"status"`       // 状态
	Currency      string    `gorm:"type:varchar(10);not null" json:"currency"`           // 币种
	Amount        Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"` // 结算总额
	ReferralCount int64     `gorm:"not null;default:0" json:"referral_count"`            // 结算推广订单数
	Note          string    `gorm:"type:varchar(255)" json:"note"`                       // 备注
	CreatedBy     string    `gorm:"type:varchar(64)" json:"created_by"`                  // 操作人
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt     time.Time `json:"updated_at"`                                          // 更新时间

	Transactions []PayoutTransaction `gorm:"foreignKey:PayoutID" json:"transactions,omitempty"` // 结算流水
}

// TableName 指定表名
func (Payout) TableName() string {
	return "affiliate_payouts"
}

// PayoutTransaction 单个推广员的结算流水
type PayoutTransaction struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                // 主键
	PayoutID      uint      `gorm:"not null;index" json:"payout_id"`                     // 结算批次
	AffiliateID   uint      `gorm:"not null;index" json:"affiliate_id"`                  // 推广员ID
	PaymentEmail  string    `gorm:"type:varchar(255)" json:"payment_email"`              // 收款邮箱
	Amount        Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"` // 结算金额
	ReferralCount int64     `gorm:"not null;default:0" json:"referral_count"`            // 推广订单数
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                             // 创建时间
}

// TableName 指定表名
func (PayoutTransaction) TableName() string {
	return "affiliate_payout_transactions"
}
