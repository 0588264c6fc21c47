package models

import (
	"time"

	"gorm.io/gorm"
)

// Affiliate 推广员
type Affiliate struct {
	ID             uint           `gorm:"primarykey" json:"id"`                                         // 主键
	UserID         uint           `gorm:"not null;uniqueIndex" json:"user_id"`                          // 所属用户ID
	GroupID        *uint          `gorm:"index" json:"group_id,omitempty"`                              // 所属分组
	Rate           *Money         `gorm:"type:decimal(20,2)" json:"rate,omitempty"`                     // 个人费率，为空按 0 处理
	RateType       string         `gorm:"type:varchar(20);not null;default:'default'" json:"rate_type"` // 费率类型 default/percentage/flat/group
	PaymentEmail   string         `gorm:"type:varchar(255);index" json:"payment_email"`                 // 收款邮箱
	Status         string         `gorm:"type:varchar(20);not null;index" json:"status"`                // 状态
	TotalEarnings  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings"`  // 累计佣金（unpaid+paid）
	UnpaidEarnings Money          `gorm:"type:decimal(20,2);not null;default:0" json:"unpaid_earnings"` // 待结算佣金
	Referrals      int64          `gorm:"not null;default:0" json:"referrals"`                          // 有效推广订单数
	Visits         int64          `gorm:"not null;default:0" json:"visits"`                             // 访问数
	SettingsJSON   JSON           `gorm:"type:json" json:"settings"`                                    // 扩展配置
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`                                      // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间

	User  User            `gorm:"foreignKey:UserID" json:"user,omitempty"`   // 用户信息
	Group *AffiliateGroup `gorm:"foreignKey:GroupID" json:"group,omitempty"` // 分组
}

// TableName 指定表名
func (Affiliate) TableName() string {
	return "affiliates"
}

// AffiliateGroup 推广员分组（分组费率）
type AffiliateGroup struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                            // 主键
	Name      string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`              // 分组名称
	Rate      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"rate"`               // 分组费率
	RateType  string    `gorm:"type:varchar(20);not null;default:'percentage'" json:"rate_type"` // percentage/flat
	Status    string    `gorm:"type:varchar(20);not null;default:'active'" json:"status"`        // 状态
	CreatedAt time.Time `json:"created_at"`                                                      // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                                      // 更新时间
}

// TableName 指定表名
func (AffiliateGroup) TableName() string {
	return "affiliate_groups"
}
