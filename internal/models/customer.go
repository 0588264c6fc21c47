package models

import "time"

// Customer 推广客户（首单归属）
type Customer struct {
	ID            uint      `gorm:"primarykey" json:"id"`                   // 主键
	UserID        *uint     `gorm:"index" json:"user_id,omitempty"`         // 平台用户ID
	ByAffiliateID *uint     `gorm:"index" json:"by_affiliate_id,omitempty"` // 首次带来该客户的推广员，写入后不再变更
	Email         string    `gorm:"type:varchar(255);index" json:"email"`   // 邮箱
	FirstName     string    `gorm:"type:varchar(100)" json:"first_name"`    // 名
	LastName      string    `gorm:"type:varchar(100)" json:"last_name"`     // 姓
	IP            string    `gorm:"type:varchar(64)" json:"ip"`             // 下单 IP
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                // 创建时间
	UpdatedAt     time.Time `json:"updated_at"`                             // 更新时间
}

// TableName 指定表名
func (Customer) TableName() string {
	return "affiliate_customers"
}
