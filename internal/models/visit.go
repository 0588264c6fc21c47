package models

import "time"

// Visit 推广访问记录
type Visit struct {
	ID          uint      `gorm:"primarykey" json:"id"`                  // 主键
	AffiliateID uint      `gorm:"not null;index" json:"affiliate_id"`    // 推广员ID
	UserID      *uint     `gorm:"index" json:"user_id,omitempty"`        // 已登录访客的用户ID
	ReferralID  *uint     `gorm:"index" json:"referral_id,omitempty"`    // 转化后的推广订单
	URL         string    `gorm:"type:varchar(1000)" json:"url"`         // 落地地址
	Referrer    string    `gorm:"type:varchar(1000)" json:"referrer"`    // 来源地址
	UTMSource   string    `gorm:"type:varchar(100)" json:"utm_source"`   // utm_source
	UTMMedium   string    `gorm:"type:varchar(100)" json:"utm_medium"`   // utm_medium
	UTMCampaign string    `gorm:"type:varchar(100)" json:"utm_campaign"` // utm_campaign
	IP          string    `gorm:"type:varchar(64)" json:"ip"`            // 访客 IP
	CreatedAt   time.Time `gorm:"index" json:"created_at"`               // 创建时间
}

// TableName 指定表名
func (Visit) TableName() string {
	return "affiliate_visits"
}
