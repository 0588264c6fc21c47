package models

import "time"

// ReferralActivity 推广订单事件流水（由异步任务落库）
type ReferralActivity struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                  // 主键
	EventID        string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"event_id"` // 事件ID，重复投递时去重
	Event          string    `gorm:"type:varchar(64);not null;index" json:"event"`          // 事件名
	ReferralID     uint      `gorm:"not null;index" json:"referral_id"`                     // 推广订单ID
	AffiliateID    uint      `gorm:"not null;index" json:"affiliate_id"`                    // 推广员ID
	PreviousStatus string    `gorm:"type:varchar(20)" json:"previous_status"`               // 变更前状态
	Status         string    `gorm:"type:varchar(20)" json:"status"`                        // 变更后状态
	Amount         Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`   // 事件发生时佣金
	OccurredAt     time.Time `gorm:"index" json:"occurred_at"`                              // 事件时间
	CreatedAt      time.Time `json:"created_at"`                                            // 落库时间
}

// TableName 指定表名
func (ReferralActivity) TableName() string {
	return "affiliate_referral_activities"
}
