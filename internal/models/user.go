package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户表（推广员的所属账号）
type User struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                  // 主键
	Username    string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"` // 用户名，推广链接可按用户名生成
	Email       string         `gorm:"type:varchar(255);index" json:"email"`                  // 邮箱
	DisplayName string         `gorm:"default:''" json:"display_name"`                        // 昵称
	Status      string         `gorm:"type:varchar(20);default:'active'" json:"status"`       // 账号状态
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                               // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                               // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                        // 软删除时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
