package repository

import (
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralActivityRepository 推广订单事件流水数据访问接口
type ReferralActivityRepository interface {
	Create(activity *models.ReferralActivity) (bool, error)
	ListByReferral(referralID uint) ([]models.ReferralActivity, error)
}

// GormReferralActivityRepository GORM 事件流水仓储
type GormReferralActivityRepository struct {
	db *gorm.DB
}

// NewReferralActivityRepository 创建事件流水仓储
func NewReferralActivityRepository(db *gorm.DB) *GormReferralActivityRepository {
	return &GormReferralActivityRepository{db: db}
}

// Create 写入事件流水，event_id 已存在时忽略并返回 false
func (r *GormReferralActivityRepository) Create(activity *models.ReferralActivity) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(activity)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByReferral 查询推广订单的事件流水
func (r *GormReferralActivityRepository) ListByReferral(referralID uint) ([]models.ReferralActivity, error) {
	if referralID == 0 {
		return []models.ReferralActivity{}, nil
	}
	var rows []models.ReferralActivity
	if err := r.db.Where("referral_id = ?", referralID).Order("occurred_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
