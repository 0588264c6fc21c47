package repository

import (
	"errors"

	"github.com/dujiao-next/affiliate-engine/internal/models"
	"gorm.io/gorm"
)

// VisitRepository 推广访问记录数据访问接口
type VisitRepository interface {
	WithTx(tx *gorm.DB) VisitRepository

	GetByID(id uint) (*models.Visit, error)
	Create(visit *models.Visit) error
	AttachReferral(visitID, referralID uint) error
	List(filter VisitListFilter) ([]models.Visit, int64, error)
}

// GormVisitRepository GORM 访问记录仓储
type GormVisitRepository struct {
	db *gorm.DB
}

// NewVisitRepository 创建访问记录仓储
func NewVisitRepository(db *gorm.DB) *GormVisitRepository {
	return &GormVisitRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVisitRepository) WithTx(tx *gorm.DB) VisitRepository {
	if tx == nil {
		return r
	}
	return &GormVisitRepository{db: tx}
}

// GetByID 按ID获取访问记录
func (r *GormVisitRepository) GetByID(id uint) (*models.Visit, error) {
	if id == 0 {
		return nil, nil
	}
	var visit models.Visit
	if err := r.db.First(&visit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &visit, nil
}

// Create 创建访问记录
func (r *GormVisitRepository) Create(visit *models.Visit) error {
	return r.db.Create(visit).Error
}

// AttachReferral 回写访问转化的推广订单（仅首次）
func (r *GormVisitRepository) AttachReferral(visitID, referralID uint) error {
	if visitID == 0 || referralID == 0 {
		return nil
	}
	return r.db.Model(&models.Visit{}).
		Where("id = ? AND referral_id IS NULL", visitID).
		Update("referral_id", referralID).Error
}


// List 查询访问记录
func (r *GormVisitRepository) List(filter VisitListFilter) ([]models.Visit, int64, error) {
	query := r.db.Model(&models.Visit{})
	if filter.AffiliateID != 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.Converted != nil {
		if *filter.Converted {
			query = query.Where("referral_id IS NOT NULL")
		} else {
			query = query.Where("referral_id IS NULL")
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Visit
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
