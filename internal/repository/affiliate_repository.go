package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateRepository 推广员数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository

	GetByID(id uint) (*models.Affiliate, error)
	GetByIDForUpdate(id uint) (*models.Affiliate, error)
	GetByUserID(userID uint) (*models.Affiliate, error)
	GetByUsername(username string) (*models.Affiliate, error)
	Create(affiliate *models.Affiliate) error
	UpdateStatus(id uint, status string, updatedAt time.Time) error
	UpdateRate(id uint, rate *models.Money, rateType string, groupID *uint, updatedAt time.Time) error
	UpdateLedger(id uint, ledger LedgerAggregate, updatedAt time.Time) error
	List(filter AffiliateListFilter) ([]models.Affiliate, int64, error)
	ListIDsAfter(afterID uint, limit int) ([]uint, error)

	GetGroupByID(id uint) (*models.AffiliateGroup, error)
	CreateGroup(group *models.AffiliateGroup) error
}

// GormAffiliateRepository GORM 推广员仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广员仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取推广员（含分组与用户）
func (r *GormAffiliateRepository) GetByID(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Preload("User").Preload("Group").First(&affiliate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByIDForUpdate 按ID获取推广员并加行锁，同一推广员的账本重算串行执行
func (r *GormAffiliateRepository) GetByIDForUpdate(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Group").First(&affiliate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByUserID 按用户ID获取推广员
func (r *GormAffiliateRepository) GetByUserID(userID uint) (*models.Affiliate, error) {
	if userID == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Preload("User").Preload("Group").Where("user_id = ?", userID).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByUsername 按所属用户名获取推广员
func (r *GormAffiliateRepository) GetByUsername(username string) (*models.Affiliate, error) {
	normalized := strings.TrimSpace(username)
	if normalized == "" {
		return nil, nil
	}
	var affiliate models.Affiliate
	err := r.db.Model(&models.Affiliate{}).
		Joins("JOIN users ON users.id = affiliates.user_id AND users.deleted_at IS NULL").
		Where("users.username = ?", normalized).
		Preload("User").
		Preload("Group").
		First(&affiliate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// Create 创建推广员
func (r *GormAffiliateRepository) Create(affiliate *models.Affiliate) error {
	return r.db.Create(affiliate).Error
}

// UpdateStatus 更新推广员状态
func (r *GormAffiliateRepository) UpdateStatus(id uint, status string, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     strings.TrimSpace(status),
			"updated_at": updatedAt,
		}).Error
}

// UpdateRate 更新推广员费率配置
func (r *GormAffiliateRepository) UpdateRate(id uint, rate *models.Money, rateType string, groupID *uint, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"rate":       rate,
			"rate_type":  strings.TrimSpace(rateType),
			"group_id":   groupID,
			"updated_at": updatedAt,
		}).Error
}

// UpdateLedger 回写账本汇总字段
func (r *GormAffiliateRepository) UpdateLedger(id uint, ledger LedgerAggregate, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_earnings":  models.NewMoneyFromDecimal(ledger.TotalEarnings),
			"unpaid_earnings": models.NewMoneyFromDecimal(ledger.UnpaidEarnings),
			"referrals":       ledger.Referrals,
			"visits":          ledger.Visits,
			"updated_at":      updatedAt,
		}).Error
}

// List 查询推广员列表
func (r *GormAffiliateRepository) List(filter AffiliateListFilter) ([]models.Affiliate, int64, error) {
	query := r.db.Model(&models.Affiliate{}).Preload("User").Preload("Group")
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("affiliates.status = ?", status)
	}
	if filter.GroupID != 0 {
		query = query.Where("affiliates.group_id = ?", filter.GroupID)
	}
	if condition, args := buildKeywordCondition(r.db, []string{"users.username", "users.email", "affiliates.payment_email"}, filter.Keyword); condition != "" {
		query = query.Joins("LEFT JOIN users ON users.id = affiliates.user_id").Where(condition, args...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Affiliate
	if err := query.Order("affiliates.id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListIDsAfter 按主键游标分批获取推广员ID
func (r *GormAffiliateRepository) ListIDsAfter(afterID uint, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uint
	if err := r.db.Model(&models.Affiliate{}).
		Where("id > ?", afterID).
		Order("id asc").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// GetGroupByID 获取推广员分组
func (r *GormAffiliateRepository) GetGroupByID(id uint) (*models.AffiliateGroup, error) {
	if id == 0 {
		return nil, nil
	}
	var group models.AffiliateGroup
	if err := r.db.First(&group, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

// CreateGroup 创建推广员分组
func (r *GormAffiliateRepository) CreateGroup(group *models.AffiliateGroup) error {
	return r.db.Create(group).Error
}
