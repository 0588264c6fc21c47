package repository

import (
	"errors"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/models"
	"gorm.io/gorm"
)

// PayoutRepository 佣金结算数据访问接口
type PayoutRepository interface {
	WithTx(tx *gorm.DB) PayoutRepository

	Create(payout *models.Payout) error
	Update(payout *models.Payout) error
	CreateTransaction(txn *models.PayoutTransaction) error
	GetByID(id uint) (*models.Payout, error)
	List(filter PayoutListFilter) ([]models.Payout, int64, error)
}

// GormPayoutRepository GORM 结算仓储
type GormPayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建结算仓储
func NewPayoutRepository(db *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPayoutRepository) WithTx(tx *gorm.DB) PayoutRepository {
	if tx == nil {
		return r
	}
	return &GormPayoutRepository{db: tx}
}

// Create 创建结算批次
func (r *GormPayoutRepository) Create(payout *models.Payout) error {
	return r.db.Omit("Transactions").Create(payout).Error
}

// Update 保存结算批次
func (r *GormPayoutRepository) Update(payout *models.Payout) error {
	return r.db.Omit("Transactions").Save(payout).Error
}

// CreateTransaction 创建结算流水
func (r *GormPayoutRepository) CreateTransaction(txn *models.PayoutTransaction) error {
	return r.db.Create(txn).Error
}

// GetByID 获取结算批次（含流水）
func (r *GormPayoutRepository) GetByID(id uint) (*models.Payout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.Payout
	if err := r.db.Preload("Transactions").First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// List 查询结算批次
func (r *GormPayoutRepository) List(filter PayoutListFilter) ([]models.Payout, int64, error) {
	query := r.db.Model(&models.Payout{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Payout
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
