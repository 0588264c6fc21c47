package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralRepository 推广订单数据访问接口
type ReferralRepository interface {
	WithTx(tx *gorm.DB) ReferralRepository

	GetByID(id uint) (*models.Referral, error)
	GetByIDForUpdate(id uint) (*models.Referral, error)
	GetByProviderOrder(provider, providerID, splitKey string) (*models.Referral, error)
	GetByProviderOrderForUpdate(provider, providerID, splitKey string) (*models.Referral, error)
	ListChildrenForUpdate(parentID uint) ([]models.Referral, error)
	Create(referral *models.Referral) error
	Update(referral *models.Referral) error
	List(filter ReferralListFilter) ([]models.Referral, int64, error)
	ListUnpaidForUpdate(affiliateID uint, currency string) ([]models.Referral, error)
	MarkPaid(ids []uint, payoutID, transactionID uint, paidAt time.Time) error
	SumLedger(affiliateID uint) (LedgerAggregate, error)
}

// GormReferralRepository GORM 推广订单仓储
type GormReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建推广订单仓储
func NewReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReferralRepository) WithTx(tx *gorm.DB) ReferralRepository {
	if tx == nil {
		return r
	}
	return &GormReferralRepository{db: tx}
}

// GetByID 按ID获取推广订单
func (r *GormReferralRepository) GetByID(id uint) (*models.Referral, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.Preload("Customer").Where("id = ?", id))
}

// GetByIDForUpdate 按ID获取推广订单并加锁
func (r *GormReferralRepository) GetByIDForUpdate(id uint) (*models.Referral, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

// GetByProviderOrder 按平台订单定位推广订单
func (r *GormReferralRepository) GetByProviderOrder(provider, providerID, splitKey string) (*models.Referral, error) {
	query, ok := r.providerOrderQuery(r.db, provider, providerID, splitKey)
	if !ok {
		return nil, nil
	}
	return r.first(query)
}

// GetByProviderOrderForUpdate 按平台订单定位推广订单并加锁
func (r *GormReferralRepository) GetByProviderOrderForUpdate(provider, providerID, splitKey string) (*models.Referral, error) {
	query, ok := r.providerOrderQuery(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), provider, providerID, splitKey)
	if !ok {
		return nil, nil
	}
	return r.first(query)
}

// ListChildrenForUpdate 查询并锁定子推广订单（续费等）
func (r *GormReferralRepository) ListChildrenForUpdate(parentID uint) ([]models.Referral, error) {
	if parentID == 0 {
		return []models.Referral{}, nil
	}
	var rows []models.Referral
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("parent_id = ?", parentID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Create 创建推广订单
func (r *GormReferralRepository) Create(referral *models.Referral) error {
	return r.db.Create(referral).Error
}

// Update 保存推广订单
func (r *GormReferralRepository) Update(referral *models.Referral) error {
	return r.db.Omit(clause.Associations).Save(referral).Error
}

// List 查询推广订单列表
func (r *GormReferralRepository) List(filter ReferralListFilter) ([]models.Referral, int64, error) {
	query := r.db.Model(&models.Referral{})
	if filter.AffiliateID != 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if referralType := strings.TrimSpace(filter.Type); referralType != "" {
		query = query.Where("type = ?", referralType)
	}
	if provider := strings.TrimSpace(filter.Provider); provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if providerID := strings.TrimSpace(filter.ProviderID); providerID != "" {
		query = query.Where("provider_id = ?", providerID)
	}
	if filter.PayoutID != 0 {
		query = query.Where("payout_id = ?", filter.PayoutID)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Referral
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListUnpaidForUpdate 查询并锁定推广员待结算的推广订单
func (r *GormReferralRepository) ListUnpaidForUpdate(affiliateID uint, currency string) ([]models.Referral, error) {
	if affiliateID == 0 {
		return []models.Referral{}, nil
	}
	query := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("affiliate_id = ? AND status = ? AND payout_id IS NULL", affiliateID, constants.ReferralStatusUnpaid)
	if code := strings.ToUpper(strings.TrimSpace(currency)); code != "" {
		query = query.Where("currency = ?", code)
	}
	var rows []models.Referral
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPaid 批量标记已结算并关联结算流水
func (r *GormReferralRepository) MarkPaid(ids []uint, payoutID, transactionID uint, paidAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Referral{}).
		Where("id IN ? AND status = ?", ids, constants.ReferralStatusUnpaid).
		Updates(map[string]interface{}{
			"status":                constants.ReferralStatusPaid,
			"payout_id":             payoutID,
			"payout_transaction_id": transactionID,
			"paid_at":               paidAt,
			"updated_at":            paidAt,
		}).Error
}

// SumLedger 汇总推广员账本：累计 = unpaid+paid，待结算 = unpaid，有效订单数 = unpaid+paid 条数，访问数 = 全部访问
func (r *GormReferralRepository) SumLedger(affiliateID uint) (LedgerAggregate, error) {
	ledger := LedgerAggregate{
		TotalEarnings:  decimal.Zero,
		UnpaidEarnings: decimal.Zero,
	}
	if affiliateID == 0 {
		return ledger, nil
	}

	var row struct {
		Total     decimal.Decimal `gorm:"column:total"`
		Unpaid    decimal.Decimal `gorm:"column:unpaid"`
		Referrals int64           `gorm:"column:referrals"`
	}
	earned := []string{constants.ReferralStatusUnpaid, constants.ReferralStatusPaid}
	if err := r.db.Model(&models.Referral{}).
		Select(
			"COALESCE(SUM(CASE WHEN status IN ? THEN amount ELSE 0 END), 0) AS total, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS unpaid, "+
				"COUNT(CASE WHEN status IN ? THEN 1 END) AS referrals",
			earned, constants.ReferralStatusUnpaid, earned,
		).
		Where("affiliate_id = ?", affiliateID).
		Scan(&row).Error; err != nil {
		return ledger, err
	}

	var visits int64
	if err := r.db.Model(&models.Visit{}).Where("affiliate_id = ?", affiliateID).Count(&visits).Error; err != nil {
		return ledger, err
	}

	ledger.TotalEarnings = row.Total.Round(2)
	ledger.UnpaidEarnings = row.Unpaid.Round(2)
	ledger.Referrals = row.Referrals
	ledger.Visits = visits
	return ledger, nil
}

func (r *GormReferralRepository) providerOrderQuery(db *gorm.DB, provider, providerID, splitKey string) (*gorm.DB, bool) {
	provider = strings.TrimSpace(provider)
	providerID = strings.TrimSpace(providerID)
	if provider == "" || providerID == "" {
		return nil, false
	}
	return db.Where("provider = ? AND provider_id = ? AND split_key = ?", provider, providerID, strings.TrimSpace(splitKey)), true
}

func (r *GormReferralRepository) first(query *gorm.DB) (*models.Referral, error) {
	var referral models.Referral
	if err := query.First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}
