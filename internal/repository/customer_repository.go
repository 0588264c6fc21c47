package repository

import (
	"errors"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/models"
	"gorm.io/gorm"
)

// CustomerRepository 推广客户数据访问接口
type CustomerRepository interface {
	WithTx(tx *gorm.DB) CustomerRepository

	GetByID(id uint) (*models.Customer, error)
	FindByEmail(email string) (*models.Customer, error)
	FindByUserID(userID uint) (*models.Customer, error)
	Create(customer *models.Customer) error
	Update(customer *models.Customer) error
}

// GormCustomerRepository GORM 推广客户仓储
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository 创建推广客户仓储
func NewCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCustomerRepository) WithTx(tx *gorm.DB) CustomerRepository {
	if tx == nil {
		return r
	}
	return &GormCustomerRepository{db: tx}
}

// GetByID 按ID获取客户
func (r *GormCustomerRepository) GetByID(id uint) (*models.Customer, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.Where("id = ?", id))
}

// FindByEmail 按邮箱获取客户（不区分大小写）
func (r *GormCustomerRepository) FindByEmail(email string) (*models.Customer, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return nil, nil
	}
	return r.first(r.db.Where("email = ?", normalized).Order("id asc"))
}

// FindByUserID 按平台用户ID获取客户
func (r *GormCustomerRepository) FindByUserID(userID uint) (*models.Customer, error) {
	if userID == 0 {
		return nil, nil
	}
	return r.first(r.db.Where("user_id = ?", userID).Order("id asc"))
}

// Create 创建客户
func (r *GormCustomerRepository) Create(customer *models.Customer) error {
	return r.db.Create(customer).Error
}

// Update 保存客户
func (r *GormCustomerRepository) Update(customer *models.Customer) error {
	return r.db.Save(customer).Error
}

func (r *GormCustomerRepository) first(query *gorm.DB) (*models.Customer, error) {
	var customer models.Customer
	if err := query.First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}
