package service

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/shopspring/decimal"
)

// AffiliateService 推广员管理服务，账本字段只由 AffiliateLedger 写入
type AffiliateService struct {
	repo      repository.AffiliateRepository
	userRepo  repository.UserRepository
	visitRepo repository.VisitRepository
	ledger    *AffiliateLedger
}

// NewAffiliateService 创建推广员管理服务
func NewAffiliateService(
	repo repository.AffiliateRepository,
	userRepo repository.UserRepository,
	visitRepo repository.VisitRepository,
	ledger *AffiliateLedger,
) *AffiliateService {
	return &AffiliateService{
		repo:      repo,
		userRepo:  userRepo,
		visitRepo: visitRepo,
		ledger:    ledger,
	}
}

// RegisterAffiliateInput 注册推广员输入
type RegisterAffiliateInput struct {
	UserID       uint
	PaymentEmail string
	RateType     string
	Rate         *decimal.Decimal
	GroupID      *uint
	Status       string
	Settings     map[string]interface{}
}

// UpdateAffiliateRateInput 调整推广员费率输入
type UpdateAffiliateRateInput struct {
	RateType string
	Rate     *decimal.Decimal
	GroupID  *uint
}

// CreateAffiliateGroupInput 创建推广员分组输入
type CreateAffiliateGroupInput struct {
	Name     string
	Rate     decimal.Decimal
	RateType string
	Status   string
}

// CreateUserInput 创建推广员所属账号输入
type CreateUserInput struct {
	Username    string
	Email       string
	DisplayName string
}

// CreateUser 创建推广员所属账号，用户名即 username 格式推广链接的参数
func (s *AffiliateService) CreateUser(input CreateUserInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || strings.Contains(username, constants.AttributionCookieSeparator) {
		return nil, ErrUserInvalid
	}
	existing, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}
	user := &models.User{
		Username:    username,
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		DisplayName: strings.TrimSpace(input.DisplayName),
		Status:      constants.UserStatusActive,
	}
	if err := s.userRepo.Create(user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// RegisterAffiliate 为已有用户开通推广员
func (s *AffiliateService) RegisterAffiliate(input RegisterAffiliateInput) (*models.Affiliate, error) {
	if input.UserID == 0 {
		return nil, ErrUserNotFound
	}
	user, err := s.userRepo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	existing, err := s.repo.GetByUserID(input.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAffiliateExists
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = constants.AffiliateStatusActive
	}
	if !isValidAffiliateStatus(status) {
		return nil, ErrAffiliateStatusInvalid
	}
	rateType, rate, groupID, err := s.resolveRateConfig(input.RateType, input.Rate, input.GroupID)
	if err != nil {
		return nil, err
	}
	paymentEmail := strings.ToLower(strings.TrimSpace(input.PaymentEmail))
	if paymentEmail == "" {
		paymentEmail = strings.ToLower(strings.TrimSpace(user.Email))
	}

	affiliate := &models.Affiliate{
		UserID:         user.ID,
		GroupID:        groupID,
		Rate:           rate,
		RateType:       rateType,
		PaymentEmail:   paymentEmail,
		Status:         status,
		TotalEarnings:  models.ZeroMoney(),
		UnpaidEarnings: models.ZeroMoney(),
		SettingsJSON:   models.JSON(input.Settings),
	}
	if err := s.repo.Create(affiliate); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrAffiliateExists
		}
		return nil, err
	}
	return s.repo.GetByID(affiliate.ID)
}

// GetAffiliate 获取推广员
func (s *AffiliateService) GetAffiliate(id uint) (*models.Affiliate, error) {
	affiliate, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	return affiliate, nil
}

// ListAffiliates 查询推广员列表
func (s *AffiliateService) ListAffiliates(filter repository.AffiliateListFilter) ([]models.Affiliate, int64, error) {
	return s.repo.List(filter)
}

// ListVisits 查询访问记录
func (s *AffiliateService) ListVisits(filter repository.VisitListFilter) ([]models.Visit, int64, error) {
	return s.visitRepo.List(filter)
}

// UpdateAffiliateStatus 管理端更新推广员状态
func (s *AffiliateService) UpdateAffiliateStatus(id uint, rawStatus string) (*models.Affiliate, error) {
	status := strings.TrimSpace(rawStatus)
	if !isValidAffiliateStatus(status) {
		return nil, ErrAffiliateStatusInvalid
	}
	affiliate, err := s.GetAffiliate(id)
	if err != nil {
		return nil, err
	}
	if affiliate.Status == status {
		return affiliate, nil
	}
	if err := s.repo.UpdateStatus(id, status, time.Now()); err != nil {
		return nil, err
	}
	return s.repo.GetByID(id)
}

// UpdateAffiliateRate 管理端调整推广员费率，只影响之后产生的推广订单
func (s *AffiliateService) UpdateAffiliateRate(id uint, input UpdateAffiliateRateInput) (*models.Affiliate, error) {
	if _, err := s.GetAffiliate(id); err != nil {
		return nil, err
	}
	rateType, rate, groupID, err := s.resolveRateConfig(input.RateType, input.Rate, input.GroupID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRate(id, rate, rateType, groupID, time.Now()); err != nil {
		return nil, err
	}
	return s.repo.GetByID(id)
}

// RecountAffiliate 手动重算推广员账本
func (s *AffiliateService) RecountAffiliate(id uint) (*LedgerSnapshot, error) {
	snapshot, err := s.ledger.RecountEarnings(id)
	if errors.Is(err, ErrAffiliateNotFound) {
		return nil, ErrAffiliateNotFound
	}
	return snapshot, err
}

// CreateGroup 创建推广员分组
func (s *AffiliateService) CreateGroup(input CreateAffiliateGroupInput) (*models.AffiliateGroup, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrAffiliateGroupInvalid
	}
	rateType := strings.TrimSpace(input.RateType)
	if rateType == "" {
		rateType = constants.RateTypePercentage
	}
	if err := validateRate(rateType, &input.Rate); err != nil {
		return nil, err
	}
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = constants.AffiliateGroupStatusActive
	}
	if status != constants.AffiliateGroupStatusActive && status != constants.AffiliateGroupStatusInactive {
		return nil, ErrAffiliateGroupInvalid
	}
	group := &models.AffiliateGroup{
		Name:     name,
		Rate:     models.NewMoneyFromDecimal(input.Rate),
		RateType: rateType,
		Status:   status,
	}
	if err := s.repo.CreateGroup(group); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrAffiliateGroupInvalid
		}
		return nil, err
	}
	return group, nil
}

// resolveRateConfig 校验费率配置，返回写库的 rate_type/rate/group_id
func (s *AffiliateService) resolveRateConfig(rawType string, rate *decimal.Decimal, groupID *uint) (string, *models.Money, *uint, error) {
	rateType := strings.TrimSpace(rawType)
	if rateType == "" {
		rateType = constants.RateTypeDefault
	}
	switch rateType {
	case constants.RateTypeDefault:
		return rateType, nil, nil, nil
	case constants.RateTypeGroup:
		if groupID == nil || *groupID == 0 {
			return "", nil, nil, ErrAffiliateGroupInvalid
		}
		group, err := s.repo.GetGroupByID(*groupID)
		if err != nil {
			return "", nil, nil, err
		}
		if group == nil {
			return "", nil, nil, ErrAffiliateGroupInvalid
		}
		id := group.ID
		return rateType, nil, &id, nil
	case constants.RateTypePercentage, constants.RateTypeFlat:
		if rate == nil {
			return "", nil, nil, ErrAffiliateRateInvalid
		}
		if err := validateRate(rateType, rate); err != nil {
			return "", nil, nil, err
		}
		return rateType, models.NewMoneyPtr(*rate), nil, nil
	default:
		return "", nil, nil, ErrAffiliateRateInvalid
	}
}

func validateRate(rateType string, rate *decimal.Decimal) error {
	if rate == nil || rate.IsNegative() {
		return ErrAffiliateRateInvalid
	}
	switch rateType {
	case constants.RateTypePercentage:
		if rate.GreaterThan(hundred) {
			return ErrAffiliateRateInvalid
		}
	case constants.RateTypeFlat:
	default:
		return ErrAffiliateRateInvalid
	}
	return nil
}

func isValidAffiliateStatus(status string) bool {
	switch status {
	case constants.AffiliateStatusActive, constants.AffiliateStatusPending, constants.AffiliateStatusCancelled, constants.AffiliateStatusRejected:
		return true
	default:
		return false
	}
}
