package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var errReferralCreateRaced = errors.New("referral create raced")

// ReferralOutcome 下单事件处理结果
type ReferralOutcome struct {
	Outcome  string           `json:"outcome"`
	Referral *models.Referral `json:"referral,omitempty"`
}

// RefundInput 退款事件，RefundedTotal 为累计退款（最小货币单位）
type RefundInput struct {
	Provider      string    `json:"provider"`
	ProviderID    string    `json:"provider_id"`
	RefundedTotal int64     `json:"refunded_total"`
	FullRefund    bool      `json:"full_refund"`
	Order         *RawOrder `json:"order,omitempty"`
}

// ReferralServiceOption 推广订单服务可选项
type ReferralServiceOption func(*ReferralService)

// WithZeroCommissionPolicy 替换零佣金记录策略
func WithZeroCommissionPolicy(policy ZeroCommissionPolicy) ReferralServiceOption {
	return func(s *ReferralService) {
		if policy != nil {
			s.zeroCommission = policy
		}
	}
}

// ReferralService 推广订单生命周期
type ReferralService struct {
	affiliateRepo  repository.AffiliateRepository
	referralRepo   repository.ReferralRepository
	visitRepo      repository.VisitRepository
	customerRepo   repository.CustomerRepository
	resolver       *AttributionResolver
	ledger         *AffiliateLedger
	settings       ReferralSettingReader
	events         *ReferralEventBus
	zeroCommission ZeroCommissionPolicy
}

// NewReferralService 创建推广订单服务
func NewReferralService(
	affiliateRepo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	visitRepo repository.VisitRepository,
	customerRepo repository.CustomerRepository,
	resolver *AttributionResolver,
	ledger *AffiliateLedger,
	settings ReferralSettingReader,
	events *ReferralEventBus,
	opts ...ReferralServiceOption,
) *ReferralService {
	svc := &ReferralService{
		affiliateRepo:  affiliateRepo,
		referralRepo:   referralRepo,
		visitRepo:      visitRepo,
		customerRepo:   customerRepo,
		resolver:       resolver,
		ledger:         ledger,
		settings:       settings,
		events:         events,
		zeroCommission: DefaultZeroCommissionPolicy,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// GetReferral 获取推广订单
func (s *ReferralService) GetReferral(id uint) (*models.Referral, error) {
	referral, err := s.referralRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, ErrReferralNotFound
	}
	return referral, nil
}

// ListReferrals 查询推广订单
func (s *ReferralService) ListReferrals(filter repository.ReferralListFilter) ([]models.Referral, int64, error) {
	return s.referralRepo.List(filter)
}

// HandleOrderCreated 处理平台新订单，重复事件返回已有推广订单
func (s *ReferralService) HandleOrderCreated(ctx context.Context, raw RawOrder) (*ReferralOutcome, error) {
	order, err := NormalizeOrder(raw)
	if err != nil {
		return nil, err
	}
	setting, connector, err := s.loadSettings(order.Provider)
	if err != nil {
		return nil, err
	}

	// 已入库的订单优先返回，连接器关闭后重放仍为 existing
	existing, err := s.referralRepo.GetByProviderOrder(order.Provider, order.ProviderID, order.SplitKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeExisting, Referral: existing}, nil
	}
	if !connector.Enabled {
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeDisabled}, nil
	}

	if order.SplitKey != "" {
		parent, err := s.referralRepo.GetByProviderOrder(order.Provider, order.ProviderID, "")
		if err != nil {
			return nil, err
		}
		if parent != nil {
			return s.createChildReferral(ctx, order, parent, setting, connector)
		}
	}

	attribution, reason, err := s.resolver.resolveWithSetting(VisitorContext{
		Cookie:         raw.AttributionCookie,
		CustomerEmail:  order.Customer.Email,
		CustomerUserID: order.Customer.UserID,
	}, setting)
	if err != nil {
		return nil, err
	}
	if attribution == nil {
		logger.FromContext(ctx).Infow("referral_attribution_miss",
			"provider", order.Provider,
			"provider_id", order.ProviderID,
			"reason", reason,
		)
		return &ReferralOutcome{Outcome: reason}, nil
	}

	commission := CalculateCommission(attribution.Affiliate, order, setting, connector)
	if !commission.Amount.IsPositive() && !s.zeroCommission(order.Type, order) {
		logger.FromContext(ctx).Infow("referral_zero_commission_skipped",
			"provider", order.Provider,
			"provider_id", order.ProviderID,
			"affiliate_id", attribution.Affiliate.ID,
		)
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeZeroCommission}, nil
	}

	referral := buildReferral(order, attribution.Affiliate.ID, commission)
	if attribution.Visit != nil {
		visitID := attribution.Visit.ID
		referral.VisitID = &visitID
	}
	return s.createReferral(ctx, order, referral)
}

// HandleRenewal 订阅续费：按原始推广订单的推广员生成子推广订单
func (s *ReferralService) HandleRenewal(ctx context.Context, raw RawOrder) (*ReferralOutcome, error) {
	order, err := NormalizeOrder(raw)
	if err != nil {
		return nil, err
	}
	if order.ParentProviderID == "" {
		return nil, fmt.Errorf("%w: 续费订单缺少 parent_provider_id", ErrOrderInvalid)
	}
	setting, connector, err := s.loadSettings(order.Provider)
	if err != nil {
		return nil, err
	}
	if !connector.Enabled {
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeDisabled}, nil
	}
	if !setting.RecurringEnabled {
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeRecurringOff}, nil
	}

	existing, err := s.referralRepo.GetByProviderOrder(order.Provider, order.ProviderID, order.SplitKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeExisting, Referral: existing}, nil
	}
	parent, err := s.referralRepo.GetByProviderOrder(order.Provider, order.ParentProviderID, "")
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrRenewalParentNotFound
	}
	order.Type = constants.ReferralTypeRecurringSale
	return s.createChildReferral(ctx, order, parent, setting, connector)
}

func (s *ReferralService) createChildReferral(ctx context.Context, order *CanonicalOrder, parent *models.Referral, setting ReferralSetting, connector ConnectorSetting) (*ReferralOutcome, error) {
	if parent.Status == constants.ReferralStatusRejected || parent.Status == constants.ReferralStatusCancelled {
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeNoAttribution}, nil
	}
	affiliate, err := s.affiliateRepo.GetByID(parent.AffiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil || affiliate.Status != constants.AffiliateStatusActive {
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeNoAttribution}, nil
	}

	commission := CalculateCommission(affiliate, order, setting, connector)
	if !commission.Amount.IsPositive() && !s.zeroCommission(order.Type, order) {
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeZeroCommission}, nil
	}
	referral := buildReferral(order, affiliate.ID, commission)
	parentID := parent.ID
	referral.ParentID = &parentID
	referral.CustomerID = parent.CustomerID
	return s.createReferral(ctx, order, referral)
}

// createReferral 锁定推广员后写入推广订单，唯一键冲突视为重复事件
func (s *ReferralService) createReferral(ctx context.Context, order *CanonicalOrder, referral *models.Referral) (*ReferralOutcome, error) {
	err := s.withAffiliateLock(ctx, referral.AffiliateID, func(tx *gorm.DB, referralRepo repository.ReferralRepository) ([]ReferralEvent, error) {
		existing, err := referralRepo.GetByProviderOrderForUpdate(referral.Provider, referral.ProviderID, referral.SplitKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errReferralCreateRaced
		}
		if referral.CustomerID == nil {
			customer, err := upsertCustomer(s.customerRepo.WithTx(tx), order.Customer, referral.AffiliateID)
			if err != nil {
				return nil, err
			}
			if customer != nil {
				customerID := customer.ID
				referral.CustomerID = &customerID
			}
		}
		if err := referralRepo.Create(referral); err != nil {
			if repository.IsUniqueViolation(err) {
				return nil, errReferralCreateRaced
			}
			return nil, err
		}
		if referral.VisitID != nil {
			if err := s.visitRepo.WithTx(tx).AttachReferral(*referral.VisitID, referral.ID); err != nil {
				return nil, err
			}
		}
		return []ReferralEvent{newReferralEvent(constants.ReferralEventCreated, referral, "")}, nil
	})
	if errors.Is(err, errReferralCreateRaced) {
		existing, fetchErr := s.referralRepo.GetByProviderOrder(referral.Provider, referral.ProviderID, referral.SplitKey)
		if fetchErr != nil {
			return nil, fetchErr
		}
		if existing == nil {
			return nil, err
		}
		return &ReferralOutcome{Outcome: constants.ReferralOutcomeExisting, Referral: existing}, nil
	}
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Infow("referral_created",
		"referral_id", referral.ID,
		"affiliate_id", referral.AffiliateID,
		"provider", referral.Provider,
		"provider_id", referral.ProviderID,
		"status", referral.Status,
		"amount", referral.Amount.String(),
	)
	return &ReferralOutcome{Outcome: constants.ReferralOutcomeCreated, Referral: referral}, nil
}

// HandleOrderPaid 平台订单已支付：pending 推广订单及同一订单的拆分子订单转为 unpaid
func (s *ReferralService) HandleOrderPaid(ctx context.Context, provider, providerID string) (*models.Referral, error) {
	referral, err := s.findTopLevel(provider, providerID)
	if err != nil || referral == nil {
		return nil, err
	}
	var updated *models.Referral
	err = s.withAffiliateLock(ctx, referral.AffiliateID, func(tx *gorm.DB, referralRepo repository.ReferralRepository) ([]ReferralEvent, error) {
		locked, err := referralRepo.GetByIDForUpdate(referral.ID)
		if err != nil {
			return nil, err
		}
		if locked == nil {
			return nil, ErrReferralNotFound
		}
		updated = locked
		targets := []*models.Referral{locked}
		children, err := referralRepo.ListChildrenForUpdate(locked.ID)
		if err != nil {
			return nil, err
		}
		for idx := range children {
			// 续费子订单有各自的支付事件
			if children[idx].ProviderID != locked.ProviderID {
				continue
			}
			targets = append(targets, &children[idx])
		}

		events := make([]ReferralEvent, 0, len(targets))
		for _, target := range targets {
			if target.Status != constants.ReferralStatusPending {
				continue
			}
			target.Status = constants.ReferralStatusUnpaid
			if err := referralRepo.Update(target); err != nil {
				return nil, err
			}
			events = append(events, newReferralEvent(constants.ReferralEventMarkedUnpaid, target, constants.ReferralStatusPending))
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// HandlePaymentStatusChanged 按平台订单状态分发生命周期事件，未知状态忽略
func (s *ReferralService) HandlePaymentStatusChanged(ctx context.Context, provider, providerID, status string) (*models.Referral, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case constants.PlatformOrderStatusPaid, constants.PlatformOrderStatusCompleted, constants.PlatformOrderStatusProcessing:
		return s.HandleOrderPaid(ctx, provider, providerID)
	case constants.PlatformOrderStatusRefunded:
		return s.HandleOrderRefunded(ctx, RefundInput{Provider: provider, ProviderID: providerID, FullRefund: true})
	case constants.PlatformOrderStatusCancelled:
		return s.RejectByOrder(ctx, provider, providerID, constants.ReferralRejectReasonCancelled)
	case constants.PlatformOrderStatusFailed:
		return s.RejectByOrder(ctx, provider, providerID, constants.ReferralRejectReasonFailed)
	default:
		logger.FromContext(ctx).Debugw("referral_status_change_ignored", "provider", provider, "provider_id", providerID, "status", status)
		return nil, nil
	}
}

// HandleOrderRefunded 处理退款：全额退款驳回并级联子订单，部分退款按比例缩减 unpaid 佣金
func (s *ReferralService) HandleOrderRefunded(ctx context.Context, input RefundInput) (*models.Referral, error) {
	if input.RefundedTotal < 0 {
		return nil, fmt.Errorf("%w: 退款金额不能为负数", ErrOrderInvalid)
	}
	referral, err := s.findTopLevel(input.Provider, input.ProviderID)
	if err != nil || referral == nil {
		return nil, err
	}

	var basis *decimal.Decimal
	refunded := ToMajorUnits(input.RefundedTotal, referral.Currency)
	if input.Order != nil {
		order, err := NormalizeOrder(*input.Order)
		if err != nil {
			return nil, err
		}
		setting, err := s.settings.GetReferralSetting()
		if err != nil {
			return nil, err
		}
		total := CalculateOrderTotal(order.OrderAmounts, setting)
		basis = &total
		if input.RefundedTotal == 0 {
			refunded = order.RefundedTotal
		}
	}

	var updated *models.Referral
	err = s.withAffiliateLock(ctx, referral.AffiliateID, func(tx *gorm.DB, referralRepo repository.ReferralRepository) ([]ReferralEvent, error) {
		locked, err := referralRepo.GetByIDForUpdate(referral.ID)
		if err != nil {
			return nil, err
		}
		if locked == nil {
			return nil, ErrReferralNotFound
		}
		updated = locked
		if locked.Status != constants.ReferralStatusPending && locked.Status != constants.ReferralStatusUnpaid {
			logger.FromContext(ctx).Infow("referral_refund_ignored_terminal", "referral_id", locked.ID, "status", locked.Status)
			return nil, nil
		}

		original := locked.OrderTotal.Decimal.Add(locked.RefundedTotal.Decimal)
		if basis != nil {
			original = *basis
		}
		newTotal := original.Sub(refunded)
		if input.FullRefund || !newTotal.IsPositive() {
			locked.RefundedTotal = models.NewMoneyFromDecimal(decimal.Max(refunded, original))
			return rejectWithChildren(referralRepo, locked, constants.ReferralRejectReasonRefunded)
		}
		if locked.Status != constants.ReferralStatusUnpaid {
			return nil, nil
		}
		return rescaleCommission(referralRepo, locked, newTotal, refunded)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RejectReferral 管理员驳回，已驳回为幂等操作，已结算不可驳回
func (s *ReferralService) RejectReferral(ctx context.Context, referralID uint, reason string) (*models.Referral, error) {
	referral, err := s.referralRepo.GetByID(referralID)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, ErrReferralNotFound
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = constants.ReferralRejectReasonAdmin
	}

	var updated *models.Referral
	err = s.withAffiliateLock(ctx, referral.AffiliateID, func(tx *gorm.DB, referralRepo repository.ReferralRepository) ([]ReferralEvent, error) {
		locked, err := referralRepo.GetByIDForUpdate(referral.ID)
		if err != nil {
			return nil, err
		}
		if locked == nil {
			return nil, ErrReferralNotFound
		}
		updated = locked
		switch locked.Status {
		case constants.ReferralStatusRejected, constants.ReferralStatusCancelled:
			return nil, nil
		case constants.ReferralStatusPaid:
			return nil, ErrReferralStatusInvalid
		}
		event, err := rejectReferral(referralRepo, locked, reason)
		if err != nil {
			return nil, err
		}
		return []ReferralEvent{event}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RejectByOrder 平台取消或支付失败时驳回推广订单及其子订单
func (s *ReferralService) RejectByOrder(ctx context.Context, provider, providerID, reason string) (*models.Referral, error) {
	referral, err := s.findTopLevel(provider, providerID)
	if err != nil || referral == nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = constants.ReferralRejectReasonCancelled
	}
	var updated *models.Referral
	err = s.withAffiliateLock(ctx, referral.AffiliateID, func(tx *gorm.DB, referralRepo repository.ReferralRepository) ([]ReferralEvent, error) {
		locked, err := referralRepo.GetByIDForUpdate(referral.ID)
		if err != nil {
			return nil, err
		}
		if locked == nil {
			return nil, ErrReferralNotFound
		}
		updated = locked
		if locked.Status != constants.ReferralStatusPending && locked.Status != constants.ReferralStatusUnpaid {
			return nil, nil
		}
		return rejectWithChildren(referralRepo, locked, reason)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// withAffiliateLock 锁定推广员行后执行变更，有变更时重算账本，提交后发布事件
func (s *ReferralService) withAffiliateLock(ctx context.Context, affiliateID uint, fn func(tx *gorm.DB, referralRepo repository.ReferralRepository) ([]ReferralEvent, error)) error {
	var events []ReferralEvent
	err := s.affiliateRepo.Transaction(func(tx *gorm.DB) error {
		affiliate, err := s.affiliateRepo.WithTx(tx).GetByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}
		events, err = fn(tx, s.referralRepo.WithTx(tx))
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		_, err = s.ledger.RecountWithTx(tx, affiliateID)
		return err
	})
	if err != nil {
		return err
	}
	for _, event := range events {
		s.events.Publish(ctx, event)
	}
	return nil
}

func (s *ReferralService) findTopLevel(provider, providerID string) (*models.Referral, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	providerID = strings.TrimSpace(providerID)
	if provider == "" || providerID == "" {
		return nil, fmt.Errorf("%w: provider 与 provider_id 不能为空", ErrOrderInvalid)
	}
	return s.referralRepo.GetByProviderOrder(provider, providerID, "")
}

func (s *ReferralService) loadSettings(provider string) (ReferralSetting, ConnectorSetting, error) {
	setting, err := s.settings.GetReferralSetting()
	if err != nil {
		return setting, ConnectorSetting{}, err
	}
	connector, err := s.settings.GetConnectorSetting(provider)
	if err != nil {
		return setting, connector, err
	}
	return setting, connector, nil
}

func buildReferral(order *CanonicalOrder, affiliateID uint, commission CommissionResult) *models.Referral {
	status := constants.ReferralStatusPending
	if IsPaidStatus(order.Status) {
		status = constants.ReferralStatusUnpaid
	}
	description := order.Description
	if description == "" {
		description = fmt.Sprintf("%s order #%s", order.Provider, order.ProviderID)
	}
	return &models.Referral{
		AffiliateID:   affiliateID,
		Description:   truncateRunes(description, 255),
		Status:        status,
		Amount:        models.NewMoneyFromDecimal(commission.Amount),
		OrderTotal:    models.NewMoneyFromDecimal(commission.OrderTotal),
		RefundedTotal: models.NewMoneyFromDecimal(order.RefundedTotal),
		Currency:      order.Currency,
		Type:          order.Type,
		Provider:      order.Provider,
		ProviderID:    order.ProviderID,
		SplitKey:      order.SplitKey,
		ProviderSubID: order.ProviderSubID,
		Products:      commission.Products,
	}
}

// rejectWithChildren 驳回推广订单并级联驳回未结算的子订单
func rejectWithChildren(referralRepo repository.ReferralRepository, referral *models.Referral, reason string) ([]ReferralEvent, error) {
	event, err := rejectReferral(referralRepo, referral, reason)
	if err != nil {
		return nil, err
	}
	events := []ReferralEvent{event}
	children, err := referralRepo.ListChildrenForUpdate(referral.ID)
	if err != nil {
		return nil, err
	}
	for idx := range children {
		child := &children[idx]
		if child.Status != constants.ReferralStatusPending && child.Status != constants.ReferralStatusUnpaid {
			continue
		}
		childEvent, err := rejectReferral(referralRepo, child, reason)
		if err != nil {
			return nil, err
		}
		events = append(events, childEvent)
	}
	return events, nil
}

func rejectReferral(referralRepo repository.ReferralRepository, referral *models.Referral, reason string) (ReferralEvent, error) {
	previous := referral.Status
	referral.Status = constants.ReferralStatusRejected
	referral.RejectReason = truncateRunes(reason, 255)
	if err := referralRepo.Update(referral); err != nil {
		return ReferralEvent{}, err
	}
	return newReferralEvent(constants.ReferralEventMarkedRejected, referral, previous), nil
}

// rescaleCommission 部分退款按订单金额缩减比例重算佣金
func rescaleCommission(referralRepo repository.ReferralRepository, referral *models.Referral, newTotal, refunded decimal.Decimal) ([]ReferralEvent, error) {
	oldTotal := referral.OrderTotal.Decimal
	if !oldTotal.IsPositive() || newTotal.GreaterThanOrEqual(oldTotal) {
		return nil, nil
	}
	ratio := newTotal.Div(oldTotal)
	amount := referral.Amount.Decimal.Mul(ratio).Round(2)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	referral.Amount = models.NewMoneyFromDecimal(amount)
	referral.OrderTotal = models.NewMoneyFromDecimal(decimal.Max(newTotal, decimal.Zero))
	referral.RefundedTotal = models.NewMoneyFromDecimal(refunded)
	if err := referralRepo.Update(referral); err != nil {
		return nil, err
	}
	return []ReferralEvent{newReferralEvent(constants.ReferralEventCommissionUpdated, referral, referral.Status)}, nil
}

// upsertCustomer 按 user_id 或邮箱合并客户，by_affiliate_id 仅首次写入
func upsertCustomer(repo repository.CustomerRepository, input RawCustomer, affiliateID uint) (*models.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if input.UserID == 0 && email == "" {
		return nil, nil
	}
	customer, err := findCustomer(repo, input.UserID, email)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if customer == nil {
		customer = &models.Customer{CreatedAt: now}
	}
	if input.UserID != 0 {
		userID := input.UserID
		customer.UserID = &userID
	}
	if email != "" && email != customer.Email {
		owner, err := repo.FindByEmail(email)
		if err != nil {
			return nil, err
		}
		// 邮箱已属于其他客户时保留原邮箱
		if owner == nil || owner.ID == customer.ID {
			customer.Email = email
		}
	}
	customer.FirstName = truncateRunes(input.FirstName, 100)
	customer.LastName = truncateRunes(input.LastName, 100)
	customer.IP = truncateRunes(input.IP, 64)
	customer.UpdatedAt = now
	if customer.ByAffiliateID == nil && affiliateID != 0 {
		byAffiliateID := affiliateID
		customer.ByAffiliateID = &byAffiliateID
	}

	if customer.ID == 0 {
		if err := repo.Create(customer); err != nil {
			return nil, err
		}
		return customer, nil
	}
	if err := repo.Update(customer); err != nil {
		return nil, err
	}
	return customer, nil
}
