package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayoutInput 创建结算批次输入
type PayoutInput struct {
	AffiliateIDs []uint
	Currency     string
	Note         string
	CreatedBy    string
}

// PayoutService 佣金结算
type PayoutService struct {
	affiliateRepo repository.AffiliateRepository
	referralRepo  repository.ReferralRepository
	payoutRepo    repository.PayoutRepository
	ledger        *AffiliateLedger
	events        *ReferralEventBus
}

// NewPayoutService 创建结算服务
func NewPayoutService(
	affiliateRepo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	payoutRepo repository.PayoutRepository,
	ledger *AffiliateLedger,
	events *ReferralEventBus,
) *PayoutService {
	return &PayoutService{
		affiliateRepo: affiliateRepo,
		referralRepo:  referralRepo,
		payoutRepo:    payoutRepo,
		ledger:        ledger,
		events:        events,
	}
}

// CreatePayout 将推广员的 unpaid 推广订单汇总结算并标记为 paid
func (s *PayoutService) CreatePayout(ctx context.Context, input PayoutInput) (*models.Payout, error) {
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: 币种必须为 3 位 ISO 代码", ErrPayoutInvalid)
	}
	affiliateIDs := normalizeAffiliateIDs(input.AffiliateIDs)
	if len(affiliateIDs) == 0 {
		return nil, fmt.Errorf("%w: 未选择推广员", ErrPayoutInvalid)
	}

	var (
		payout *models.Payout
		events []ReferralEvent
	)
	err := s.affiliateRepo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.affiliateRepo.WithTx(tx)
		referralRepo := s.referralRepo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)

		payout = &models.Payout{
			Status:    constants.PayoutStatusProcessing,
			Currency:  currency,
			Amount:    models.ZeroMoney(),
			Note:      truncateRunes(input.Note, 255),
			CreatedBy: truncateRunes(input.CreatedBy, 64),
		}
		if err := payoutRepo.Create(payout); err != nil {
			return err
		}

		total := decimal.Zero
		var count int64
		for _, affiliateID := range affiliateIDs {
			affiliate, err := affiliateRepo.GetByIDForUpdate(affiliateID)
			if err != nil {
				return err
			}
			if affiliate == nil {
				return fmt.Errorf("%w: %d", ErrAffiliateNotFound, affiliateID)
			}
			rows, err := referralRepo.ListUnpaidForUpdate(affiliateID, currency)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}

			amount := decimal.Zero
			ids := make([]uint, 0, len(rows))
			for _, row := range rows {
				amount = amount.Add(row.Amount.Decimal)
				ids = append(ids, row.ID)
			}
			txn := &models.PayoutTransaction{
				PayoutID:      payout.ID,
				AffiliateID:   affiliateID,
				PaymentEmail:  affiliate.PaymentEmail,
				Amount:        models.NewMoneyFromDecimal(amount),
				ReferralCount: int64(len(rows)),
			}
			if err := payoutRepo.CreateTransaction(txn); err != nil {
				return err
			}
			paidAt := time.Now()
			if err := referralRepo.MarkPaid(ids, payout.ID, txn.ID, paidAt); err != nil {
				return err
			}
			for idx := range rows {
				row := rows[idx]
				payoutID, txnID := payout.ID, txn.ID
				row.Status = constants.ReferralStatusPaid
				row.PayoutID = &payoutID
				row.PayoutTransactionID = &txnID
				row.PaidAt = &paidAt
				events = append(events, newReferralEvent(constants.ReferralEventMarkedPaid, &row, constants.ReferralStatusUnpaid))
			}
			if _, err := s.ledger.RecountWithTx(tx, affiliateID); err != nil {
				return err
			}
			total = total.Add(amount)
			count += int64(len(rows))
		}
		if count == 0 {
			return ErrPayoutEmpty
		}

		payout.Amount = models.NewMoneyFromDecimal(total)
		payout.ReferralCount = count
		payout.Status = constants.PayoutStatusCompleted
		return payoutRepo.Update(payout)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Infow("referral_payout_created",
		"payout_id", payout.ID,
		"currency", payout.Currency,
		"amount", payout.Amount.String(),
		"referral_count", payout.ReferralCount,
	)
	for _, event := range events {
		s.events.Publish(ctx, event)
	}
	return s.payoutRepo.GetByID(payout.ID)
}

// GetPayout 获取结算批次
func (s *PayoutService) GetPayout(id uint) (*models.Payout, error) {
	payout, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrNotFound
	}
	return payout, nil
}

// ListPayouts 查询结算批次
func (s *PayoutService) ListPayouts(filter repository.PayoutListFilter) ([]models.Payout, int64, error) {
	return s.payoutRepo.List(filter)
}

// normalizeAffiliateIDs 去重并升序，固定加锁顺序
func normalizeAffiliateIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
