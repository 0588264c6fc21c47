package service

import (
	"context"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const ledgerRecountBatchSize = 100

// LedgerSnapshot 推广员账本快照
type LedgerSnapshot struct {
	AffiliateID    uint            `json:"affiliate_id"`
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
	UnpaidEarnings decimal.Decimal `json:"unpaid_earnings"`
	Referrals      int64           `json:"referrals"`
	Visits         int64           `json:"visits"`
}

// AffiliateLedger 推广员账本，汇总字段始终由推广订单全量重算
type AffiliateLedger struct {
	affiliateRepo repository.AffiliateRepository
	referralRepo  repository.ReferralRepository
}

// NewAffiliateLedger 创建账本服务
func NewAffiliateLedger(affiliateRepo repository.AffiliateRepository, referralRepo repository.ReferralRepository) *AffiliateLedger {
	return &AffiliateLedger{
		affiliateRepo: affiliateRepo,
		referralRepo:  referralRepo,
	}
}

// RecountEarnings 在独立事务中锁定推广员并重算账本
func (l *AffiliateLedger) RecountEarnings(affiliateID uint) (*LedgerSnapshot, error) {
	if affiliateID == 0 {
		return nil, ErrAffiliateNotFound
	}
	var snapshot *LedgerSnapshot
	err := l.affiliateRepo.Transaction(func(tx *gorm.DB) error {
		affiliate, err := l.affiliateRepo.WithTx(tx).GetByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}
		snapshot, err = l.RecountWithTx(tx, affiliateID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// RecountWithTx 在调用方事务内重算账本，调用方需先锁定推广员行
func (l *AffiliateLedger) RecountWithTx(tx *gorm.DB, affiliateID uint) (*LedgerSnapshot, error) {
	aggregate, err := l.referralRepo.WithTx(tx).SumLedger(affiliateID)
	if err != nil {
		return nil, err
	}
	if err := l.affiliateRepo.WithTx(tx).UpdateLedger(affiliateID, aggregate, time.Now()); err != nil {
		return nil, err
	}
	return &LedgerSnapshot{
		AffiliateID:    affiliateID,
		TotalEarnings:  aggregate.TotalEarnings,
		UnpaidEarnings: aggregate.UnpaidEarnings,
		Referrals:      aggregate.Referrals,
		Visits:         aggregate.Visits,
	}, nil
}

// RecountAll 分批重算全部推广员账本，返回成功数量
func (l *AffiliateLedger) RecountAll(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var afterID uint
	recounted := 0
	for {
		if err := ctx.Err(); err != nil {
			return recounted, err
		}
		ids, err := l.affiliateRepo.ListIDsAfter(afterID, ledgerRecountBatchSize)
		if err != nil {
			return recounted, err
		}
		if len(ids) == 0 {
			return recounted, nil
		}
		for _, id := range ids {
			afterID = id
			if _, err := l.RecountEarnings(id); err != nil {
				logger.Warnw("affiliate_ledger_recount_failed", "affiliate_id", id, "error", err)
				continue
			}
			recounted++
		}
	}
}
