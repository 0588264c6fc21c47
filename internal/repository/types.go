package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// AffiliateListFilter 查询推广员列表的过滤条件
type AffiliateListFilter struct {
	Page     int
	PageSize int
	Status   string
	GroupID  uint
	Keyword  string
}

// ReferralListFilter 查询推广订单列表的过滤条件
type ReferralListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	Status      string
	Type        string
	Provider    string
	ProviderID  string
	PayoutID    uint
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// VisitListFilter 查询访问记录的过滤条件
type VisitListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	Converted   *bool
}

// PayoutListFilter 查询结算批次的过滤条件
type PayoutListFilter struct {
	Page     int
	PageSize int
	Status   string
}

// LedgerAggregate 推广员账本汇总（由推广订单与访问记录实时计算）
type LedgerAggregate struct {
	TotalEarnings  decimal.Decimal
	UnpaidEarnings decimal.Decimal
	Referrals      int64
	Visits         int64
}
