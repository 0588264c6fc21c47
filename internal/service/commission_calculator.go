package service

import (
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CommissionRate 生效费率
type CommissionRate struct {
	Rate decimal.Decimal
	Type string
}

// CommissionResult 佣金计算结果
type CommissionResult struct {
	Amount     decimal.Decimal
	OrderTotal decimal.Decimal
	BaseAmount decimal.Decimal
	RuleAmount decimal.Decimal
	Products   models.ReferralProducts
}

// ZeroCommissionPolicy 判断零佣金时是否仍记录推广订单
type ZeroCommissionPolicy func(referralType string, order *CanonicalOrder) bool

// DefaultZeroCommissionPolicy 销售与续费类零佣金不记录，其余类型照常记录
func DefaultZeroCommissionPolicy(referralType string, _ *CanonicalOrder) bool {
	switch referralType {
	case constants.ReferralTypeSale, constants.ReferralTypeRecurringSale:
		return false
	default:
		return true
	}
}

// ResolveBaseRate 按推广员费率类型解析基础费率，配置缺失时按 0 处理
func ResolveBaseRate(affiliate *models.Affiliate, setting ReferralSetting) CommissionRate {
	zero := CommissionRate{Rate: decimal.Zero, Type: constants.RateTypePercentage}
	if affiliate == nil {
		return zero
	}
	switch strings.TrimSpace(affiliate.RateType) {
	case constants.RateTypeGroup:
		group := affiliate.Group
		if group == nil || group.Status != constants.AffiliateGroupStatusActive {
			return zero
		}
		return CommissionRate{Rate: group.Rate.Decimal, Type: normalizeCommissionRateType(group.RateType)}
	case constants.RateTypeDefault, "":
		return CommissionRate{Rate: decimal.NewFromFloat(setting.Rate), Type: normalizeCommissionRateType(setting.RateType)}
	case constants.RateTypePercentage:
		return CommissionRate{Rate: models.DecimalOrZero(affiliate.Rate), Type: constants.RateTypePercentage}
	default:
		return CommissionRate{Rate: models.DecimalOrZero(affiliate.Rate), Type: constants.RateTypeFlat}
	}
}

// ApplyRate 按费率计算佣金：百分比按金额缩放，固定金额原样返回，结果不小于 0
func ApplyRate(amount decimal.Decimal, rate CommissionRate) decimal.Decimal {
	var commission decimal.Decimal
	if rate.Type == constants.RateTypePercentage {
		commission = amount.Mul(rate.Rate).Div(hundred)
	} else {
		commission = rate.Rate
	}
	if commission.IsNegative() {
		return decimal.Zero
	}
	return commission.Round(2)
}

// CalculateCommission 计算订单佣金
// 连接器开启自定义费率时，商品先按商品规则、再按分类规则匹配，命中一次即不再参与后续规则；
// 未命中部分按基础费率计算，剩余金额不大于 0 时跳过基础费率。
func CalculateCommission(affiliate *models.Affiliate, order *CanonicalOrder, setting ReferralSetting, connector ConnectorSetting) CommissionResult {
	result := CommissionResult{
		Amount:     decimal.Zero,
		OrderTotal: decimal.Zero,
		BaseAmount: decimal.Zero,
		RuleAmount: decimal.Zero,
		Products:   models.ReferralProducts{},
	}
	if order == nil {
		return result
	}
	result.OrderTotal = CalculateOrderTotal(order.OrderAmounts, setting)
	baseRate := ResolveBaseRate(affiliate, setting)

	itemTotals := make([]decimal.Decimal, len(order.Items))
	for idx, item := range order.Items {
		itemTotals[idx] = ItemOrderTotal(item, setting)
	}

	matched := map[int]ConnectorRateRule{}
	if connector.CustomAffiliateRate && len(connector.RateRules) > 0 {
		matched = matchRateRules(order.Items, connector.RateRules)
	}

	matchedTotal := decimal.Zero
	for idx, item := range order.Items {
		product := models.ReferralProduct{
			ItemID:      item.ItemID,
			Title:       item.Title,
			CategoryIDs: append([]string(nil), item.CategoryIDs...),
			Quantity:    item.Quantity,
			Total:       models.NewMoneyFromDecimal(itemTotals[idx]),
			Commission:  models.ZeroMoney(),
		}
		if rule, ok := matched[idx]; ok {
			commission := ApplyRate(itemTotals[idx], CommissionRate{
				Rate: decimal.NewFromFloat(rule.Rate),
				Type: normalizeCommissionRateType(rule.RateType),
			})
			product.Commission = models.NewMoneyFromDecimal(commission)
			product.RuleMatched = true
			matchedTotal = matchedTotal.Add(itemTotals[idx])
			result.RuleAmount = result.RuleAmount.Add(commission)
		}
		result.Products = append(result.Products, product)
	}

	if len(matched) == 0 {
		result.BaseAmount = ApplyRate(result.OrderTotal, baseRate)
	} else if remainder := result.OrderTotal.Sub(matchedTotal); remainder.IsPositive() {
		result.BaseAmount = ApplyRate(remainder, baseRate)
	}

	amount := result.RuleAmount.Add(result.BaseAmount)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	result.Amount = amount.Round(2)
	return result
}

// matchRateRules 返回商品下标到命中规则的映射
func matchRateRules(items []CanonicalOrderItem, rules []ConnectorRateRule) map[int]ConnectorRateRule {
	matched := make(map[int]ConnectorRateRule, len(items))
	for _, target := range []string{constants.RateRuleTargetProduct, constants.RateRuleTargetCategory} {
		for _, rule := range rules {
			if rule.Target != target {
				continue
			}
			ids := make(map[string]struct{}, len(rule.IDs))
			for _, id := range rule.IDs {
				ids[id] = struct{}{}
			}
			for idx, item := range items {
				if _, ok := matched[idx]; ok {
					continue
				}
				if itemMatchesRule(item, target, ids) {
					matched[idx] = rule
				}
			}
		}
	}
	return matched
}

func itemMatchesRule(item CanonicalOrderItem, target string, ids map[string]struct{}) bool {
	if target == constants.RateRuleTargetProduct {
		_, ok := ids[item.ItemID]
		return ok && item.ItemID != ""
	}
	for _, categoryID := range item.CategoryIDs {
		if _, ok := ids[categoryID]; ok {
			return true
		}
	}
	return false
}
