package service

import (
	"fmt"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/constants"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies 最小货币单位即主单位的币种
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// RawOrderItem 平台订单行，金额为最小货币单位
type RawOrderItem struct {
	ItemID      string   `json:"item_id"`
	Title       string   `json:"title"`
	CategoryIDs []string `json:"category_ids"`
	Quantity    int      `json:"quantity"`
	Subtotal    int64    `json:"subtotal"`
	Tax         int64    `json:"tax"`
	Discount    int64    `json:"discount"`
}

// RawCustomer 平台下单客户
type RawCustomer struct {
	UserID    uint   `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IP        string `json:"ip"`
}

// RawOrder 连接器提交的平台订单，金额为最小货币单位
type RawOrder struct {
	Provider          string         `json:"provider"`
	ProviderID        string         `json:"provider_id"`
	ProviderSubID     string         `json:"provider_sub_id"`
	ParentProviderID  string         `json:"parent_provider_id"`
	SplitKey          string         `json:"split_key"`
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	Type              string         `json:"type"`
	Description       string         `json:"description"`
	Subtotal          int64          `json:"subtotal"`
	Tax               int64          `json:"tax"`
	Discount          int64          `json:"discount"`
	Shipping          int64          `json:"shipping"`
	RefundedTotal     int64          `json:"refunded_total"`
	Items             []RawOrderItem `json:"items"`
	Customer          RawCustomer    `json:"customer"`
	AttributionCookie string         `json:"attribution_cookie"`
}

// OrderAmounts 订单金额拆分（主货币单位）
type OrderAmounts struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
}

// CanonicalOrderItem 归一化后的订单行
type CanonicalOrderItem struct {
	OrderAmounts
	ItemID      string
	Title       string
	CategoryIDs []string
	Quantity    int
}

// CanonicalOrder 归一化后的订单
type CanonicalOrder struct {
	OrderAmounts
	Provider         string
	ProviderID       string
	ProviderSubID    string
	ParentProviderID string
	SplitKey         string
	Currency         string
	Status           string
	Type             string
	Description      string
	RefundedTotal    decimal.Decimal
	Items            []CanonicalOrderItem
	Customer         RawCustomer
}

// IsZeroDecimalCurrency 判断是否为零小数位币种
func IsZeroDecimalCurrency(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// ToMajorUnits 最小货币单位转主单位
func ToMajorUnits(minor int64, currency string) decimal.Decimal {
	amount := decimal.NewFromInt(minor)
	if IsZeroDecimalCurrency(currency) {
		return amount
	}
	return amount.Shift(-2)
}

// NormalizeOrder 将平台订单转换为统一金额结构
func NormalizeOrder(raw RawOrder) (*CanonicalOrder, error) {
	provider := strings.ToLower(strings.TrimSpace(raw.Provider))
	providerID := strings.TrimSpace(raw.ProviderID)
	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if provider == "" || providerID == "" {
		return nil, fmt.Errorf("%w: provider 与 provider_id 不能为空", ErrOrderInvalid)
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: 币种必须为 3 位 ISO 代码", ErrOrderInvalid)
	}
	if raw.Subtotal < 0 || raw.Tax < 0 || raw.Discount < 0 || raw.Shipping < 0 || raw.RefundedTotal < 0 {
		return nil, fmt.Errorf("%w: 金额不能为负数", ErrOrderInvalid)
	}

	order := &CanonicalOrder{
		OrderAmounts: OrderAmounts{
			Subtotal: ToMajorUnits(raw.Subtotal, currency),
			Tax:      ToMajorUnits(raw.Tax, currency),
			Discount: ToMajorUnits(raw.Discount, currency),
			Shipping: ToMajorUnits(raw.Shipping, currency),
		},
		Provider:         provider,
		ProviderID:       providerID,
		ProviderSubID:    strings.TrimSpace(raw.ProviderSubID),
		ParentProviderID: strings.TrimSpace(raw.ParentProviderID),
		SplitKey:         strings.TrimSpace(raw.SplitKey),
		Currency:         currency,
		Status:           strings.ToLower(strings.TrimSpace(raw.Status)),
		Type:             normalizeReferralType(raw.Type),
		Description:      strings.TrimSpace(raw.Description),
		RefundedTotal:    ToMajorUnits(raw.RefundedTotal, currency),
		Items:            make([]CanonicalOrderItem, 0, len(raw.Items)),
		Customer: RawCustomer{
			UserID:    raw.Customer.UserID,
			Email:     strings.ToLower(strings.TrimSpace(raw.Customer.Email)),
			FirstName: strings.TrimSpace(raw.Customer.FirstName),
			LastName:  strings.TrimSpace(raw.Customer.LastName),
			IP:        strings.TrimSpace(raw.Customer.IP),
		},
	}

	for idx, item := range raw.Items {
		if item.Subtotal < 0 || item.Tax < 0 || item.Discount < 0 {
			return nil, fmt.Errorf("%w: 第 %d 个商品金额不能为负数", ErrOrderInvalid, idx+1)
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		categories := make([]string, 0, len(item.CategoryIDs))
		for _, categoryID := range item.CategoryIDs {
			if trimmed := strings.TrimSpace(categoryID); trimmed != "" {
				categories = append(categories, trimmed)
			}
		}
		order.Items = append(order.Items, CanonicalOrderItem{
			OrderAmounts: OrderAmounts{
				Subtotal: ToMajorUnits(item.Subtotal, currency),
				Tax:      ToMajorUnits(item.Tax, currency),
				Discount: ToMajorUnits(item.Discount, currency),
			},
			ItemID:      strings.TrimSpace(item.ItemID),
			Title:       strings.TrimSpace(item.Title),
			CategoryIDs: categories,
			Quantity:    quantity,
		})
	}
	return order, nil
}

// CalculateOrderTotal 计算计佣订单金额：小计减折扣，按配置叠加运费与税费，不低于 0
func CalculateOrderTotal(amounts OrderAmounts, setting ReferralSetting) decimal.Decimal {
	total := amounts.Subtotal
	if setting.ExcludeDiscount {
		total = total.Sub(amounts.Discount)
	}
	if !setting.ExcludeShipping {
		total = total.Add(amounts.Shipping)
	}
	if !setting.ExcludeTax {
		total = total.Add(amounts.Tax)
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}

// ItemOrderTotal 单个商品的计佣金额，运费不参与
func ItemOrderTotal(item CanonicalOrderItem, setting ReferralSetting) decimal.Decimal {
	amounts := item.OrderAmounts
	amounts.Shipping = decimal.Zero
	return CalculateOrderTotal(amounts, setting)
}

// IsPaidStatus 平台状态是否代表已支付
func IsPaidStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case constants.PlatformOrderStatusPaid, constants.PlatformOrderStatusCompleted, constants.PlatformOrderStatusProcessing:
		return true
	default:
		return false
	}
}

func normalizeReferralType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case constants.ReferralTypePayment:
		return constants.ReferralTypePayment
	case constants.ReferralTypeLead:
		return constants.ReferralTypeLead
	case constants.ReferralTypeRecurringSale:
		return constants.ReferralTypeRecurringSale
	default:
		return constants.ReferralTypeSale
	}
}
