package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
)

const (
	referralRateMin            = 0
	referralPercentageRateMax  = 100
	referralCookieDurationMin  = 1
	referralCookieDurationMax  = 3650
	referralCookieDurationBase = 30
	referralRateBase           = 10
)

// ReferralSettingReader 引擎每次调用时读取运行时配置
type ReferralSettingReader interface {
	GetReferralSetting() (ReferralSetting, error)
	GetConnectorSetting(provider string) (ConnectorSetting, error)
}

// ReferralSetting 全局推广配置
type ReferralSetting struct {
	Rate                   float64 `json:"rate"`
	RateType               string  `json:"rate_type"`
	CookieDurationDays     int     `json:"cookie_duration_days"`
	ReferralFormat         string  `json:"referral_format"`
	ExcludeShipping        bool    `json:"exclude_shipping"`
	ExcludeTax             bool    `json:"exclude_tax"`
	ExcludeDiscount        bool    `json:"exclude_discount"`
	SelfReferralDisabled   bool    `json:"self_referral_disabled"`
	CreditLastReferrer     bool    `json:"credit_last_referrer"`
	CreditCustomerReferrer bool    `json:"credit_customer_referrer"`
	RecurringEnabled       bool    `json:"recurring_enabled"`
}

// ReferralDefaultSetting 默认推广配置
func ReferralDefaultSetting() ReferralSetting {
	return NormalizeReferralSetting(ReferralSetting{
		Rate:                 referralRateBase,
		RateType:             constants.RateTypePercentage,
		CookieDurationDays:   referralCookieDurationBase,
		ReferralFormat:       constants.ReferralFormatID,
		ExcludeShipping:      true,
		ExcludeTax:           true,
		ExcludeDiscount:      true,
		SelfReferralDisabled: true,
		CreditLastReferrer:   true,
	})
}

// NormalizeReferralSetting 归一化推广配置
func NormalizeReferralSetting(setting ReferralSetting) ReferralSetting {
	setting.RateType = normalizeCommissionRateType(setting.RateType)
	setting.Rate = roundSettingDecimal(setting.Rate)
	if setting.Rate < referralRateMin {
		setting.Rate = referralRateMin
	}
	if setting.RateType == constants.RateTypePercentage && setting.Rate > referralPercentageRateMax {
		setting.Rate = referralPercentageRateMax
	}

	if setting.CookieDurationDays < referralCookieDurationMin {
		setting.CookieDurationDays = referralCookieDurationBase
	}
	if setting.CookieDurationDays > referralCookieDurationMax {
		setting.CookieDurationDays = referralCookieDurationMax
	}

	switch strings.ToLower(strings.TrimSpace(setting.ReferralFormat)) {
	case constants.ReferralFormatUsername:
		setting.ReferralFormat = constants.ReferralFormatUsername
	default:
		setting.ReferralFormat = constants.ReferralFormatID
	}
	return setting
}

// ValidateReferralSetting 校验推广配置
func ValidateReferralSetting(setting ReferralSetting) error {
	rateType := strings.ToLower(strings.TrimSpace(setting.RateType))
	if rateType != "" && rateType != constants.RateTypePercentage && rateType != constants.RateTypeFlat {
		return fmt.Errorf("%w: 费率类型仅支持 percentage/flat", ErrReferralConfigInvalid)
	}
	if setting.Rate < referralRateMin {
		return fmt.Errorf("%w: 费率不能小于 0", ErrReferralConfigInvalid)
	}
	if rateType == constants.RateTypePercentage && setting.Rate > referralPercentageRateMax {
		return fmt.Errorf("%w: 百分比费率必须在 0-100 之间", ErrReferralConfigInvalid)
	}
	if setting.CookieDurationDays < 0 || setting.CookieDurationDays > referralCookieDurationMax {
		return fmt.Errorf("%w: Cookie 有效天数必须在 1-3650 之间", ErrReferralConfigInvalid)
	}
	return nil
}

// ReferralSettingToMap 将推广配置转换为 settings 存储结构
func ReferralSettingToMap(setting ReferralSetting) map[string]interface{} {
	normalized := NormalizeReferralSetting(setting)
	return map[string]interface{}{
		"rate":                     normalized.Rate,
		"rate_type":                normalized.RateType,
		"cookie_duration_days":     normalized.CookieDurationDays,
		"referral_format":          normalized.ReferralFormat,
		"exclude_shipping":         normalized.ExcludeShipping,
		"exclude_tax":              normalized.ExcludeTax,
		"exclude_discount":         normalized.ExcludeDiscount,
		"self_referral_disabled":   normalized.SelfReferralDisabled,
		"credit_last_referrer":     normalized.CreditLastReferrer,
		"credit_customer_referrer": normalized.CreditCustomerReferrer,
		"recurring_enabled":        normalized.RecurringEnabled,
	}
}

func referralSettingFromJSON(raw models.JSON, fallback ReferralSetting) ReferralSetting {
	result := fallback

	if rateRaw, ok := raw["rate"]; ok {
		if parsed, err := parseSettingFloat(rateRaw); err == nil {
			result.Rate = parsed
		}
	}
	if rateTypeRaw, ok := raw["rate_type"]; ok {
		result.RateType = normalizeSettingText(rateTypeRaw)
	}
	if daysRaw, ok := raw["cookie_duration_days"]; ok {
		if parsed, err := parseSettingInt(daysRaw); err == nil {
			result.CookieDurationDays = parsed
		}
	}
	if formatRaw, ok := raw["referral_format"]; ok {
		result.ReferralFormat = normalizeSettingText(formatRaw)
	}

	flags := []struct {
		key    string
		target *bool
	}{
		{"exclude_shipping", &result.ExcludeShipping},
		{"exclude_tax", &result.ExcludeTax},
		{"exclude_discount", &result.ExcludeDiscount},
		{"self_referral_disabled", &result.SelfReferralDisabled},
		{"credit_last_referrer", &result.CreditLastReferrer},
		{"credit_customer_referrer", &result.CreditCustomerReferrer},
		{"recurring_enabled", &result.RecurringEnabled},
	}
	for _, flag := range flags {
		if value, ok := raw[flag.key]; ok {
			*flag.target = parseSettingBool(value)
		}
	}

	return NormalizeReferralSetting(result)
}

// GetReferralSetting 获取推广配置（优先 settings，空时回退默认）
func (s *SettingService) GetReferralSetting() (ReferralSetting, error) {
	fallback := ReferralDefaultSetting()
	if s == nil {
		return fallback, nil
	}

	value, err := s.GetByKey(constants.SettingKeyReferralConfig)
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return referralSettingFromJSON(value, fallback), nil
}

// UpdateReferralSetting 更新推广配置
func (s *SettingService) UpdateReferralSetting(setting ReferralSetting) (ReferralSetting, error) {
	if err := ValidateReferralSetting(setting); err != nil {
		return ReferralDefaultSetting(), err
	}
	normalized := NormalizeReferralSetting(setting)
	if _, err := s.Update(constants.SettingKeyReferralConfig, ReferralSettingToMap(normalized)); err != nil {
		return ReferralDefaultSetting(), err
	}
	return normalized, nil
}

// CookieDurationSeconds Cookie 有效期（秒）
func (s ReferralSetting) CookieDurationSeconds() int {
	return CookieMaxAgeSeconds(s.CookieDurationDays)
}

func normalizeCommissionRateType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case constants.RateTypeFlat:
		return constants.RateTypeFlat
	default:
		return constants.RateTypePercentage
	}
}

func roundSettingDecimal(value float64) float64 {
	return math.Round(value*100) / 100
}
