package service

import (
	"fmt"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
)

const (
	connectorRateRulesMaxSize = 100
	connectorRuleIDsMaxSize   = 500
	connectorRuleIDMaxRune    = 64
)

// ConnectorRateRule 按商品或分类覆盖费率的规则
type ConnectorRateRule struct {
	Target   string   `json:"target"`
	IDs      []string `json:"ids"`
	Rate     float64  `json:"rate"`
	RateType string   `json:"rate_type"`
}

// ConnectorSetting 连接器配置
type ConnectorSetting struct {
	Enabled             bool                `json:"enabled"`
	CustomAffiliateRate bool                `json:"custom_affiliate_rate"`
	RateRules           []ConnectorRateRule `json:"rate_rules"`
}

// ConnectorDefaultSetting 默认连接器配置
func ConnectorDefaultSetting() ConnectorSetting {
	return ConnectorSetting{
		Enabled:   true,
		RateRules: []ConnectorRateRule{},
	}
}

// ConnectorSettingKey 连接器配置的 settings 键
func ConnectorSettingKey(provider string) string {
	return constants.SettingKeyConnectorConfigPrefix + strings.ToLower(strings.TrimSpace(provider))
}

// NormalizeConnectorSetting 归一化连接器配置，丢弃无效规则并保持配置顺序
func NormalizeConnectorSetting(setting ConnectorSetting) ConnectorSetting {
	rules := make([]ConnectorRateRule, 0, len(setting.RateRules))
	for _, rule := range setting.RateRules {
		normalized, ok := normalizeConnectorRateRule(rule)
		if !ok {
			continue
		}
		rules = append(rules, normalized)
		if len(rules) >= connectorRateRulesMaxSize {
			break
		}
	}
	setting.RateRules = rules
	return setting
}

func normalizeConnectorRateRule(rule ConnectorRateRule) (ConnectorRateRule, bool) {
	target := strings.ToLower(strings.TrimSpace(rule.Target))
	if target != constants.RateRuleTargetProduct && target != constants.RateRuleTargetCategory {
		return rule, false
	}
	rule.Target = target

	ids := make([]string, 0, len(rule.IDs))
	seen := make(map[string]struct{}, len(rule.IDs))
	for _, raw := range rule.IDs {
		id := normalizeSettingTextWithRuneLimit(raw, connectorRuleIDMaxRune)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if len(ids) >= connectorRuleIDsMaxSize {
			break
		}
	}
	if len(ids) == 0 {
		return rule, false
	}
	rule.IDs = ids

	rule.RateType = normalizeCommissionRateType(rule.RateType)
	rule.Rate = roundSettingDecimal(rule.Rate)
	if rule.Rate < referralRateMin {
		rule.Rate = referralRateMin
	}
	if rule.RateType == constants.RateTypePercentage && rule.Rate > referralPercentageRateMax {
		rule.Rate = referralPercentageRateMax
	}
	return rule, true
}

// ValidateConnectorSetting 校验连接器配置
func ValidateConnectorSetting(setting ConnectorSetting) error {
	for idx, rule := range setting.RateRules {
		target := strings.ToLower(strings.TrimSpace(rule.Target))
		if target != constants.RateRuleTargetProduct && target != constants.RateRuleTargetCategory {
			return fmt.Errorf("%w: 第 %d 条规则目标仅支持 product/category", ErrConnectorConfigInvalid, idx+1)
		}
		if rule.Rate < referralRateMin {
			return fmt.Errorf("%w: 第 %d 条规则费率不能小于 0", ErrConnectorConfigInvalid, idx+1)
		}
		if normalizeCommissionRateType(rule.RateType) == constants.RateTypePercentage && rule.Rate > referralPercentageRateMax {
			return fmt.Errorf("%w: 第 %d 条规则百分比费率必须在 0-100 之间", ErrConnectorConfigInvalid, idx+1)
		}
	}
	return nil
}

// ConnectorSettingToMap 将连接器配置转换为 settings 存储结构
func ConnectorSettingToMap(setting ConnectorSetting) map[string]interface{} {
	normalized := NormalizeConnectorSetting(setting)
	rules := make([]interface{}, 0, len(normalized.RateRules))
	for _, rule := range normalized.RateRules {
		rules = append(rules, map[string]interface{}{
			"target":    rule.Target,
			"ids":       append([]string(nil), rule.IDs...),
			"rate":      rule.Rate,
			"rate_type": rule.RateType,
		})
	}
	return map[string]interface{}{
		"enabled":               normalized.Enabled,
		"custom_affiliate_rate": normalized.CustomAffiliateRate,
		"rate_rules":            rules,
	}
}

func connectorSettingFromJSON(raw models.JSON, fallback ConnectorSetting) ConnectorSetting {
	result := fallback

	if enabledRaw, ok := raw["enabled"]; ok {
		result.Enabled = parseSettingBool(enabledRaw)
	}
	if customRaw, ok := raw["custom_affiliate_rate"]; ok {
		result.CustomAffiliateRate = parseSettingBool(customRaw)
	}
	if rulesRaw, ok := raw["rate_rules"]; ok {
		result.RateRules = parseConnectorRateRules(rulesRaw)
	}
	return NormalizeConnectorSetting(result)
}

func parseConnectorRateRules(raw interface{}) []ConnectorRateRule {
	switch value := raw.(type) {
	case []ConnectorRateRule:
		return append([]ConnectorRateRule(nil), value...)
	case []interface{}:
		rules := make([]ConnectorRateRule, 0, len(value))
		for _, itemRaw := range value {
			itemMap, ok := itemRaw.(map[string]interface{})
			if !ok {
				continue
			}
			rule := ConnectorRateRule{
				Target:   normalizeSettingText(itemMap["target"]),
				IDs:      normalizeSettingStringList(itemMap["ids"]),
				RateType: normalizeSettingText(itemMap["rate_type"]),
			}
			if parsed, err := parseSettingFloat(itemMap["rate"]); err == nil {
				rule.Rate = parsed
			}
			rules = append(rules, rule)
		}
		return rules
	default:
		return []ConnectorRateRule{}
	}
}

// GetConnectorSetting 获取连接器配置（优先 settings，空时回退默认）
func (s *SettingService) GetConnectorSetting(provider string) (ConnectorSetting, error) {
	fallback := ConnectorDefaultSetting()
	if s == nil {
		return fallback, nil
	}

	value, err := s.GetByKey(ConnectorSettingKey(provider))
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return connectorSettingFromJSON(value, fallback), nil
}

// UpdateConnectorSetting 更新连接器配置
func (s *SettingService) UpdateConnectorSetting(provider string, setting ConnectorSetting) (ConnectorSetting, error) {
	if strings.TrimSpace(provider) == "" {
		return ConnectorDefaultSetting(), fmt.Errorf("%w: provider 不能为空", ErrConnectorConfigInvalid)
	}
	if err := ValidateConnectorSetting(setting); err != nil {
		return ConnectorDefaultSetting(), err
	}
	normalized := NormalizeConnectorSetting(setting)
	if _, err := s.Update(ConnectorSettingKey(provider), ConnectorSettingToMap(normalized)); err != nil {
		return ConnectorDefaultSetting(), err
	}
	return normalized, nil
}
