package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON 通用 JSON 对象字段
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	if len(bytes) == 0 {
		*j = make(JSON)
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ReferralProduct 推广订单商品快照
type ReferralProduct struct {
	ItemID      string   `json:"item_id"`
	Title       string   `json:"title"`
	CategoryIDs []string `json:"category_ids,omitempty"`
	Quantity    int      `json:"quantity"`
	Total       Money    `json:"total"`                  // 参与计佣的商品金额
	Commission  Money    `json:"commission"`             // 该商品按规则计得的佣金，未命中规则为 0
	RuleMatched bool     `json:"rule_matched"`
}

// ReferralProducts 推广订单商品快照列表
type ReferralProducts []ReferralProduct

// Value 实现 driver.Valuer 接口
func (p ReferralProducts) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal([]ReferralProduct{})
	}
	return json.Marshal([]ReferralProduct(p))
}

// Scan 实现 sql.Scanner 接口
func (p *ReferralProducts) Scan(value interface{}) error {
	if value == nil {
		*p = ReferralProducts{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	if len(bytes) == 0 {
		*p = ReferralProducts{}
		return nil
	}
	return json.Unmarshal(bytes, p)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", value)
	}
}
