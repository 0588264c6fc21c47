package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
)

// Connector 平台连接器
type Connector interface {
	Provider() string
	NormalizeOrder(raw RawOrder) (*CanonicalOrder, error)
	GetExistingReferral(providerID string) (*models.Referral, error)
	RecordReferral(ctx context.Context, raw RawOrder) (*ReferralOutcome, error)
	RecordRenewal(ctx context.Context, raw RawOrder) (*ReferralOutcome, error)
	ChangePaymentStatus(ctx context.Context, providerID, status string) (*models.Referral, error)
	MarkReferralPaid(ctx context.Context, providerID string) (*models.Referral, error)
	RejectReferral(ctx context.Context, providerID, reason string) (*models.Referral, error)
	RefundReferral(ctx context.Context, input RefundInput) (*models.Referral, error)
}

// GenericConnector 通用连接器，平台标识由配置决定，订单结构即 RawOrder
type GenericConnector struct {
	provider string
	engine   *ReferralService
}

// NewGenericConnector 创建通用连接器
func NewGenericConnector(provider string, engine *ReferralService) *GenericConnector {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = constants.ConnectorProviderGeneric
	}
	return &GenericConnector{provider: provider, engine: engine}
}

// Provider 平台标识
func (c *GenericConnector) Provider() string {
	return c.provider
}

// NormalizeOrder 归一化订单，强制使用连接器自身的平台标识
func (c *GenericConnector) NormalizeOrder(raw RawOrder) (*CanonicalOrder, error) {
	raw.Provider = c.provider
	return NormalizeOrder(raw)
}

// GetExistingReferral 查询平台订单已有的推广订单
func (c *GenericConnector) GetExistingReferral(providerID string) (*models.Referral, error) {
	return c.engine.findTopLevel(c.provider, providerID)
}

// RecordReferral 平台新订单
func (c *GenericConnector) RecordReferral(ctx context.Context, raw RawOrder) (*ReferralOutcome, error) {
	raw.Provider = c.provider
	return c.engine.HandleOrderCreated(ctx, raw)
}

// RecordRenewal 平台订阅续费
func (c *GenericConnector) RecordRenewal(ctx context.Context, raw RawOrder) (*ReferralOutcome, error) {
	raw.Provider = c.provider
	return c.engine.HandleRenewal(ctx, raw)
}

// ChangePaymentStatus 平台订单状态变更
func (c *GenericConnector) ChangePaymentStatus(ctx context.Context, providerID, status string) (*models.Referral, error) {
	return c.engine.HandlePaymentStatusChanged(ctx, c.provider, providerID, status)
}

// MarkReferralPaid 平台订单已支付
func (c *GenericConnector) MarkReferralPaid(ctx context.Context, providerID string) (*models.Referral, error) {
	return c.engine.HandleOrderPaid(ctx, c.provider, providerID)
}

// RejectReferral 平台订单取消
func (c *GenericConnector) RejectReferral(ctx context.Context, providerID, reason string) (*models.Referral, error) {
	return c.engine.RejectByOrder(ctx, c.provider, providerID, reason)
}

// RefundReferral 平台订单退款
func (c *GenericConnector) RefundReferral(ctx context.Context, input RefundInput) (*models.Referral, error) {
	input.Provider = c.provider
	if input.Order != nil {
		order := *input.Order
		order.Provider = c.provider
		if strings.TrimSpace(order.ProviderID) == "" {
			order.ProviderID = input.ProviderID
		}
		input.Order = &order
	}
	return c.engine.HandleOrderRefunded(ctx, input)
}

// ConnectorRegistry 连接器注册表
type ConnectorRegistry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewConnectorRegistry 创建连接器注册表
func NewConnectorRegistry(connectors ...Connector) *ConnectorRegistry {
	registry := &ConnectorRegistry{connectors: make(map[string]Connector, len(connectors))}
	for _, connector := range connectors {
		registry.Register(connector)
	}
	return registry
}

// NewConnectorRegistryFromProviders 按配置的平台列表注册通用连接器
func NewConnectorRegistryFromProviders(providers []string, engine *ReferralService) *ConnectorRegistry {
	registry := NewConnectorRegistry()
	for _, provider := range providers {
		if strings.TrimSpace(provider) == "" {
			continue
		}
		registry.Register(NewGenericConnector(provider, engine))
	}
	return registry
}

// Register 注册连接器，同名覆盖
func (r *ConnectorRegistry) Register(connector Connector) {
	if r == nil || connector == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(connector.Provider()))
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[key] = connector
}

// Get 获取连接器
func (r *ConnectorRegistry) Get(provider string) (Connector, error) {
	key := strings.ToLower(strings.TrimSpace(provider))
	if r == nil || key == "" {
		return nil, ErrConnectorNotRegistered
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	connector, ok := r.connectors[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectorNotRegistered, key)
	}
	return connector, nil
}

// Providers 已注册的平台标识
func (r *ConnectorRegistry) Providers() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]string, 0, len(r.connectors))
	for provider := range r.connectors {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	return providers
}
