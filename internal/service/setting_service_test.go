package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/cache"
	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
)

type mockSettingRepo struct {
	store map[string]models.JSON
	reads int
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{store: map[string]models.JSON{}}
}

func (m *mockSettingRepo) GetByKey(key string) (*models.Setting, error) {
	m.reads++
	value, ok := m.store[key]
	if !ok {
		return nil, nil
	}
	return &models.Setting{Key: key, ValueJSON: value}, nil
}

func (m *mockSettingRepo) Upsert(key string, value models.JSON) (*models.Setting, error) {
	m.store[key] = value
	return &models.Setting{Key: key, ValueJSON: value}, nil
}

type fakeSettingCache struct {
	items map[string][]byte
}

func newFakeSettingCache() *fakeSettingCache {
	return &fakeSettingCache{items: map[string][]byte{}}
}

func (f *fakeSettingCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := f.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeSettingCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.items[key] = raw
	return nil
}

func (f *fakeSettingCache) Del(_ context.Context, key string) error {
	delete(f.items, key)
	return nil
}

func TestGetReferralSettingFallback(t *testing.T) {
	svc := NewSettingService(newMockSettingRepo())

	setting, err := svc.GetReferralSetting()
	if err != nil {
		t.Fatalf("get referral setting failed: %v", err)
	}
	if setting.Rate != 10 || setting.RateType != constants.RateTypePercentage {
		t.Fatalf("unexpected default rate: %+v", setting)
	}
	if setting.CookieDurationDays != 30 {
		t.Fatalf("expected default cookie duration 30, got %d", setting.CookieDurationDays)
	}
	if !setting.SelfReferralDisabled || !setting.ExcludeShipping || !setting.ExcludeTax || !setting.ExcludeDiscount {
		t.Fatalf("unexpected default flags: %+v", setting)
	}
	if setting.CreditCustomerReferrer || setting.RecurringEnabled {
		t.Fatalf("expected optional features off by default: %+v", setting)
	}
	if setting.ReferralFormat != constants.ReferralFormatID {
		t.Fatalf("expected id referral format, got %s", setting.ReferralFormat)
	}
}

func TestUpdateReferralSettingNormalize(t *testing.T) {
	repo := newMockSettingRepo()
	svc := NewSettingService(repo)

	setting, err := svc.UpdateReferralSetting(ReferralSetting{
		Rate:               12.346,
		RateType:           " Percentage ",
		CookieDurationDays: 0,
		ReferralFormat:     "USERNAME",
		CreditLastReferrer: false,
	})
	if err != nil {
		t.Fatalf("update referral setting failed: %v", err)
	}
	if setting.Rate != 12.35 {
		t.Fatalf("expected rate rounded to 12.35, got %v", setting.Rate)
	}
	if setting.CookieDurationDays != 30 {
		t.Fatalf("expected cookie duration fallback 30, got %d", setting.CookieDurationDays)
	}
	if setting.ReferralFormat != constants.ReferralFormatUsername {
		t.Fatalf("expected username format, got %s", setting.ReferralFormat)
	}

	saved := repo.store[constants.SettingKeyReferralConfig]
	if saved["credit_last_referrer"] != false || saved["rate_type"] != constants.RateTypePercentage {
		t.Fatalf("unexpected saved setting: %+v", saved)
	}
}

func TestValidateReferralSetting(t *testing.T) {
	cases := []struct {
		name    string
		setting ReferralSetting
		wantErr bool
	}{
		{name: "valid", setting: ReferralSetting{Rate: 10, RateType: constants.RateTypePercentage, CookieDurationDays: 30}},
		{name: "percentage over 100", setting: ReferralSetting{Rate: 120, RateType: constants.RateTypePercentage}, wantErr: true},
		{name: "flat over 100", setting: ReferralSetting{Rate: 120, RateType: constants.RateTypeFlat}},
		{name: "negative", setting: ReferralSetting{Rate: -1, RateType: constants.RateTypeFlat}, wantErr: true},
		{name: "unknown type", setting: ReferralSetting{Rate: 1, RateType: "group"}, wantErr: true},
		{name: "cookie too long", setting: ReferralSetting{CookieDurationDays: 5000}, wantErr: true},
	}
	for _, tc := range cases {
		err := ValidateReferralSetting(tc.setting)
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestReferralSettingFromJSONKeepsDefaultsForMissingKeys(t *testing.T) {
	setting := referralSettingFromJSON(models.JSON{
		"rate":              "15",
		"exclude_shipping":  "no",
		"recurring_enabled": "yes",
	}, ReferralDefaultSetting())
	if setting.Rate != 15 {
		t.Fatalf("expected rate 15, got %v", setting.Rate)
	}
	if setting.ExcludeShipping {
		t.Fatalf("expected exclude_shipping disabled")
	}
	if !setting.RecurringEnabled {
		t.Fatalf("expected recurring enabled")
	}
	if !setting.SelfReferralDisabled || !setting.ExcludeTax {
		t.Fatalf("missing keys must keep defaults: %+v", setting)
	}
}

func TestConnectorSettingNormalize(t *testing.T) {
	repo := newMockSettingRepo()
	svc := NewSettingService(repo)

	saved, err := svc.UpdateConnectorSetting("Shop", ConnectorSetting{
		Enabled:             true,
		CustomAffiliateRate: true,
		RateRules: []ConnectorRateRule{
			{Target: "category", IDs: []string{" c1 ", "c1", ""}, Rate: 50},
			{Target: "product", IDs: []string{}, Rate: 10},
			{Target: "PRODUCT", IDs: []string{"p1"}, Rate: 5, RateType: "flat"},
		},
	})
	if err != nil {
		t.Fatalf("update connector setting failed: %v", err)
	}
	if len(saved.RateRules) != 2 {
		t.Fatalf("expected 2 valid rules, got %+v", saved.RateRules)
	}
	if saved.RateRules[0].Target != constants.RateRuleTargetCategory || len(saved.RateRules[0].IDs) != 1 {
		t.Fatalf("unexpected first rule: %+v", saved.RateRules[0])
	}
	if saved.RateRules[1].RateType != constants.RateTypeFlat {
		t.Fatalf("unexpected second rule: %+v", saved.RateRules[1])
	}

	loaded, err := svc.GetConnectorSetting("shop")
	if err != nil {
		t.Fatalf("get connector setting failed: %v", err)
	}
	if !loaded.CustomAffiliateRate || len(loaded.RateRules) != 2 || loaded.RateRules[1].IDs[0] != "p1" {
		t.Fatalf("unexpected loaded setting: %+v", loaded)
	}
	if _, ok := repo.store[constants.SettingKeyConnectorConfigPrefix+"shop"]; !ok {
		t.Fatalf("expected connector setting saved under lowercase provider key")
	}

	if _, err := svc.UpdateConnectorSetting("shop", ConnectorSetting{
		RateRules: []ConnectorRateRule{{Target: "tag", IDs: []string{"x"}, Rate: 1}},
	}); err == nil {
		t.Fatalf("expected invalid target error")
	}
}

func TestConnectorSettingFallbackEnabled(t *testing.T) {
	svc := NewSettingService(newMockSettingRepo())
	setting, err := svc.GetConnectorSetting("generic")
	if err != nil {
		t.Fatalf("get connector setting failed: %v", err)
	}
	if !setting.Enabled || setting.CustomAffiliateRate || len(setting.RateRules) != 0 {
		t.Fatalf("unexpected default connector setting: %+v", setting)
	}
}

func TestSettingServiceReadThroughCache(t *testing.T) {
	repo := newMockSettingRepo()
	store := newFakeSettingCache()
	svc := NewSettingService(repo).WithCache(store, time.Minute)

	if _, err := svc.UpdateReferralSetting(ReferralSetting{Rate: 7, RateType: constants.RateTypeFlat, CookieDurationDays: 10}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	first, err := svc.GetReferralSetting()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	second, err := svc.GetReferralSetting()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if repo.reads != 1 {
		t.Fatalf("expected second read served from cache, repo reads=%d", repo.reads)
	}
	if first.Rate != 7 || second.Rate != 7 || second.RateType != constants.RateTypeFlat {
		t.Fatalf("unexpected cached setting: %+v", second)
	}

	if _, err := svc.UpdateReferralSetting(ReferralSetting{Rate: 9, RateType: constants.RateTypeFlat, CookieDurationDays: 10}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, ok := store.items[cache.SettingKey(constants.SettingKeyReferralConfig)]; ok {
		t.Fatalf("expected cache invalidated on update")
	}
	updated, err := svc.GetReferralSetting()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.Rate != 9 {
		t.Fatalf("expected fresh value after invalidation, got %v", updated.Rate)
	}
}

func TestSettingServiceDisabledStoreFallsBackToRepo(t *testing.T) {
	repo := newMockSettingRepo()
	var disabled *cache.Store
	svc := NewSettingService(repo).WithCache(disabled, 0)

	if _, err := svc.UpdateReferralSetting(ReferralDefaultSetting()); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.GetReferralSetting(); err != nil {
			t.Fatalf("get failed: %v", err)
		}
	}
	if repo.reads != 2 {
		t.Fatalf("expected every read to hit repo, got %d", repo.reads)
	}
}
