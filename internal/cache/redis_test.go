package cache

import (
	"context"
	"testing"
	"time"
)

func TestStoreBuildKey(t *testing.T) {
	store := NewStore(nil, "  ")
	if got := store.buildKey(SettingKey("referral_config")); got != "aff:setting:referral_config" {
		t.Fatalf("unexpected key: %s", got)
	}
	custom := NewStore(nil, "shop")
	if got := custom.buildKey(" "); got != "shop" {
		t.Fatalf("blank key should map to prefix, got %s", got)
	}
}

func TestDisabledStoreIsNoop(t *testing.T) {
	var store *Store
	ctx := context.Background()
	if store.Enabled() {
		t.Fatalf("nil store must be disabled")
	}
	var dest map[string]interface{}
	hit, err := store.GetJSON(ctx, "k", &dest)
	if err != nil || hit {
		t.Fatalf("expected miss without error, got hit=%v err=%v", hit, err)
	}
	if err := store.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute); err != nil {
		t.Fatalf("set on disabled store failed: %v", err)
	}
	if err := store.Del(ctx, "k"); err != nil {
		t.Fatalf("del on disabled store failed: %v", err)
	}
}
