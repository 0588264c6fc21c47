package service

import (
	"context"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/cache"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"
)

const defaultSettingCacheTTL = 5 * time.Minute

// SettingCache 配置读穿缓存
type SettingCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// SettingService 设置业务服务，负责运行时配置的读取与缓存
type SettingService struct {
	repo     repository.SettingRepository
	cache    SettingCache
	cacheTTL time.Duration
}

// NewSettingService 创建设置服务
func NewSettingService(repo repository.SettingRepository) *SettingService {
	return &SettingService{repo: repo, cacheTTL: defaultSettingCacheTTL}
}

// WithCache 挂载读穿缓存，ttl<=0 时使用默认值
func (s *SettingService) WithCache(store SettingCache, ttl time.Duration) *SettingService {
	if s == nil {
		return nil
	}
	s.cache = store
	if ttl > 0 {
		s.cacheTTL = ttl
	}
	return s
}

// GetByKey 获取设置，优先命中缓存
func (s *SettingService) GetByKey(key string) (models.JSON, error) {
	ctx := context.Background()
	cacheKey := cache.SettingKey(key)
	if s.cache != nil {
		var cached models.JSON
		hit, err := s.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			logger.Warnw("setting_cache_get_failed", "key", key, "error", err)
		} else if hit {
			return cached, nil
		}
	}

	setting, err := s.repo.GetByKey(key)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, nil
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, setting.ValueJSON, s.cacheTTL); err != nil {
			logger.Warnw("setting_cache_set_failed", "key", key, "error", err)
		}
	}
	return setting.ValueJSON, nil
}

// Update 设置值，写库后失效缓存
func (s *SettingService) Update(key string, value map[string]interface{}) (models.JSON, error) {
	normalized := normalizeSettingValueByKey(key, value)

	setting, err := s.repo.Upsert(key, normalized)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Del(context.Background(), cache.SettingKey(key)); err != nil {
			logger.Warnw("setting_cache_invalidate_failed", "key", key, "error", err)
		}
	}
	return setting.ValueJSON, nil
}
