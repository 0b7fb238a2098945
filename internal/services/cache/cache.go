package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/middleware"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus"
)

// Service defines lookup cache operations
type Service interface {
	Get(ctx context.Context, kind models.IntentKind, query string) (*models.CacheEntry, bool)
	Set(ctx context.Context, kind models.IntentKind, query, title, value string) error
	Clear(ctx context.Context) error
}

// Cache implements caching of resolved intent lookups
type Cache struct {
	enabled bool
	cache   *cache.Cache
	metrics *middleware.Metrics
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service
func NewCache(cfg *config.Config, metrics *middleware.Metrics, logger *logrus.Logger) Service {
	if !cfg.Cache.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.Cache.TTL, cfg.Cache.TTL*2),
		metrics: metrics,
		logger:  logger,
		maxSize: cfg.Cache.MaxSize,
	}
}

// Get retrieves a cached lookup
func (c *Cache) Get(ctx context.Context, kind models.IntentKind, query string) (*models.CacheEntry, bool) {
	if !c.enabled {
		return nil, false
	}

	key := c.generateKey(kind, query)
	if val, found := c.cache.Get(key); found {
		entry := val.(*models.CacheEntry)
		c.logger.WithFields(logrus.Fields{
			"intent": kind,
			"query":  query,
			"age":    time.Since(entry.CreatedAt),
		}).Debug("Cache hit")
		if c.metrics != nil {
			c.metrics.RecordCacheHit()
		}
		copied := *entry
		return &copied, true
	}

	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
	return nil, false
}

// Set stores a lookup result in cache
func (c *Cache) Set(ctx context.Context, kind models.IntentKind, query, title, value string) error {
	if !c.enabled {
		return nil
	}

	// Check cache size
	if c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing old entries")
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.cache.Flush()
		}
	}

	key := c.generateKey(kind, query)
	entry := &models.CacheEntry{
		Kind:      kind,
		Query:     query,
		Title:     title,
		Value:     value,
		CreatedAt: time.Now(),
	}

	c.cache.SetDefault(key, entry)
	c.logger.WithFields(logrus.Fields{
		"intent": kind,
		"query":  query,
	}).Debug("Lookup cached")

	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

// generateKey creates a unique cache key; queries are case-folded
func (c *Cache) generateKey(kind models.IntentKind, query string) string {
	data := fmt.Sprintf("%s:%s", kind, strings.ToLower(strings.TrimSpace(query)))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
