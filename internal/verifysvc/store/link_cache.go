package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/monitoring"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	linkCacheKey        = "verifysvc:lanzou_links"
	defaultLinkCacheTTL = 30 * time.Second
)

// CachedLinkStore is a read-through redis cache in front of the link
// catalog. Catalog freshness is eventual by contract, so a short TTL
// is enough; any cache failure falls through to the store.
type CachedLinkStore struct {
	store   *LinkStore
	cl      *redis.Client
	ttl     time.Duration
	metrics *monitoring.Metrics
}

func NewCachedLinkStore(store *LinkStore, cl *redis.Client, ttl time.Duration, metrics *monitoring.Metrics) *CachedLinkStore {
	if ttl <= 0 {
		ttl = defaultLinkCacheTTL
	}
	return &CachedLinkStore{store: store, cl: cl, ttl: ttl, metrics: metrics}
}

func (c *CachedLinkStore) GetAvailableLinks(ctx context.Context) ([]models.DownloadLink, error) {
	cached, err := c.cl.Get(ctx, linkCacheKey).Result()
	if err == nil {
		var links []models.DownloadLink
		if jsonErr := json.Unmarshal([]byte(cached), &links); jsonErr == nil {
			return links, nil
		} else {
			log.Warnf("link cache: discarding unreadable cache entry: %v", jsonErr)
			c.metrics.IncError("cache_read")
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Warnf("link cache: failed to read cache: %v", err)
		c.metrics.IncError("cache_read")
	}

	links, err := c.store.GetAvailableLinks(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(links); err == nil {
		if err := c.cl.Set(ctx, linkCacheKey, data, c.ttl).Err(); err != nil {
			log.Warnf("link cache: failed to write cache: %v", err)
			c.metrics.IncError("cache_write")
		}
	}

	return links, nil
}

// Invalidate drops the cached pool, used after audit deletions.
func (c *CachedLinkStore) Invalidate(ctx context.Context) {
	if err := c.cl.Del(ctx, linkCacheKey).Err(); err != nil {
		log.Warnf("link cache: failed to invalidate: %v", err)
		c.metrics.IncError("cache_write")
	}
}
