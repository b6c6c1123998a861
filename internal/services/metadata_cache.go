package services

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// RequestMetadataCache memoizes metadata lookups for the lifetime of one request so that
// bundles sharing components fetch each product once. Failed lookups are not cached.
type RequestMetadataCache struct {
	provider MetadataProvider
	group    singleflight.Group

	mu    sync.RWMutex
	byID  map[string]ProductMetadata
	bySKU map[string]ProductMetadata
}

var _ MetadataProvider = (*RequestMetadataCache)(nil)

// NewRequestMetadataCache wraps provider with a per-request memo.
func NewRequestMetadataCache(provider MetadataProvider) *RequestMetadataCache {
	return &RequestMetadataCache{
		provider: provider,
		byID:     make(map[string]ProductMetadata),
		bySKU:    make(map[string]ProductMetadata),
	}
}

func (c *RequestMetadataCache) Metadata(ctx context.Context, productID string) (ProductMetadata, error) {
	return c.load(ctx, "id:"+productID, c.byID, productID, c.provider.Metadata)
}

func (c *RequestMetadataCache) MetadataBySKU(ctx context.Context, sku string) (ProductMetadata, error) {
	return c.load(ctx, "sku:"+sku, c.bySKU, sku, c.provider.MetadataBySKU)
}

func (c *RequestMetadataCache) load(ctx context.Context, flightKey string, memo map[string]ProductMetadata, key string, fetch func(context.Context, string) (ProductMetadata, error)) (ProductMetadata, error) {
	c.mu.RLock()
	meta, ok := memo[key]
	c.mu.RUnlock()
	if ok {
		return meta, nil
	}

	value, err, _ := c.group.Do(flightKey, func() (any, error) {
		c.mu.RLock()
		cached, ok := memo[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		meta, err := fetch(ctx, key)
		if err != nil {
			return ProductMetadata{}, err
		}
		c.mu.Lock()
		memo[key] = meta
		c.mu.Unlock()
		return meta, nil
	})
	if err != nil {
		return ProductMetadata{}, err
	}
	return value.(ProductMetadata), nil
}
