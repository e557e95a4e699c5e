package httpkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coocood/freecache"
)

// CachedGetter performs GET requests and keeps successful response
// bodies in an in-memory cache keyed by URL. Geocoding and weather
// lookups repeat often within a conversation and change slowly.
type CachedGetter struct {
	client *http.Client
	cache  *freecache.Cache
	ttl    int
	limit  int64
}

// NewCachedGetter creates a getter with a cache of sizeBytes (freecache
// enforces a 512 KB minimum) and the given entry lifetime.
func NewCachedGetter(client *http.Client, sizeBytes int, ttl time.Duration) *CachedGetter {
	if client == nil {
		client = NewClient()
	}
	return &CachedGetter{
		client: client,
		cache:  freecache.NewCache(sizeBytes),
		ttl:    int(ttl / time.Second),
		limit:  2 << 20,
	}
}

// Get returns the body of url, from cache when present. header may be
// nil. Non-2xx responses are returned as errors and never cached.
func (g *CachedGetter) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	key := []byte(url)
	if body, err := g.cache.Get(key); err == nil {
		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, ReadErrorBody(resp.Body, 512))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.limit))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	// Entries larger than the cache segment are rejected; that only
	// costs a refetch.
	_ = g.cache.Set(key, body, g.ttl)
	return body, nil
}

// HitCount returns the number of cache hits so far.
func (g *CachedGetter) HitCount() int64 { return g.cache.HitCount() }
