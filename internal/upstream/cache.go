package upstream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/softrlabs/bexgate/internal/common"
	"github.com/softrlabs/bexgate/internal/store"
	"github.com/softrlabs/bexgate/params"
	"github.com/spf13/cast"
)

// CachingInvoker is a read-through cache in front of an Invoker. Only
// successful GET replies are cached, keyed by tenant, path and the
// canonicalized query string, so tenants never see each other's data.
// Callers can bypass it for one request with ?nocache=1.
type CachingInvoker struct {
	next    Invoker
	cache   store.Store[Response]
	ttl     time.Duration
	hashKey string
}

func NewCachingInvoker(next Invoker, storage store.Storage, ttl time.Duration, hashKey string) *CachingInvoker {
	if ttl <= 0 {
		ttl = params.ResponseCacheTTL
	}
	return &CachingInvoker{
		next:    next,
		cache:   store.New[Response](storage, params.ResponseCacheKeyPrefix),
		ttl:     ttl,
		hashKey: hashKey,
	}
}

func (c *CachingInvoker) Call(ctx context.Context, tenantKey string, method string, path string, query url.Values, body []byte) (*Response, error) {
	noCache := cast.ToBool(query.Get("nocache"))
	if noCache {
		query = cloneWithout(query, "nocache")
	}

	if method != http.MethodGet {
		return c.next.Call(ctx, tenantKey, method, path, query, body)
	}

	// url.Values.Encode sorts by key, which makes the query string canonical.
	key := common.CalculateHash(c.hashKey, tenantKey, method, path, query.Encode())

	if !noCache {
		if cached, err := c.cache.Get(ctx, key); err == nil {
			return &cached, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Response cache read failed", "tenant", tenantKey, "error", err)
		}
	}

	resp, err := c.next.Call(ctx, tenantKey, method, path, query, body)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, *resp, c.ttl); err != nil {
		slog.Warn("Response cache write failed", "tenant", tenantKey, "error", err)
	}
	return resp, nil
}

func cloneWithout(query url.Values, keys ...string) url.Values {
	out := make(url.Values, len(query))
	for k, v := range query {
		out[k] = v
	}
	for _, k := range keys {
		out.Del(k)
	}
	return out
}
