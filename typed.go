package cache

import (
	"context"
	"time"

	"github.com/krisalay/tiered-cache/codec"
	"github.com/krisalay/tiered-cache/types"
)

// Result is a typed cache read.
type Result[T any] struct {
	Value     T
	FromCache bool
	Timestamp time.Time
	CacheKey  string
	TTL       time.Duration
	Tier      types.TierName
}

/*
Get reads key from c as a T, calling load on a miss.

Values read back from a persistent tier are decoded into T. A cached value
that no longer decodes into T (because the type changed between releases,
say) is deleted and reloaded instead of failing the read.
*/
func Get[T any](ctx context.Context, c *TieredCache, key string, load func(ctx context.Context) (T, error), opts ...types.GetOption) (Result[T], error) {
	loader := types.LoaderFunc(func(ctx context.Context, _ string) (any, error) {
		return load(ctx)
	})

	res, err := c.Get(ctx, key, loader, opts...)
	if err != nil {
		return Result[T]{CacheKey: key}, err
	}

	val, err := codec.Convert[T](key, res.Value)
	if err != nil && res.FromCache {
		c.logger.Warn("discarding undecodable cached value", "tier", string(res.Tier), "key", key, "error", err)
		_ = c.Delete(ctx, key)

		res, err = c.Get(ctx, key, loader, append(opts, WithForceRefresh())...)
		if err != nil {
			return Result[T]{CacheKey: key}, err
		}
		val, err = codec.Convert[T](key, res.Value)
	}
	if err != nil {
		return Result[T]{CacheKey: key}, err
	}

	return Result[T]{
		Value:     val,
		FromCache: res.FromCache,
		Timestamp: res.Timestamp,
		CacheKey:  res.CacheKey,
		TTL:       res.TTL,
		Tier:      res.Tier,
	}, nil
}
