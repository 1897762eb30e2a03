package chain

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

type cachedDecimals struct {
	Adapter
	cache *lru.Cache
}

// WithDecimalsCache memoizes successful GetDecimals answers.
// EVM keys are compared case-insensitively, Solana mints are case-sensitive.
func WithDecimalsCache(a Adapter, size int) Adapter {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New(size)
	if err != nil {
		return a
	}
	return &cachedDecimals{Adapter: a, cache: cache}
}

func (c *cachedDecimals) key(contract string) string {
	if c.Chain() == EVM {
		return strings.ToLower(contract)
	}
	return contract
}

func (c *cachedDecimals) GetDecimals(ctx context.Context, contract string) (uint8, error) {
	k := c.key(contract)
	if v, ok := c.cache.Get(k); ok {
		return v.(uint8), nil
	}
	d, err := c.Adapter.GetDecimals(ctx, contract)
	if err != nil {
		return 0, err
	}
	c.cache.Add(k, d)
	return d, nil
}
