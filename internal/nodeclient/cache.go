package nodeclient

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// cache is a TTL-bounded response cache for block and header lookups by
// id. It caches every id it is given, with no confirmation-depth check.
// It is opportunistic: any ristretto error is swallowed and
// simply results in a cache miss, never a NodeClient failure.
type cache struct {
	ttl    time.Duration
	blocks *ristretto.Cache[string, FullBlock]
	headers *ristretto.Cache[string, Header]
}

func newCache(ttl time.Duration) *cache {
	blocks, err := ristretto.NewCache(&ristretto.Config[string, FullBlock]{
		NumCounters: 1e6,
		MaxCost:     1 << 27, // 128MiB
		BufferItems: 64,
	})
	if err != nil {
		return nil
	}
	headers, err := ristretto.NewCache(&ristretto.Config[string, Header]{
		NumCounters: 1e6,
		MaxCost:     1 << 25, // 32MiB
		BufferItems: 64,
	})
	if err != nil {
		return nil
	}
	return &cache{ttl: ttl, blocks: blocks, headers: headers}
}

func (c *cache) getBlock(id string) (FullBlock, bool) {
	if c == nil || c.blocks == nil {
		return FullBlock{}, false
	}
	return c.blocks.Get(id)
}

func (c *cache) putBlock(id string, blk FullBlock) {
	if c == nil || c.blocks == nil {
		return
	}
	c.blocks.SetWithTTL(id, blk, 1, c.ttl)
}

func (c *cache) getHeader(id string) (Header, bool) {
	if c == nil || c.headers == nil {
		return Header{}, false
	}
	return c.headers.Get(id)
}

func (c *cache) putHeader(id string, h Header) {
	if c == nil || c.headers == nil {
		return
	}
	c.headers.SetWithTTL(id, h, 1, c.ttl)
}
