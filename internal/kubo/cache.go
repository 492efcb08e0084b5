package kubo

import (
	"bytes"
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-cid"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/tideline/internal/stream"
	"github.com/roach88/tideline/internal/task"
)

// BlockFetcher fetches raw blocks from the network node.
type BlockFetcher interface {
	BlockGet(ctx context.Context, id cid.Cid) ([]byte, error)
}

// Cache is the bounded content cache. It serves reads from a fixed-capacity
// LRU, falling through to the fetcher on a miss, and turns writes into an
// immediate cache insert plus a durable upload task.
//
// Cache implements stream.BlockSource.
type Cache struct {
	fetcher    BlockFetcher
	dispatcher task.Dispatcher
	lru        *lru.Cache[cid.Cid, []byte]
	flight     singleflight.Group
	log        *slog.Logger
}

// NewCache builds a cache holding at most capacity blocks. A capacity below
// one is an INVALID_CONFIGURATION error. A nil logger falls back to
// slog.Default().
func NewCache(fetcher BlockFetcher, dispatcher task.Dispatcher, capacity int, logger *slog.Logger) (*Cache, error) {
	if capacity < 1 {
		return nil, stream.NewInvalidConfigurationError("content cache capacity must be at least 1")
	}
	if logger == nil {
		logger = slog.Default()
	}
	inner, err := lru.New[cid.Cid, []byte](capacity)
	if err != nil {
		return nil, stream.NewInvalidConfigurationError("content cache: " + err.Error())
	}
	return &Cache{
		fetcher:    fetcher,
		dispatcher: dispatcher,
		lru:        inner,
		log:        logger,
	}, nil
}

// Get returns the block at id, fetching it from the node on a miss and
// caching the result. Concurrent misses on one address share a single fetch.
// Fetch failures propagate unchanged and cache nothing. The returned slice
// is the caller's to keep.
func (c *Cache) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if data, ok := c.lru.Get(id); ok {
		return bytes.Clone(data), nil
	}

	v, err, _ := c.flight.Do(id.KeyString(), func() (any, error) {
		// Re-probe: an earlier flight may have filled the entry between
		// the miss above and this call.
		if data, ok := c.lru.Get(id); ok {
			return data, nil
		}
		data, err := c.fetcher.BlockGet(ctx, id)
		if err != nil {
			return nil, err
		}
		c.lru.Add(id, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

// Put caches the block and enqueues its upload to the node. Enqueue failure
// is logged and swallowed; the block is still served from the cache, so Put
// itself never fails.
func (c *Cache) Put(ctx context.Context, id cid.Cid, data []byte) error {
	c.lru.Add(id, bytes.Clone(data))

	t, err := task.NewBlockUpload(id, data)
	if err != nil {
		c.log.Error("build block upload task", "cid", id.String(), "error", err)
		return nil
	}
	if err := c.dispatcher.Enqueue(ctx, t); err != nil {
		c.log.Error("enqueue block upload", "cid", id.String(), "task", t.ID, "error", err)
	}
	return nil
}

// Len reports the number of cached blocks.
func (c *Cache) Len() int {
	return c.lru.Len()
}
