package storage

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"xdao.co/ufs/cidutil"
)

// DefaultCacheEntries is the block count used when NewCachedCAS gets size <= 0.
const DefaultCacheEntries = 1024

// CachedCAS is a read-through LRU cache in front of another CAS.
//
// Blocks are content-addressed, so a cached block never goes stale; the
// cache only bounds memory. Misses and errors are not cached.
type CachedCAS struct {
	backend CAS
	blocks  *lru.Cache[cidutil.ID, []byte]
}

var _ CAS = (*CachedCAS)(nil)

func NewCachedCAS(backend CAS, size int) (*CachedCAS, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage: CachedCAS requires a backend")
	}
	if size <= 0 {
		size = DefaultCacheEntries
	}
	cache, err := lru.New[cidutil.ID, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("storage: block cache: %w", err)
	}
	return &CachedCAS{backend: backend, blocks: cache}, nil
}

func (c *CachedCAS) Put(codec cidutil.Codec, data []byte) (cidutil.ID, error) {
	id, err := c.backend.Put(codec, data)
	if err != nil {
		return id, err
	}
	c.blocks.Add(id, append([]byte(nil), data...))
	return id, nil
}

func (c *CachedCAS) Get(id cidutil.ID) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	if b, ok := c.blocks.Get(id); ok {
		return append([]byte(nil), b...), nil
	}
	b, err := c.backend.Get(id)
	if err != nil {
		return nil, err
	}
	if err := Verify(id, b); err != nil {
		return nil, err
	}
	c.blocks.Add(id, append([]byte(nil), b...))
	return b, nil
}

func (c *CachedCAS) Has(id cidutil.ID) bool {
	if !id.Defined() {
		return false
	}
	if c.blocks.Contains(id) {
		return true
	}
	return c.backend.Has(id)
}

// Cached reports the number of blocks currently held in memory.
func (c *CachedCAS) Cached() int { return c.blocks.Len() }
