// Package blockcache implements the copy-on-write block array that both the
// per-node cache (§4.3, 1 KiB blocks) and the compressed-store cache (§4.5,
// 8 KiB blocks) are built from. The spec describes the compressed store's
// cache as "a second COW block cache" over the uncompressed view — the same
// slot-present/slot-absent array, just at a different block size and with a
// different fetch-on-miss source — so one generic type serves both call
// sites instead of two copies of the same bookkeeping.
package blockcache

import "sync"

// Cache is a fixed-size-block, variable-length array where every slot is
// either absent (logical contents must be fetched from elsewhere) or present
// (authoritative: loaded or dirty). It owns its own mutex because spec.md's
// lock ordering (§5) treats "per-node cache lock" and "compressed-store
// cache lock" as distinct, independently-held locks.
type Cache struct {
	mu        sync.Mutex
	blockSize int
	blocks    [][]byte
}

// New creates an empty cache with the given block size.
func New(blockSize int) *Cache {
	return &Cache{blockSize: blockSize}
}

func (c *Cache) Lock()   { c.mu.Lock() }
func (c *Cache) Unlock() { c.mu.Unlock() }

func (c *Cache) BlockSize() int { return c.blockSize }

// NumBlocks returns the number of block slots. Caller must hold the lock.
func (c *Cache) NumBlocks() int { return len(c.blocks) }

// BlockAt returns the block at index i, or nil if that slot is absent.
// Caller must hold the lock.
func (c *Cache) BlockAt(i int) []byte { return c.blocks[i] }

// SetBlock installs data (length must equal BlockSize, except possibly for
// the final block of a file, which callers zero-pad themselves) as the
// present contents of slot i. Caller must hold the lock.
func (c *Cache) SetBlock(i int, data []byte) { c.blocks[i] = data }

// ClearBlock marks slot i absent again, e.g. once sync has written it out.
// Caller must hold the lock.
func (c *Cache) ClearBlock(i int) { c.blocks[i] = nil }

// Resize grows or shrinks the block array to hold numBlocks slots. Growing
// never allocates block contents — new slots are absent (lazy fetch).
// Shrinking frees slots past the new length. Caller must hold the lock.
func (c *Cache) Resize(numBlocks int) {
	if numBlocks <= len(c.blocks) {
		c.blocks = c.blocks[:numBlocks]
		return
	}
	grown := make([][]byte, numBlocks)
	copy(grown, c.blocks)
	c.blocks = grown
}

// Reset drops every block, returning the cache to empty. Caller must hold
// the lock.
func (c *Cache) Reset() {
	c.blocks = nil
}

// IsSynced reports whether every slot is absent, i.e. nothing here diverges
// from (or needs to be re-read from) the backing store. Caller must hold
// the lock.
func (c *Cache) IsSynced() bool {
	for _, b := range c.blocks {
		if b != nil {
			return false
		}
	}
	return true
}

// AllocBlock returns a fresh zero-filled block of BlockSize bytes, the
// shape every present slot must have.
func (c *Cache) AllocBlock() []byte {
	return make([]byte, c.blockSize)
}
