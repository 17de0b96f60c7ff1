package zstore

import (
	"bytes"
	"sync"

	"github.com/archfs/tarfs/internal/blockcache"
)

// Store presents a (size, read, write, set_size) file interface over a
// Backing that may hold raw bytes (KindPlain) or a gzip/bzip2 compressed
// stream. It owns its own lock: §5's lock order lists "compressed-store
// cache/stream locks" as one step, and every Store method that touches
// either the cache or the decode stream takes s.mu for its own duration,
// the same way filecache.FileCache self-locks per call.
type Store struct {
	mu sync.Mutex

	kind        Kind
	backing     Backing
	backingSize int64

	cache    *blockcache.Cache
	size     int64 // current logical (uncompressed) size
	origSize int64 // size as of the last Sync (or initial open)
	dirty    bool

	read *decodeStream // shared forward-only decoder used to service cache misses
}

// Open discovers a store's logical size (by decoding the whole stream
// once, for KindGzip/KindBzip2) and prepares its block cache.
// backingSize is the current length of the backing container in bytes.
func Open(backing Backing, kind Kind, backingSize int64) (*Store, error) {
	s := &Store{
		kind:        kind,
		backing:     backing,
		backingSize: backingSize,
		cache:       blockcache.New(BlockSize),
	}

	if kind == KindPlain {
		s.size = backingSize
		s.origSize = backingSize
		s.cache.Resize(numBlocksFor(s.size, BlockSize))
		return s, nil
	}

	s.read = &decodeStream{kind: kind, backing: backing, backingSize: backingSize}
	size, err := s.read.drainSize()
	if err != nil {
		return nil, err
	}
	s.size = size
	s.origSize = size

	// §4.5: "allocate an initial block vector sized to
	// 2 * ceil(compressed_size / 8K), growing on demand." Go's cache
	// resizes cheaply (it is just slice growth), so we size the vector to
	// whichever is larger: that heuristic, or what the discovered length
	// actually needs.
	hinted := 2 * numBlocksFor(backingSize, BlockSize)
	needed := numBlocksFor(s.size, BlockSize)
	if hinted > needed {
		needed = hinted
	}
	s.cache.Resize(needed)
	return s, nil
}

func (s *Store) Kind() Kind { return s.kind }

func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Store) withinOriginal(blockStart int64) bool {
	return blockStart < s.origSize
}

// Read copies up to amount bytes starting at off, servicing cache misses
// by decoding (or, for KindPlain, reading) directly into the caller's
// buffer without ever materialising the block (§4.5: "block-miss ->
// seek+decode into the caller's buffer directly").
func (s *Store) Read(off int64, amount int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if off >= s.size || amount <= 0 {
		return nil, nil
	}
	n := int64(amount)
	if s.size-off < n {
		n = s.size - off
	}
	out := make([]byte, n)

	pos := int64(0)
	for pos < n {
		abs := off + pos
		idx := int(abs / BlockSize)
		blockOff := abs % BlockSize
		chunk := int64(BlockSize) - blockOff
		if n-pos < chunk {
			chunk = n - pos
		}

		if idx < s.cache.NumBlocks() {
			if block := s.cache.BlockAt(idx); block != nil {
				copy(out[pos:pos+chunk], block[blockOff:blockOff+chunk])
				pos += chunk
				continue
			}
		}

		if s.kind == KindPlain {
			if _, err := s.backing.ReadAt(out[pos:pos+chunk], abs); err != nil {
				return nil, mapCodecError(s.kind, err)
			}
		} else if err := s.read.readAt(out[pos:pos+chunk], abs); err != nil {
			return nil, err
		}
		pos += chunk
	}
	return out, nil
}

// Write copies data into the cache at off, growing the logical size
// first if needed. A block-miss fetches the block's prior contents first
// when it falls within the original payload ("fetch-then-overwrite"), or
// starts zero-filled otherwise ("allocate-zero-then-overwrite").
func (s *Store) Write(off int64, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needed := off + int64(len(data))
	if needed > s.size {
		if err := s.setSizeLocked(needed); err != nil {
			return 0, err
		}
	}

	pos := 0
	for pos < len(data) {
		abs := off + int64(pos)
		idx := int(abs / BlockSize)
		blockOff := abs % BlockSize
		chunk := int64(BlockSize) - blockOff
		if int64(len(data)-pos) < chunk {
			chunk = int64(len(data) - pos)
		}

		block := s.cache.BlockAt(idx)
		if block == nil {
			block = s.cache.AllocBlock()
			blockStart := int64(idx) * BlockSize
			if s.withinOriginal(blockStart) {
				remaining := s.origSize - blockStart
				if remaining > BlockSize {
					remaining = BlockSize
				}
				if remaining > 0 {
					if err := s.fetchOriginal(block[:remaining], blockStart); err != nil {
						return pos, err
					}
				}
			}
			s.cache.SetBlock(idx, block)
		}
		copy(block[blockOff:blockOff+chunk], data[pos:pos+int(chunk)])
		pos += int(chunk)
	}
	s.dirty = true
	return pos, nil
}

func (s *Store) fetchOriginal(dst []byte, off int64) error {
	if s.kind == KindPlain {
		_, err := s.backing.ReadAt(dst, off)
		if err != nil {
			return mapCodecError(s.kind, err)
		}
		return nil
	}
	return s.read.readAt(dst, off)
}

// SetSize grows or shrinks the logical size, resizing the cache the same
// way filecache.FileCache.SetSize does: lazily for growth, by freeing
// slots past the new length for shrinkage.
func (s *Store) SetSize(newSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setSizeLocked(newSize)
}

func (s *Store) setSizeLocked(newSize int64) error {
	if newSize < 0 {
		return ErrInvalidArgument
	}
	s.cache.Resize(numBlocksFor(newSize, BlockSize))
	s.size = newSize
	s.dirty = true
	return nil
}

// Sync flushes dirty state to the backing container. For KindPlain this
// is an ordinary copy-on-write flush: only present (dirty-or-fetched)
// blocks get written back, at their own byte offsets. For the compressed
// kinds the whole stream must be regenerated (§4.5 step 1-5): a fresh
// write-stream is opened, a fresh read-stream services cache-ahead for
// any still-absent block that falls within the original payload, every
// block 0..last is emitted through the encoder, the encoder is
// finalised, and the backing container is truncated if the result is
// smaller than before.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if s.kind == KindPlain {
		return s.syncPlainLocked()
	}
	return s.syncCompressedLocked()
}

func (s *Store) syncPlainLocked() error {
	numBlocks := s.cache.NumBlocks()
	for i := 0; i < numBlocks; i++ {
		block := s.cache.BlockAt(i)
		if block == nil {
			continue
		}
		blockStart := int64(i) * BlockSize
		n := int64(BlockSize)
		if s.size-blockStart < n {
			n = s.size - blockStart
		}
		if _, err := s.backing.WriteAt(block[:n], blockStart); err != nil {
			return mapCodecError(s.kind, err)
		}
	}
	if s.size < s.backingSize {
		if err := s.backing.Truncate(s.size); err != nil {
			return mapCodecError(s.kind, err)
		}
	}
	s.backingSize = s.size
	s.origSize = s.size
	s.cache.Reset()
	s.dirty = false
	return nil
}

func (s *Store) syncCompressedLocked() error {
	ahead := &decodeStream{kind: s.kind, backing: s.backing, backingSize: s.backingSize}

	numBlocks := numBlocksFor(s.size, BlockSize)
	s.cache.Resize(numBlocks)

	// Bulk cache-ahead (§4.5's per-write cache-ahead hook, collapsed into
	// one pass since the encode pass below runs entirely against an
	// in-memory buffer rather than writing the new stream incrementally
	// over the old one): materialise every still-absent block that falls
	// within the original payload before any of it can be lost.
	for i := 0; i < numBlocks; i++ {
		if s.cache.BlockAt(i) != nil {
			continue
		}
		blockStart := int64(i) * BlockSize
		if !s.withinOriginal(blockStart) {
			continue
		}
		remaining := s.origSize - blockStart
		if remaining > BlockSize {
			remaining = BlockSize
		}
		block := s.cache.AllocBlock()
		if remaining > 0 {
			if err := ahead.readAt(block[:remaining], blockStart); err != nil {
				return err
			}
		}
		s.cache.SetBlock(i, block)
	}

	var out bytes.Buffer
	enc, err := newEncoder(s.kind, &out)
	if err != nil {
		return err
	}
	for i := 0; i < numBlocks; i++ {
		block := s.cache.BlockAt(i)
		if block == nil {
			block = s.cache.AllocBlock()
		}
		blockStart := int64(i) * BlockSize
		n := int64(BlockSize)
		if s.size-blockStart < n {
			n = s.size - blockStart
		}
		if _, err := enc.Write(block[:n]); err != nil {
			return mapCodecError(s.kind, err)
		}
	}
	if err := enc.Close(); err != nil {
		return mapCodecError(s.kind, err)
	}

	if _, err := s.backing.WriteAt(out.Bytes(), 0); err != nil {
		return mapCodecError(s.kind, err)
	}
	newLen := int64(out.Len())
	if newLen < s.backingSize {
		if err := s.backing.Truncate(newLen); err != nil {
			return mapCodecError(s.kind, err)
		}
	}
	s.backingSize = newLen
	s.origSize = s.size
	s.cache.Reset()
	s.dirty = false
	// The shared lazy-read decoder's state is invalid now that the
	// backing bytes it decodes from have changed underneath it.
	if s.read != nil {
		s.read.backingSize = newLen
		s.read.state = streamIdle
	}
	return nil
}
