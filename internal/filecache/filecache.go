// Package filecache implements §4.3's per-file block cache on top of the
// generic blockcache.Cache: lazy fetch from the archive, partial writes,
// truncation/grow, and the cache-ahead operation the sync pass uses to
// protect still-unread source bytes.
package filecache

import (
	"github.com/go-errors/errors"

	"github.com/archfs/tarfs/internal/blockcache"
)

// DefaultBlockSize is the per-node cache's compile-time block size (§3:
// "default 2^10 bytes").
const DefaultBlockSize = 1024

// Source fetches bytes directly from wherever a node's unmodified payload
// actually lives (the tar archive's backing store, at the node's item
// offset). A nil Source means the node is synthetic: it has no archive
// backing, and every absent block reads as zero.
type Source interface {
	ReadAt(off int64, length int) ([]byte, error)
}

// FileCache is one node's cache: the block array plus the bookkeeping
// (current size, and the size the node had when last read from or
// written to the archive) needed to decide whether an absent block's
// contents must be fetched or may simply be zero-filled.
type FileCache struct {
	blocks   *blockcache.Cache
	size     int64
	origSize int64
}

func New(origSize int64) *FileCache {
	return &FileCache{
		blocks:   blockcache.New(DefaultBlockSize),
		size:     origSize,
		origSize: origSize,
	}
}

func (fc *FileCache) Size() int64 { return fc.size }

func (fc *FileCache) blockSize() int64 { return int64(fc.blocks.BlockSize()) }

func (fc *FileCache) withinOriginal(blockIdx int) bool {
	return int64(blockIdx)*fc.blockSize() < fc.origSize
}

func (fc *FileCache) numBlocksFor(size int64) int {
	if size <= 0 {
		return 0
	}
	bs := fc.blockSize()
	return int((size + bs - 1) / bs)
}

// Read copies up to amount bytes starting at off into a fresh buffer,
// fetching through source whenever a needed block is absent but lies
// within the original archive payload, without ever materializing that
// block in the cache (§4.3: "fetch the requested sub-range directly from
// the backing store without materialising the block").
func (fc *FileCache) Read(off int64, amount int, source Source) ([]byte, error) {
	fc.blocks.Lock()
	defer fc.blocks.Unlock()

	if off >= fc.size || amount <= 0 {
		return nil, nil
	}
	n := int64(amount)
	if fc.size-off < n {
		n = fc.size - off
	}

	out := make([]byte, n)
	bs := fc.blockSize()
	pos := int64(0)
	for pos < n {
		abs := off + pos
		blockIdx := int(abs / bs)
		blockOff := abs % bs
		chunk := bs - blockOff
		if n-pos < chunk {
			chunk = n - pos
		}

		if blockIdx < fc.blocks.NumBlocks() {
			if block := fc.blocks.BlockAt(blockIdx); block != nil {
				copy(out[pos:pos+chunk], block[blockOff:blockOff+chunk])
				pos += chunk
				continue
			}
		}

		if source != nil && fc.withinOriginal(blockIdx) {
			data, err := source.ReadAt(abs, int(chunk))
			if err != nil {
				return nil, err
			}
			copy(out[pos:pos+chunk], data)
		}
		// else: synthetic or past the original payload — leave zero-filled.
		pos += chunk
	}
	return out, nil
}

// Write copies data into the cache starting at off, growing the file
// first if the write extends past the current size or the cache is
// empty. Returns the number of bytes actually accepted: all of them,
// unless SetSize fails partway, in which case it is the amount copied
// before the failure (§4.3).
func (fc *FileCache) Write(off int64, data []byte, source Source) (int, error) {
	fc.blocks.Lock()
	defer fc.blocks.Unlock()

	needed := off + int64(len(data))
	if needed > fc.size || fc.blocks.NumBlocks() == 0 {
		if needed < fc.size {
			needed = fc.size
		}
		if err := fc.setSizeLocked(needed); err != nil {
			return 0, err
		}
	}

	bs := fc.blockSize()
	pos := 0
	for pos < len(data) {
		abs := off + int64(pos)
		blockIdx := int(abs / bs)
		blockOff := abs % bs
		chunk := bs - blockOff
		if int64(len(data)-pos) < chunk {
			chunk = int64(len(data) - pos)
		}

		block := fc.blocks.BlockAt(blockIdx)
		if block == nil {
			block = fc.blocks.AllocBlock()
			if source != nil && fc.withinOriginal(blockIdx) {
				fetched, err := source.ReadAt(int64(blockIdx)*bs, len(block))
				if err != nil {
					return pos, err
				}
				copy(block, fetched)
			}
			fc.blocks.SetBlock(blockIdx, block)
		}
		copy(block[blockOff:blockOff+chunk], data[pos:pos+int(chunk)])
		pos += int(chunk)
	}
	return pos, nil
}

// SetSize grows or shrinks the file. Growing past existing cache capacity
// reallocates the block array and zero-extends it without allocating any
// block contents (lazy). Shrinking frees slots past the new last block.
func (fc *FileCache) SetSize(newSize int64) error {
	fc.blocks.Lock()
	defer fc.blocks.Unlock()
	return fc.setSizeLocked(newSize)
}

func (fc *FileCache) setSizeLocked(newSize int64) error {
	if newSize < 0 {
		return errors.New("negative size")
	}
	fc.blocks.Resize(fc.numBlocksFor(newSize))
	fc.size = newSize
	return nil
}

// IsSynced reports whether every block slot is absent, meaning reads would
// see exactly the archive's unmodified bytes.
func (fc *FileCache) IsSynced() bool {
	fc.blocks.Lock()
	defer fc.blocks.Unlock()
	return fc.blocks.IsSynced()
}

// CacheAhead force-materializes every currently-absent block covering
// [0, amount), fetching from source. The sync pass calls this just before
// overwriting a region of the backing store, so any bytes in that region
// it hasn't already cached get preserved first (§4.3, §4.6.4).
func (fc *FileCache) CacheAhead(amount int64, source Source) error {
	fc.blocks.Lock()
	defer fc.blocks.Unlock()

	if source == nil {
		return nil
	}
	bs := fc.blockSize()
	numBlocks := fc.numBlocksFor(amount)
	if numBlocks > fc.blocks.NumBlocks() {
		fc.blocks.Resize(numBlocks)
	}
	for i := 0; i < numBlocks; i++ {
		if fc.blocks.BlockAt(i) != nil {
			continue
		}
		if !fc.withinOriginal(i) {
			continue
		}
		block := fc.blocks.AllocBlock()
		data, err := source.ReadAt(int64(i)*bs, len(block))
		if err != nil {
			return err
		}
		copy(block, data)
		fc.blocks.SetBlock(i, block)
	}
	return nil
}

// Reset clears every block (dirty or not) and rebases origSize to the
// file's current size, the way the sync pass does once it has written a
// node's data out: "free cache for node" followed by the item's orig_size
// becoming the node's current size.
func (fc *FileCache) Reset() {
	fc.blocks.Lock()
	defer fc.blocks.Unlock()
	fc.blocks.Reset()
	fc.origSize = fc.size
}
