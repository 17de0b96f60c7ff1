// Package zstore implements §4.5's compressed-stream store: a
// (size, read, write, set_size) file-like interface backed by a gzip or
// bzip2 compressed linear stream, with a second copy-on-write block cache
// (8 KiB blocks, distinct from the per-node 1 KiB cache in filecache) over
// the uncompressed view.
package zstore

import "io"

// Kind selects the compression framing a Store decodes and (re-)encodes.
type Kind int

const (
	KindPlain Kind = iota
	KindGzip
	KindBzip2
)

func (k Kind) String() string {
	switch k {
	case KindGzip:
		return "gzip"
	case KindBzip2:
		return "bzip2"
	default:
		return "plain"
	}
}

// BlockSize is the compressed store's cache granularity (§4.5: "block size
// 8 KiB"), eight times larger than filecache.DefaultBlockSize since the
// compressed store caches a whole archive's uncompressed bytes rather
// than a single small file's.
const BlockSize = 8192

// Backing is the raw container the compressed (or, for KindPlain,
// uncompressed) bytes live in — ordinarily the mounted archive's *os.File.
type Backing interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
}

func numBlocksFor(size int64, blockSize int) int {
	if size <= 0 {
		return 0
	}
	bs := int64(blockSize)
	return int((size + bs - 1) / bs)
}
