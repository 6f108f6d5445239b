// Package blockcache provides a fixed-capacity, block-granular buffer that
// loads its contents from backing storage on demand. File systems use it as the
// arena for metadata loaded at mount time.
//
// All block indices begin at 0.
package blockcache

import (
	"fmt"

	"github.com/andreitdr/MiniOS"
	c "github.com/andreitdr/MiniOS/file_systems/common"
	"github.com/boljen/go-bitmap"
)

// FetchBlockCallback is a pointer to a function that writes the contents of a
// single block from the backing storage into `buffer`. The following guarantees
// apply:
//
// - `blockIndex` is in the range [0, TotalBlocks).
// - `buffer` is always BytesPerBlock bytes.
type FetchBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

type BlockCache struct {
	loadedBlocks  bitmap.Bitmap
	fetch         FetchBlockCallback
	bytesPerBlock uint
	totalBlocks   uint
	data          []byte
}

// New creates a new BlockCache. The whole buffer is allocated up front; nothing
// is fetched until it's accessed.
func New(bytesPerBlock uint, totalBlocks uint, fetchCb FetchBlockCallback) *BlockCache {
	return &BlockCache{
		loadedBlocks:  bitmap.NewSlice(int(totalBlocks)),
		data:          make([]byte, int(bytesPerBlock*totalBlocks)),
		fetch:         fetchCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// WrapDevice creates a [BlockCache] over `totalBlocks` consecutive sectors of
// `device`, starting at `firstLBA`.
func WrapDevice(device minios.SectorDevice, firstLBA uint32, totalBlocks uint) *BlockCache {
	return New(minios.SectorSize, totalBlocks, c.SectorFetcher(device, firstLBA))
}

// BytesPerBlock returns the size of a single block, in bytes.
func (cache *BlockCache) BytesPerBlock() uint {
	return cache.bytesPerBlock
}

// TotalBlocks returns the size of the cache, in blocks.
func (cache *BlockCache) TotalBlocks() uint {
	return cache.totalBlocks
}

// Size gives the size of the cache, in bytes (not blocks!).
func (cache *BlockCache) Size() int64 {
	return int64(cache.bytesPerBlock) * int64(cache.totalBlocks)
}

// LengthToNumBlocks gives the minimum number of blocks required to hold the
// given number of bytes.
func (cache *BlockCache) LengthToNumBlocks(size uint) uint {
	return (size + cache.bytesPerBlock - 1) / cache.bytesPerBlock
}

// IsLoaded reports whether block `index` has been fetched.
func (cache *BlockCache) IsLoaded(index c.LogicalBlock) bool {
	if uint(index) >= cache.totalBlocks {
		return false
	}
	return cache.loadedBlocks.Get(int(index))
}

// LoadedBlocks gives the number of blocks fetched so far.
func (cache *BlockCache) LoadedBlocks() uint {
	count := uint(0)
	for i := 0; i < int(cache.totalBlocks); i++ {
		if cache.loadedBlocks.Get(i) {
			count++
		}
	}
	return count
}

// checkBounds verifies that `count` blocks can be accessed starting from block
// `start`. If not, it returns an error describing the exact conditions.
func (cache *BlockCache) checkBounds(start c.LogicalBlock, count uint) error {
	if uint(start) >= cache.totalBlocks || uint(start)+count > cache.totalBlocks {
		return minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"can't access %d blocks from block %d; range not in [0, %d)",
				count,
				start,
				cache.totalBlocks,
			),
		)
	}
	return nil
}

// GetSlice returns a slice pointing to the cache's storage, beginning at block
// `start` and continuing for `count` blocks. Missing blocks are fetched first.
func (cache *BlockCache) GetSlice(start c.LogicalBlock, count uint) ([]byte, error) {
	err := cache.loadBlockRange(start, count)
	if err != nil {
		return nil, err
	}
	return cache.slice(start, count), nil
}

// Data returns a slice of the entire cache's data, loading all blocks not yet
// in the cache.
func (cache *BlockCache) Data() ([]byte, error) {
	err := cache.LoadAll()
	if err != nil {
		return nil, err
	}
	return cache.data, nil
}

// LoadAll fetches every block not yet in the cache. It stops at the first
// failure; blocks fetched before it stay loaded.
func (cache *BlockCache) LoadAll() error {
	if cache.totalBlocks == 0 {
		return nil
	}
	return cache.loadBlockRange(0, cache.totalBlocks)
}

// Invalidate forgets every loaded block so that the next access fetches it
// again.
func (cache *BlockCache) Invalidate() {
	cache.loadedBlocks = bitmap.NewSlice(int(cache.totalBlocks))
}

// ReadAt copies data out of the cache into `buffer`, beginning at block
// `start`. `buffer` does not need to be an exact multiple of the block size.
// Reading past the end of the cache fails without copying anything.
func (cache *BlockCache) ReadAt(buffer []byte, start c.LogicalBlock) (int, error) {
	numBlocks := cache.LengthToNumBlocks(uint(len(buffer)))
	if err := cache.checkBounds(start, numBlocks); err != nil {
		return 0, err
	}

	source, err := cache.GetSlice(start, numBlocks)
	if err != nil {
		return 0, err
	}
	return copy(buffer, source), nil
}

func (cache *BlockCache) slice(start c.LogicalBlock, count uint) []byte {
	startOffset := uint(start) * cache.bytesPerBlock
	endOffset := startOffset + (count * cache.bytesPerBlock)
	return cache.data[startOffset:endOffset]
}

// loadBlockRange ensures that all blocks in the range [start, start + count) are
// present in the cache, and loads any missing ones from storage.
func (cache *BlockCache) loadBlockRange(start c.LogicalBlock, count uint) error {
	err := cache.checkBounds(start, count)
	if err != nil {
		return err
	}

	for blockIndex := start; uint(blockIndex) < uint(start)+count; blockIndex++ {
		if cache.loadedBlocks.Get(int(blockIndex)) {
			continue
		}

		// Load the block from backing storage directly into the cache.
		err = cache.fetch(blockIndex, cache.slice(blockIndex, 1))
		if err != nil {
			return fmt.Errorf("failed to load block %d from source: %w", blockIndex, err)
		}
		cache.loadedBlocks.Set(int(blockIndex), true)
	}
	return nil
}
