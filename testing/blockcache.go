package testing

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/andreitdr/MiniOS"
	c "github.com/andreitdr/MiniOS/file_systems/common"
	"github.com/andreitdr/MiniOS/file_systems/common/blockcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateRandomImage creates an image with the given number of blocks and bytes
// per block. It is guaranteed to either return a valid slice or fail the test
// and abort.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks of size %d with random bytes",
		totalBlocks,
		bytesPerBlock,
	)
	return backingData
}

// CreateDefaultCache creates a block cache over `backingData`, or over random
// data if `backingData` is nil. The returned counter is incremented on every
// fetch.
//
// The fetch handler fails the test if the cache asks for a block outside
// [0, totalBlocks), so negative conditions must be checked by the caller.
func CreateDefaultCache(
	bytesPerBlock,
	totalBlocks uint,
	backingData []byte,
	t *testing.T,
) (*blockcache.BlockCache, *int) {
	if backingData == nil {
		backingData = CreateRandomImage(bytesPerBlock, totalBlocks, t)
	}

	fetches := new(int)
	fetchCallback := func(blockIndex c.LogicalBlock, buffer []byte) error {
		if blockIndex >= c.LogicalBlock(totalBlocks) {
			message := fmt.Sprintf(
				"attempted to read outside bounds: block %d not in [0, %d)",
				blockIndex,
				totalBlocks,
			)
			t.Error(message)
			return minios.ErrIOFailure.WithMessage(message)
		}

		*fetches++
		start := blockIndex * c.LogicalBlock(bytesPerBlock)
		copy(buffer, backingData[start:start+c.LogicalBlock(bytesPerBlock)])
		return nil
	}

	cache := blockcache.New(bytesPerBlock, totalBlocks, fetchCallback)
	assert.EqualValues(t, bytesPerBlock, cache.BytesPerBlock(), "wrong bytes per block")
	assert.EqualValues(t, totalBlocks, cache.TotalBlocks(), "wrong total blocks")
	assert.EqualValues(t, bytesPerBlock*totalBlocks, cache.Size(), "total size is wrong")
	return cache, fetches
}
