package testing

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/dargueta/fatshell"
	c "github.com/dargueta/fatshell/file_systems/common"
	"github.com/dargueta/fatshell/file_systems/common/blockcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateRandomImage returns `totalBlocks * bytesPerBlock` random bytes, or
// aborts the test.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)
	_, err := rand.Read(backingData)
	require.NoErrorf(
		t, err, "can't fill %d blocks of %d bytes with random data", totalBlocks, bytesPerBlock)
	return backingData
}

// CreateDefaultCache creates a fixed-size block cache over `backingData`, or
// over random bytes if `backingData` is nil.
//
// The callbacks fail the test on any access outside the image, and on any
// flush at all if `writable` is false. Tests that need those accesses to fail
// quietly have to build their own cache with [blockcache.New].
func CreateDefaultCache(
	bytesPerBlock,
	totalBlocks uint,
	writable bool,
	backingData []byte,
	t *testing.T,
) *blockcache.BlockCache {
	if backingData == nil {
		backingData = CreateRandomImage(bytesPerBlock, totalBlocks, t)
	}

	// blockSlice returns the part of the backing data holding `index`, or an
	// error if it's out of bounds.
	blockSlice := func(operation string, index c.LogicalBlock) ([]byte, error) {
		if uint(index) >= totalBlocks {
			message := fmt.Sprintf(
				"%s outside the image: block %d not in [0, %d)", operation, index, totalBlocks)
			t.Error(message)
			return nil, fatshell.ErrIOFailed.WithMessage(message)
		}
		start := uint(index) * bytesPerBlock
		return backingData[start : start+bytesPerBlock], nil
	}

	fetch := func(index c.LogicalBlock, buffer []byte) error {
		block, err := blockSlice("read", index)
		if err == nil {
			copy(buffer, block)
		}
		return err
	}

	flush := func(index c.LogicalBlock, buffer []byte) error {
		if !writable {
			message := fmt.Sprintf("flushed block %d of a read-only image", index)
			t.Error(message)
			return fatshell.ErrReadOnlyFileSystem.WithMessage(message)
		}

		block, err := blockSlice("write", index)
		if err == nil {
			copy(block, buffer)
		}
		return err
	}

	cache := blockcache.New(bytesPerBlock, totalBlocks, fetch, flush)
	assert.EqualValues(t, bytesPerBlock, cache.BytesPerBlock(), "wrong bytes per block")
	assert.EqualValues(t, totalBlocks, cache.TotalBlocks(), "wrong total blocks")
	assert.EqualValues(t, bytesPerBlock*totalBlocks, cache.Size(), "wrong image size")
	return cache
}
