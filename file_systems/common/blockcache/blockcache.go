// Package blockcache provides a block-oriented cache holding a disk image in
// memory. It tracks which blocks have been modified so that only those are
// written back to storage.
//
// All block indices begin at 0.

package blockcache

import (
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/fatshell"
	c "github.com/dargueta/fatshell/file_systems/common"
)

// FetchBlockCallback is a pointer to a function that writes the contents of a
// single block from the backing storage into `buffer`. The following guarantees
// apply:
//
// - `blockIndex` is in the range [0, TotalBlocks).
// - `buffer` is always BytesPerBlock bytes.
type FetchBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

// FlushBlockCallback is a pointer to a function that writes the contents of the
// given buffer to a block in the backing storage. All restrictions and
// guarantees in [FetchBlockCallback] apply here too.
type FlushBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

type BlockCache struct {
	loadedBlocks  bitmap.Bitmap
	dirtyBlocks   bitmap.Bitmap
	fetch         FetchBlockCallback
	flush         FlushBlockCallback
	bytesPerBlock uint
	totalBlocks   uint
	data          []byte
}

// New creates a fixed-size BlockCache. `fetchCb` reads a single block from the
// backing storage and `flushCb` writes one back.
func New(
	bytesPerBlock uint,
	totalBlocks uint,
	fetchCb FetchBlockCallback,
	flushCb FlushBlockCallback,
) *BlockCache {
	return &BlockCache{
		loadedBlocks:  bitmap.New(int(totalBlocks)),
		dirtyBlocks:   bitmap.New(int(totalBlocks)),
		data:          make([]byte, int(bytesPerBlock*totalBlocks)),
		fetch:         fetchCb,
		flush:         flushCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// WrapStream creates a [BlockCache] over the first `totalBlocks` blocks of any
// [io.ReadWriteSeeker].
func WrapStream(stream io.ReadWriteSeeker, bytesPerBlock uint, totalBlocks uint) *BlockCache {
	// This function performs the function of the read and write callbacks. It's
	// put into one function because reading and writing differ only by a single
	// method call on the stream.
	runCb := func(block c.LogicalBlock, buffer []byte, read bool) error {
		err := seekToBlock(stream, block, c.LogicalBlock(totalBlocks), bytesPerBlock)
		if err != nil {
			return err
		}

		if read {
			// A short final block is left zero-filled.
			_, err = io.ReadFull(stream, buffer)
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				err = nil
			}
		} else {
			_, err = stream.Write(buffer)
		}
		return err
	}

	fetchCb := func(block c.LogicalBlock, buffer []byte) error {
		return runCb(block, buffer, true)
	}

	flushCb := func(block c.LogicalBlock, buffer []byte) error {
		return runCb(block, buffer, false)
	}

	return New(bytesPerBlock, totalBlocks, fetchCb, flushCb)
}

// seekToBlock sets the stream pointer for a stream to the offset of a block.
func seekToBlock(stream io.Seeker, block, totalBlocks c.LogicalBlock, bytesPerBlock uint) error {
	if block >= totalBlocks {
		return fatshell.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"invalid block number: %d not in range [0, %d)",
				block,
				totalBlocks,
			),
		)
	}

	blockOffset := int64(block) * int64(bytesPerBlock)
	_, err := stream.Seek(blockOffset, io.SeekStart)
	return err
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

// checkBounds verifies that `bufferSize` bytes can be accessed in the cache
// starting from block `start`. The starting block must exist even if
// `bufferSize` is 0.
func (cache *BlockCache) checkBounds(start c.LogicalBlock, bufferSize uint) error {
	numBlocks := cache.LengthToNumBlocks(bufferSize)

	if uint(start) >= cache.totalBlocks || uint(start)+numBlocks > cache.totalBlocks {
		return fatshell.ErrResultOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't access %d bytes (%d blocks) from block %d; range not in [0, %d)",
				bufferSize,
				numBlocks,
				start,
				cache.totalBlocks,
			),
		)
	}
	return nil
}

func (cache *BlockCache) blockSlice(blockIndex c.LogicalBlock) []byte {
	startOffset := uint(blockIndex) * cache.bytesPerBlock
	return cache.data[startOffset : startOffset+cache.bytesPerBlock]
}

// Data returns a slice of the entire cache's data. This requires loading all
// blocks not yet in the cache.
//
// If the returned slice is modified, the modified blocks MUST be marked as
// dirty.
func (cache *BlockCache) Data() ([]byte, error) {
	err := cache.loadAll()
	if err != nil {
		return nil, err
	}
	return cache.data, nil
}

// loadBlockRange ensures that all blocks in the range [start, start + count) are
// present in the cache, and loads any missing ones from storage.
func (cache *BlockCache) loadBlockRange(start c.LogicalBlock, count uint) error {
	err := cache.checkBounds(start, count*cache.bytesPerBlock)
	if err != nil {
		return err
	}

	for blockIndex := start; uint(blockIndex) < uint(start)+count; blockIndex++ {
		// Dirty blocks are loaded by definition, so we only need to check
		// `loadedBlocks`.
		if cache.loadedBlocks.Get(int(blockIndex)) {
			continue
		}

		err = cache.fetch(blockIndex, cache.blockSlice(blockIndex))
		if err != nil {
			return fatshell.ErrIOFailed.Wrap(
				fmt.Errorf("failed to load block %d from source: %w", blockIndex, err))
		}

		cache.loadedBlocks.Set(int(blockIndex), true)
		cache.dirtyBlocks.Set(int(blockIndex), false)
	}

	return nil
}

// flushBlockRange writes out all dirty blocks (and only dirty blocks) to the
// underlying storage and marks them as clean.
func (cache *BlockCache) flushBlockRange(start c.LogicalBlock, count uint) error {
	err := cache.checkBounds(start, count*cache.bytesPerBlock)
	if err != nil {
		return err
	}

	for blockIndex := start; uint(blockIndex) < uint(start)+count; blockIndex++ {
		// Missing blocks are considered clean, so this skips them too.
		if !cache.dirtyBlocks.Get(int(blockIndex)) {
			continue
		}

		err = cache.flush(blockIndex, cache.blockSlice(blockIndex))
		if err != nil {
			return fatshell.ErrIOFailed.Wrap(
				fmt.Errorf("failed to flush block %d to storage: %w", blockIndex, err))
		}

		cache.dirtyBlocks.Set(int(blockIndex), false)
	}

	return nil
}

// loadAll ensures all missing blocks are loaded from storage into the cache.
func (cache *BlockCache) loadAll() error {
	if cache.totalBlocks == 0 {
		return nil
	}
	return cache.loadBlockRange(0, cache.totalBlocks)
}

// Flush writes all dirty blocks from the cache into storage, and marks them as
// clean.
func (cache *BlockCache) Flush() error {
	if cache.totalBlocks == 0 {
		return nil
	}
	return cache.flushBlockRange(0, cache.totalBlocks)
}

// MarkBlockRangeDirty marks a range of blocks as modified. They will be written
// out to the backing storage on the next call to [BlockCache.Flush].
func (cache *BlockCache) MarkBlockRangeDirty(start c.LogicalBlock, count uint) error {
	err := cache.checkBounds(start, count*cache.bytesPerBlock)
	if err != nil {
		return err
	}

	for i := uint(0); i < count; i++ {
		bitIndex := int(start) + int(i)
		cache.dirtyBlocks.Set(bitIndex, true)
		cache.loadedBlocks.Set(bitIndex, true)
	}
	return nil
}

// MarkByteRangeDirty marks every block overlapping `length` bytes starting at
// byte `offset` as modified.
func (cache *BlockCache) MarkByteRangeDirty(offset int64, length int) error {
	if length == 0 {
		return nil
	}
	if offset < 0 || length < 0 {
		return fatshell.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid byte range: %d bytes at offset %d", length, offset))
	}

	bytesPerBlock := int64(cache.bytesPerBlock)
	firstBlock := offset / bytesPerBlock
	lastBlock := (offset + int64(length) - 1) / bytesPerBlock
	return cache.MarkBlockRangeDirty(
		c.LogicalBlock(firstBlock), uint(lastBlock-firstBlock+1))
}

// DirtyBlocks returns the number of blocks waiting to be flushed.
func (cache *BlockCache) DirtyBlocks() uint {
	total := uint(0)
	for i := 0; i < int(cache.totalBlocks); i++ {
		if cache.dirtyBlocks.Get(i) {
			total++
		}
	}
	return total
}
