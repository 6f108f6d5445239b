// Package basicstream implements a read-only, file-like view of a block
// cache.
package basicstream

import (
	"fmt"
	"io"

	"github.com/andreitdr/MiniOS"
	c "github.com/andreitdr/MiniOS/file_systems/common"
	"github.com/andreitdr/MiniOS/file_systems/common/blockcache"
)

// BasicStream reads the first `size` bytes of a [blockcache.BlockCache] like
// a file. Blocks are fetched only when a read touches them.
type BasicStream struct {
	size     int64
	position int64
	data     *blockcache.BlockCache
}

// New creates a BasicStream over `data`. `size` must be in [0, data.Size()].
func New(size int64, data *blockcache.BlockCache) (*BasicStream, error) {
	maxSize := data.Size()
	if size < 0 || size > maxSize {
		return nil, minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid stream size: %d not in the range [0, %d]", size, maxSize))
	}
	return &BasicStream{size: size, data: data}, nil
}

func (stream *BasicStream) convertLinearAddr(offset int64) (c.LogicalBlock, uint) {
	bytesPerBlock := int64(stream.data.BytesPerBlock())
	return c.LogicalBlock(offset / bytesPerBlock), uint(offset % bytesPerBlock)
}

func (stream *BasicStream) Read(buffer []byte) (int, error) {
	totalRead, err := stream.ReadAt(buffer, stream.position)
	stream.position += int64(totalRead)
	return totalRead, err
}

// ReadAt implements [io.ReaderAt]. A read that stops at the end of the stream
// returns the bytes it got along with [io.EOF].
func (stream *BasicStream) ReadAt(buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, minios.ErrInvalidOffset.WithMessage(fmt.Sprintf("negative offset %d", offset))
	}
	if len(buffer) == 0 {
		return 0, nil
	}
	if offset >= stream.size {
		return 0, io.EOF
	}

	bufLen := int64(len(buffer))
	numBytesToRead := bufLen
	if offset+bufLen > stream.size {
		numBytesToRead = stream.size - offset
	}

	firstBlock, firstBlockOffset := stream.convertLinearAddr(offset)
	lastBlock, _ := stream.convertLinearAddr(offset + numBytesToRead - 1)

	sourceData, err := stream.data.GetSlice(firstBlock, uint(lastBlock-firstBlock)+1)
	if err != nil {
		return 0, err
	}
	copy(buffer, sourceData[firstBlockOffset:firstBlockOffset+uint(numBytesToRead)])

	if numBytesToRead < bufLen {
		return int(numBytesToRead), io.EOF
	}
	return int(numBytesToRead), nil
}

// Seek moves the stream pointer to `offset` bytes from the origin given by
// `whence`. Seeking past the end is allowed; reads there return [io.EOF].
func (stream *BasicStream) Seek(offset int64, whence int) (int64, error) {
	var absoluteOffset int64

	switch whence {
	case io.SeekStart:
		absoluteOffset = offset
	case io.SeekCurrent:
		absoluteOffset = stream.position + offset
	case io.SeekEnd:
		absoluteOffset = stream.size + offset
	default:
		return stream.position, minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid seek origin: %d", whence))
	}

	if absoluteOffset < 0 {
		return stream.position, minios.ErrInvalidOffset.WithMessage(
			fmt.Sprintf("result of Seek(offset=%d, whence=%d) is negative", offset, whence))
	}

	stream.position = absoluteOffset
	return absoluteOffset, nil
}

// Size returns the size of the stream, in bytes.
func (stream *BasicStream) Size() int64 {
	return stream.size
}

// Tell returns the current stream position. It's a more concise way of calling
// `Seek(0, io.SeekCurrent)`.
func (stream *BasicStream) Tell() int64 {
	return stream.position
}

// WriteTo copies the rest of the stream to `w` one block at a time.
func (stream *BasicStream) WriteTo(w io.Writer) (int64, error) {
	buffer := make([]byte, stream.data.BytesPerBlock())
	totalWritten := int64(0)

	for {
		blockSize, readErr := stream.Read(buffer)
		if blockSize > 0 {
			written, err := w.Write(buffer[:blockSize])
			totalWritten += int64(written)
			if err != nil {
				return totalWritten, err
			}
		}

		if readErr == io.EOF {
			return totalWritten, nil
		} else if readErr != nil {
			return totalWritten, readErr
		}
	}
}
