package compression

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// maxRunLength is the longest run a single RLE8 group can encode.
const maxRunLength = 255 + 2

// CompressRLE8 run-length encodes `input` into `output` until the input is
// exhausted. It returns the number of bytes written.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	sink := bufio.NewWriter(output)
	written := int64(0)

	emit := func(value byte, runLength int) error {
		for runLength > 0 {
			var group []byte
			switch {
			case runLength == 1:
				group = []byte{value}
				runLength = 0
			case runLength >= maxRunLength:
				group = []byte{value, value, 255}
				runLength -= maxRunLength
			default:
				group = []byte{value, value, byte(runLength - 2)}
				runLength = 0
			}

			n, err := sink.Write(group)
			written += int64(n)
			if err != nil {
				return err
			}
		}
		return nil
	}

	current, err := source.ReadByte()
	if errors.Is(err, io.EOF) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("error reading input: %w", err)
	}

	runLength := 1
	for {
		next, err := source.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return written, fmt.Errorf("error reading input: %w", err)
		}

		if next == current {
			runLength++
			continue
		}
		if err = emit(current, runLength); err != nil {
			return written, err
		}
		current, runLength = next, 1
	}

	if err = emit(current, runLength); err != nil {
		return written, err
	}
	return written, sink.Flush()
}

// DecompressRLE8 reverses [CompressRLE8]. It returns the number of bytes
// written to `output`.
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	sink := bufio.NewWriter(output)
	written := int64(0)
	previous := -1

	for {
		value, err := source.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return written, fmt.Errorf("error reading input: %w", err)
		}

		repeat := 1
		if int(value) == previous {
			// Second byte of a pair: a repeat count follows.
			extra, err := source.ReadByte()
			if errors.Is(err, io.EOF) {
				return written, fmt.Errorf(
					"%w: missing repeat count after two %02x bytes",
					io.ErrUnexpectedEOF,
					value,
				)
			} else if err != nil {
				return written, fmt.Errorf("error reading input: %w", err)
			}

			// The first byte of the pair was already written out.
			repeat += int(extra)
			previous = -1
		} else {
			previous = int(value)
		}

		for i := 0; i < repeat; i++ {
			if err = sink.WriteByte(value); err != nil {
				return written, fmt.Errorf("failed to write to output: %w", err)
			}
			written++
		}
	}
	return written, sink.Flush()
}
