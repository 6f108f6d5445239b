// Package common contains definitions of fundamental types and functions used
// across file system implementations.
package common

import (
	"fmt"

	"github.com/andreitdr/MiniOS"
)

// LogicalBlock is a block index relative to the start of some on-disk object,
// such as the allocation table or the root directory.
type LogicalBlock uint

// SectorFetcher returns a function that reads sector `firstLBA + block` from
// `device` into a buffer of exactly [minios.SectorSize] bytes.
func SectorFetcher(
	device minios.SectorDevice, firstLBA uint32,
) func(block LogicalBlock, buffer []byte) error {
	return func(block LogicalBlock, buffer []byte) error {
		if len(buffer) != minios.SectorSize {
			return minios.ErrInvalidArgument.WithMessage(
				fmt.Sprintf(
					"sector buffer must be %d bytes, got %d", minios.SectorSize, len(buffer)),
			)
		}
		return device.ReadSector(
			firstLBA+uint32(block), (*[minios.SectorSize]byte)(buffer))
	}
}
