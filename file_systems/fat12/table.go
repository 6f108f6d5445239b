package fat12

import (
	"fmt"

	"github.com/andreitdr/MiniOS"
)

// Cluster is an index into the allocation table.
type Cluster uint16

const (
	// FreeCluster marks an unallocated cluster.
	FreeCluster Cluster = 0x000
	// FirstDataCluster is the number of the first cluster in the data region.
	// Entries 0 and 1 are reserved.
	FirstDataCluster Cluster = 2
	// MaxDataCluster is the highest cluster number FAT12 can address.
	MaxDataCluster Cluster = 0xFF6
	// BadCluster marks a cluster with a defective sector.
	BadCluster Cluster = 0xFF7
	// EndOfChain is the sentinel for the last cluster of a file. Every value in
	// [0xFF8, 0xFFF] decodes to it.
	EndOfChain Cluster = 0xFFF

	endOfChainMin = 0xFF8
	entryMask     = 0xFFF

	// Values in [0xFF0, 0xFF6] are reserved and never name a cluster.
	reservedMin = 0xFF0
)

// AllocationTable is a raw FAT12 table: 12-bit entries packed three bytes to
// every two entries.
//
// Entry n starts at byte n*3/2. Even entries take all of that byte as bits
// 0-7 and the low nibble of the next byte as bits 8-11. Odd entries take the
// high nibble of their first byte as bits 0-3 and all of the next byte as
// bits 4-11.
type AllocationTable []byte

// TableSizeForEntries gives the number of bytes needed to hold `entries`
// packed 12-bit entries.
func TableSizeForEntries(entries int) int {
	return (entries*3 + 1) / 2
}

// Capacity gives the number of entries the table can hold.
func (t AllocationTable) Capacity() int {
	return len(t) * 2 / 3
}

func (t AllocationTable) offset(n Cluster) (int, error) {
	offset := int(n) * 3 / 2
	if offset+1 >= len(t) {
		return 0, minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("cluster %d is outside a table of %d entries", n, t.Capacity()))
	}
	return offset, nil
}

// Get returns the raw 12-bit value of entry `n`.
func (t AllocationTable) Get(n Cluster) (uint16, error) {
	offset, err := t.offset(n)
	if err != nil {
		return 0, err
	}

	if n&1 == 0 {
		return uint16(t[offset]) | uint16(t[offset+1]&0x0F)<<8, nil
	}
	return uint16(t[offset]>>4) | uint16(t[offset+1])<<4, nil
}

// Set stores the low 12 bits of `value` in entry `n`, leaving the neighboring
// entries' nibbles untouched.
func (t AllocationTable) Set(n Cluster, value uint16) error {
	offset, err := t.offset(n)
	if err != nil {
		return err
	}

	value &= entryMask
	if n&1 == 0 {
		t[offset] = uint8(value)
		t[offset+1] = t[offset+1]&0xF0 | uint8(value>>8)
	} else {
		t[offset] = t[offset]&0x0F | uint8(value<<4)
		t[offset+1] = uint8(value >> 4)
	}
	return nil
}

// Next returns the cluster that follows `n` in its chain, or [EndOfChain].
// Links to free, bad or reserved clusters mean the chain is broken and are
// reported as [minios.ErrFileSystemCorrupted].
func (t AllocationTable) Next(n Cluster) (Cluster, error) {
	if n < FirstDataCluster || n > MaxDataCluster {
		return 0, minios.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("cluster %d is not a data cluster", n))
	}

	value, err := t.Get(n)
	if err != nil {
		return 0, minios.ErrFileSystemCorrupted.Wrap(err)
	}

	switch {
	case value >= endOfChainMin:
		return EndOfChain, nil
	case value == uint16(BadCluster):
		return 0, minios.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("cluster %d links to a bad cluster", n))
	case value >= reservedMin:
		return 0, minios.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("cluster %d links to reserved value %#03x", n, value))
	case value < uint16(FirstDataCluster) || value > uint16(MaxDataCluster):
		return 0, minios.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("cluster %d links to invalid cluster %#03x", n, value))
	}
	return Cluster(value), nil
}

// Chain returns every cluster of the chain beginning at `start`, in order.
func (t AllocationTable) Chain(start Cluster) ([]Cluster, error) {
	chain := []Cluster{}
	for current := start; current != EndOfChain; {
		if len(chain) > t.Capacity() {
			return chain, minios.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf("cycle in cluster chain starting at %d", start))
		}
		chain = append(chain, current)

		next, err := t.Next(current)
		if err != nil {
			return chain, err
		}
		current = next
	}
	return chain, nil
}
