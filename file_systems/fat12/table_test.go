package fat12_test

import (
	"testing"

	"github.com/andreitdr/MiniOS"
	"github.com/andreitdr/MiniOS/file_systems/fat12"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every entry of a full-size table round-trips, and writing one entry never
// disturbs the nibbles it shares with its neighbours.
func TestAllocationTable__RoundTripAllClusters(t *testing.T) {
	table := make(fat12.AllocationTable, fat12.TableSizeForEntries(4085))
	require.Equal(t, 4085, table.Capacity())

	expected := func(n fat12.Cluster) uint16 {
		return uint16(n*7+0x5A5) & 0xFFF
	}

	for n := fat12.Cluster(2); n <= 4084; n++ {
		require.NoError(t, table.Set(n, expected(n)))
		value, err := table.Get(n)
		require.NoError(t, err)
		require.Equalf(t, expected(n), value, "cluster %d (odd=%v)", n, n%2 == 1)
	}

	// Read everything back after all writes to catch neighbour clobbering.
	for n := fat12.Cluster(2); n <= 4084; n++ {
		value, err := table.Get(n)
		require.NoError(t, err)
		require.Equalf(t, expected(n), value, "cluster %d changed by a neighbour", n)
	}
}

func TestAllocationTable__OnDiskLayout(t *testing.T) {
	table := make(fat12.AllocationTable, 6)
	require.NoError(t, table.Set(0, 0xFF0))
	require.NoError(t, table.Set(1, 0xFFF))
	require.NoError(t, table.Set(2, 0x003))
	require.NoError(t, table.Set(3, 0x004))

	assert.Equal(t, fat12.AllocationTable{0xF0, 0xFF, 0xFF, 0x03, 0x40, 0x00}, table)
}

func TestAllocationTable__DecodeKnownBytes(t *testing.T) {
	table := fat12.AllocationTable{0xF0, 0xFF, 0xFF, 0x34, 0x12, 0xAB}

	value, err := table.Get(2)
	require.NoError(t, err)
	assert.EqualValues(t, 0x234, value, "even entry")

	value, err = table.Get(3)
	require.NoError(t, err)
	assert.EqualValues(t, 0xAB1, value, "odd entry")
}

func TestAllocationTable__SetMasksTo12Bits(t *testing.T) {
	table := make(fat12.AllocationTable, 6)
	require.NoError(t, table.Set(2, 0xF123))
	value, err := table.Get(2)
	require.NoError(t, err)
	assert.EqualValues(t, 0x123, value)

	value, err = table.Get(3)
	require.NoError(t, err)
	assert.EqualValues(t, 0, value, "neighbour modified")
}

func TestAllocationTable__OutOfRange(t *testing.T) {
	table := make(fat12.AllocationTable, 6)
	_, err := table.Get(4)
	assert.ErrorIs(t, err, minios.ErrInvalidArgument)
	assert.ErrorIs(t, table.Set(4, 1), minios.ErrInvalidArgument)
}

func TestAllocationTable__NextEndOfChain(t *testing.T) {
	table := make(fat12.AllocationTable, fat12.TableSizeForEntries(16))
	for value := uint16(0xFF8); value <= 0xFFF; value++ {
		require.NoError(t, table.Set(5, value))
		next, err := table.Next(5)
		require.NoError(t, err)
		assert.Equalf(t, fat12.EndOfChain, next, "value %#03x", value)
	}
}

func TestAllocationTable__NextBrokenLinks(t *testing.T) {
	table := make(fat12.AllocationTable, fat12.TableSizeForEntries(16))

	for _, value := range []uint16{0x000, 0x001, uint16(fat12.BadCluster), 0xFF0, 0xFF3, 0xFF6} {
		require.NoError(t, table.Set(6, value))
		_, err := table.Next(6)
		assert.ErrorIsf(t, err, minios.ErrFileSystemCorrupted, "value %#03x", value)
	}

	_, err := table.Next(0)
	assert.ErrorIs(t, err, minios.ErrFileSystemCorrupted, "reserved cluster")
	_, err = table.Next(20)
	assert.ErrorIs(t, err, minios.ErrFileSystemCorrupted, "past end of table")
}

func TestAllocationTable__ChainRejectsReservedLinks(t *testing.T) {
	table := make(fat12.AllocationTable, fat12.TableSizeForEntries(16))
	require.NoError(t, table.Set(2, 3))
	require.NoError(t, table.Set(3, 0xFF4))

	chain, err := table.Chain(2)
	assert.ErrorIs(t, err, minios.ErrFileSystemCorrupted)
	assert.Equal(t, []fat12.Cluster{2, 3}, chain)
}

func TestAllocationTable__Chain(t *testing.T) {
	table := make(fat12.AllocationTable, fat12.TableSizeForEntries(16))
	require.NoError(t, table.Set(2, 7))
	require.NoError(t, table.Set(7, 3))
	require.NoError(t, table.Set(3, 0xFFF))

	chain, err := table.Chain(2)
	require.NoError(t, err)
	assert.Equal(t, []fat12.Cluster{2, 7, 3}, chain)
}

func TestAllocationTable__ChainCycle(t *testing.T) {
	table := make(fat12.AllocationTable, fat12.TableSizeForEntries(16))
	require.NoError(t, table.Set(2, 3))
	require.NoError(t, table.Set(3, 2))

	_, err := table.Chain(2)
	assert.ErrorIs(t, err, minios.ErrFileSystemCorrupted)
}
