package testing

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/andreitdr/MiniOS"
	"github.com/andreitdr/MiniOS/file_systems/fat12"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/require"
)

// rawBootSector is the on-disk layout of the first 36 bytes of a FAT12 boot
// sector.
type rawBootSector struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
}

// Floppy1440K returns the boot parameters of a freshly formatted 3.5" 1.44M
// disk.
func Floppy1440K() fat12.BootParameters {
	return fat12.BootParameters{
		OEMName:           "MSWIN4.1",
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    224,
		TotalSectors:      2880,
		Media:             0xF0,
		SectorsPerFAT:     9,
		SectorsPerTrack:   18,
		NumHeads:          2,
	}
}

// FAT12ImageBuilder lays out a FAT12 image in memory. Files are stored as
// they're added; the boot sector, allocation tables and root directory are
// written by Bytes.
type FAT12ImageBuilder struct {
	Params fat12.BootParameters
	// Table is the allocation table that Bytes copies into every FAT.
	Table fat12.AllocationTable

	t        *testing.T
	image    []byte
	entries  []fat12.DirectoryEntry
	nextFree fat12.Cluster
}

// NewFAT12Image starts an empty 1.44M image.
func NewFAT12Image(t *testing.T) *FAT12ImageBuilder {
	return NewFAT12ImageWithParams(t, Floppy1440K())
}

// NewFAT12ImageWithParams starts an empty image with the given layout.
func NewFAT12ImageWithParams(t *testing.T, params fat12.BootParameters) *FAT12ImageBuilder {
	require.NoError(t, params.Validate(), "invalid boot parameters for test image")

	table := make(fat12.AllocationTable, int(params.SectorsPerFAT)*minios.SectorSize)
	require.NoError(t, table.Set(0, 0xF00|uint16(params.Media)))
	require.NoError(t, table.Set(1, uint16(fat12.EndOfChain)))

	return &FAT12ImageBuilder{
		Params:   params,
		Table:    table,
		t:        t,
		image:    make([]byte, int(params.TotalSectors)*minios.SectorSize),
		nextFree: fat12.FirstDataCluster,
	}
}

// ClusterCount gives the number of clusters `size` bytes occupy.
func (b *FAT12ImageBuilder) ClusterCount(size int) int {
	bytesPerCluster := int(b.Params.BytesPerCluster())
	return (size + bytesPerCluster - 1) / bytesPerCluster
}

// AddFile stores `data` in consecutive free clusters and adds a directory
// entry for it.
func (b *FAT12ImageBuilder) AddFile(name string, data []byte) fat12.DirectoryEntry {
	clusters := make([]fat12.Cluster, b.ClusterCount(len(data)))
	for i := range clusters {
		clusters[i] = b.nextFree
		b.nextFree++
	}
	return b.AddFileAt(name, data, clusters)
}

// AddFileAt stores `data` in exactly the clusters given, in order, so that
// fragmented chains can be built.
func (b *FAT12ImageBuilder) AddFileAt(
	name string, data []byte, clusters []fat12.Cluster,
) fat12.DirectoryEntry {
	require.Equal(
		b.t, b.ClusterCount(len(data)), len(clusters), "wrong cluster count for %q", name)

	bytesPerCluster := int(b.Params.BytesPerCluster())
	for i, cluster := range clusters {
		start := i * bytesPerCluster
		end := start + bytesPerCluster
		if end > len(data) {
			end = len(data)
		}
		copy(b.ClusterData(cluster), data[start:end])

		link := uint16(fat12.EndOfChain)
		if i+1 < len(clusters) {
			link = uint16(clusters[i+1])
		}
		require.NoError(b.t, b.Table.Set(cluster, link))

		if cluster >= b.nextFree {
			b.nextFree = cluster + 1
		}
	}

	entry := fat12.DirectoryEntry{
		Name:         fat12.NormalizeName(name),
		Attributes:   fat12.AttrArchived,
		FileSize:     uint32(len(data)),
		LastModified: time.Date(1995, time.August, 24, 12, 30, 10, 0, time.Local),
	}
	if len(clusters) > 0 {
		entry.FirstCluster = clusters[0]
	}
	b.AddEntry(entry)
	return entry
}

// AddEntry appends a raw directory entry, e.g. a volume label or a deleted
// file.
func (b *FAT12ImageBuilder) AddEntry(entry fat12.DirectoryEntry) {
	require.Less(
		b.t, len(b.entries), int(b.Params.RootEntryCount), "root directory is full")
	b.entries = append(b.entries, entry)
}

// ClusterData returns the part of the image holding `cluster`.
func (b *FAT12ImageBuilder) ClusterData(cluster fat12.Cluster) []byte {
	start := int(b.Params.ClusterToLBA(cluster)) * minios.SectorSize
	return b.image[start : start+int(b.Params.BytesPerCluster())]
}

// Bytes writes the metadata and returns the image. The builder can keep being
// used; later calls rewrite the metadata.
func (b *FAT12ImageBuilder) Bytes() []byte {
	b.writeBootSector()

	for i := 0; i < int(b.Params.NumFATs); i++ {
		start := (int(b.Params.FATStart()) + i*int(b.Params.SectorsPerFAT)) * minios.SectorSize
		copy(b.image[start:start+len(b.Table)], b.Table)
	}

	rootStart := int(b.Params.RootDirStart()) * minios.SectorSize
	rootEnd := rootStart + int(b.Params.RootDirSectors())*minios.SectorSize
	clear(b.image[rootStart:rootEnd])

	writer := bytewriter.New(b.image[rootStart:rootEnd])
	var raw [fat12.DirentSize]byte
	for _, entry := range b.entries {
		entry.Encode(raw[:])
		_, err := writer.Write(raw[:])
		require.NoError(b.t, err, "failed to write directory entry %s", entry.Name)
	}
	return b.image
}

func (b *FAT12ImageBuilder) writeBootSector() {
	raw := rawBootSector{
		JmpBoot:           [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    b.Params.BytesPerSector,
		SectorsPerCluster: b.Params.SectorsPerCluster,
		ReservedSectors:   b.Params.ReservedSectors,
		NumFATs:           b.Params.NumFATs,
		RootEntryCount:    b.Params.RootEntryCount,
		Media:             b.Params.Media,
		SectorsPerFAT:     b.Params.SectorsPerFAT,
		SectorsPerTrack:   b.Params.SectorsPerTrack,
		NumHeads:          b.Params.NumHeads,
	}
	copy(raw.OEMName[:], "        ")
	copy(raw.OEMName[:], b.Params.OEMName)
	if b.Params.TotalSectors <= 0xFFFF {
		raw.TotalSectors16 = uint16(b.Params.TotalSectors)
	} else {
		raw.TotalSectors32 = b.Params.TotalSectors
	}

	sector := b.image[:minios.SectorSize]
	clear(sector)
	err := binary.Write(bytewriter.New(sector), binary.LittleEndian, &raw)
	require.NoError(b.t, err, "failed to write boot sector")
	sector[510], sector[511] = 0x55, 0xAA
}
