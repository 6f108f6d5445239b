// Package fat12 implements a read-mostly FAT12 file system over a
// [minios.SectorDevice]. Only the root directory is supported.
package fat12

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/andreitdr/MiniOS"
)

// Boot sector field offsets.
const (
	offOEMName           = 0x03
	offBytesPerSector    = 0x0B
	offSectorsPerCluster = 0x0D
	offReservedSectors   = 0x0E
	offNumFATs           = 0x10
	offRootEntryCount    = 0x11
	offTotalSectors16    = 0x13
	offMedia             = 0x15
	offSectorsPerFAT     = 0x16
	offSectorsPerTrack   = 0x18
	offNumHeads          = 0x1A
	offTotalSectors32    = 0x20

	bootParametersEnd = 0x24
)

// BootParameters is the BIOS parameter block of a FAT12 volume, plus the
// geometry derived from it.
type BootParameters struct {
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors      uint32
	Media             uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
}

// DetermineFATVersion determines the version of the FAT file system based on the number
// of clusters on the system. (This is the only proper way to do so.)
func DetermineFATVersion(totalClusters uint32) int {
	// These cluster counts, while odd-looking, are correct. They're taken directly from
	// Microsoft's FAT documentation, v1.03, page 14.
	if totalClusters < 4085 {
		return 12
	}
	if totalClusters < 65525 {
		return 16
	}
	return 32
}

// ParseBootParameters decodes the boot sector in `sector` and checks that it
// describes a FAT12 volume with 512-byte sectors.
func ParseBootParameters(sector []byte) (BootParameters, error) {
	if len(sector) < bootParametersEnd {
		return BootParameters{}, minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("boot sector needs %d bytes, got %d", bootParametersEnd, len(sector)))
	}

	le := binary.LittleEndian
	params := BootParameters{
		OEMName:           strings.TrimRight(string(sector[offOEMName:offOEMName+8]), " \x00"),
		BytesPerSector:    le.Uint16(sector[offBytesPerSector:]),
		SectorsPerCluster: sector[offSectorsPerCluster],
		ReservedSectors:   le.Uint16(sector[offReservedSectors:]),
		NumFATs:           sector[offNumFATs],
		RootEntryCount:    le.Uint16(sector[offRootEntryCount:]),
		TotalSectors:      uint32(le.Uint16(sector[offTotalSectors16:])),
		Media:             sector[offMedia],
		SectorsPerFAT:     le.Uint16(sector[offSectorsPerFAT:]),
		SectorsPerTrack:   le.Uint16(sector[offSectorsPerTrack:]),
		NumHeads:          le.Uint16(sector[offNumHeads:]),
	}
	if params.TotalSectors == 0 {
		params.TotalSectors = le.Uint32(sector[offTotalSectors32:])
	}

	if err := params.Validate(); err != nil {
		return BootParameters{}, err
	}
	return params, nil
}

// Validate checks the parameters for internal consistency.
func (p BootParameters) Validate() error {
	corrupted := func(format string, args ...any) error {
		return minios.ErrFileSystemCorrupted.WithMessage(
			"corruption detected: " + fmt.Sprintf(format, args...))
	}

	if p.BytesPerSector != minios.SectorSize {
		return corrupted(
			"BytesPerSector must be %d, got %d", minios.SectorSize, p.BytesPerSector)
	}

	// SectorsPerCluster must be 2^x with x in [0, 8)
	if p.SectorsPerCluster == 0 || p.SectorsPerCluster&(p.SectorsPerCluster-1) != 0 {
		return corrupted(
			"SectorsPerCluster must be a power of 2 in 1-128, got %d", p.SectorsPerCluster)
	}
	if p.ReservedSectors == 0 {
		return corrupted("ReservedSectors must be at least 1")
	}
	if p.NumFATs == 0 {
		return corrupted("NumFATs must be at least 1")
	}
	if p.RootEntryCount == 0 {
		return corrupted("RootEntryCount must be nonzero")
	}
	if p.SectorsPerFAT == 0 {
		return corrupted("SectorsPerFAT must be nonzero")
	}
	if p.TotalSectors <= p.FirstDataSector() {
		return corrupted(
			"volume has %d sectors but metadata occupies %d", p.TotalSectors, p.FirstDataSector())
	}

	totalClusters := p.TotalClusters()
	if version := DetermineFATVersion(totalClusters); version != 12 {
		return corrupted("%d clusters is a FAT%d volume, not FAT12", totalClusters, version)
	}

	tableEntries := uint32(p.SectorsPerFAT) * uint32(p.BytesPerSector) * 2 / 3
	if tableEntries < totalClusters+uint32(FirstDataCluster) {
		return corrupted(
			"allocation table holds %d entries, volume needs %d",
			tableEntries,
			totalClusters+uint32(FirstDataCluster))
	}
	return nil
}

// FATStart gives the LBA of the first allocation table.
func (p BootParameters) FATStart() uint32 {
	return uint32(p.ReservedSectors)
}

// RootDirStart gives the LBA of the root directory.
func (p BootParameters) RootDirStart() uint32 {
	return uint32(p.ReservedSectors) + uint32(p.NumFATs)*uint32(p.SectorsPerFAT)
}

// RootDirSectors gives the number of sectors needed to hold RootEntryCount
// directory entries.
func (p BootParameters) RootDirSectors() uint32 {
	if p.BytesPerSector == 0 {
		return 0
	}
	bytesPerSector := uint32(p.BytesPerSector)
	return (uint32(p.RootEntryCount)*DirentSize + bytesPerSector - 1) / bytesPerSector
}

// FirstDataSector gives the LBA of cluster 2.
func (p BootParameters) FirstDataSector() uint32 {
	return p.RootDirStart() + p.RootDirSectors()
}

func (p BootParameters) BytesPerCluster() uint32 {
	return uint32(p.BytesPerSector) * uint32(p.SectorsPerCluster)
}

// TotalClusters gives the number of data clusters on the volume.
func (p BootParameters) TotalClusters() uint32 {
	if p.SectorsPerCluster == 0 || p.TotalSectors <= p.FirstDataSector() {
		return 0
	}
	return (p.TotalSectors - p.FirstDataSector()) / uint32(p.SectorsPerCluster)
}

// LastCluster gives the highest valid data cluster number.
func (p BootParameters) LastCluster() Cluster {
	return Cluster(p.TotalClusters()) + FirstDataCluster - 1
}

// ClusterToLBA gives the LBA of the first sector of data cluster `cluster`.
func (p BootParameters) ClusterToLBA(cluster Cluster) uint32 {
	return p.FirstDataSector() + uint32(cluster-FirstDataCluster)*uint32(p.SectorsPerCluster)
}
