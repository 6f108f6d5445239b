// Package disks describes the physical layout of the floppy media the
// controller driver can address.
package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/andreitdr/MiniOS"
	"github.com/gocarina/gocsv"
)

// DefaultFloppySlug identifies the 3.5" 1.44M medium the kernel boots from.
const DefaultFloppySlug = "3.5-hd-1440k"

////////////////////////////////////////////////////////////////////////////////
// Geometry

type DiskGeometry struct {
	Name               string `csv:"name"`
	Slug               string `csv:"slug"`
	FirstYearAvailable uint   `csv:"first_year_available"`
	FormFactor         string `csv:"form_factor"`
	IsRemovable        uint   `csv:"is_removable"`

	// BitsPerAddressUnit gives the number of bits in the device's smallest
	// addressible unit of memory. Always 8 for PC media.
	BitsPerAddressUnit uint `csv:"bits_per_address_unit"`

	// AddressUnitsPerSector gives the number of address units in a sector.
	AddressUnitsPerSector uint `csv:"address_units_per_sector"`
	SectorsPerTrack       uint `csv:"sectors_per_track"`

	// TotalDataTracks gives the number of data tracks (cylinders) per head.
	TotalDataTracks uint `csv:"total_data_tracks"`
	HiddenTracks    uint `csv:"hidden_tracks"`
	// Heads gives the number of heads in the device.
	Heads uint   `csv:"heads"`
	Notes string `csv:"notes"`
}

// CHS is a physical cylinder/head/sector address. Sectors are 1-based.
type CHS struct {
	Cylinder uint8
	Head     uint8
	Sector   uint8
}

func (a CHS) String() string {
	return fmt.Sprintf("C%d/H%d/S%d", a.Cylinder, a.Head, a.Sector)
}

// TotalSizeBytes gives the size of the storage device, rounded up to the nearest
// byte. This gives the minimum size of the image file.
func (g *DiskGeometry) TotalSizeBytes() int64 {
	bits := int64(
		g.BitsPerAddressUnit * g.AddressUnitsPerSector * g.SectorsPerTrack *
			g.TotalDataTracks * g.Heads)
	if bits%8 == 0 {
		return bits / 8
	}
	return (bits / 8) + 1
}

// TotalSectors gives the number of addressable sectors on the medium.
func (g *DiskGeometry) TotalSectors() uint32 {
	return uint32(g.SectorsPerTrack * g.TotalDataTracks * g.Heads)
}

// ToCHS converts a logical block address to its physical address. LBAs past
// the end of the medium are rejected with [minios.ErrInvalidArgument].
func (g *DiskGeometry) ToCHS(lba uint32) (CHS, error) {
	if lba >= g.TotalSectors() {
		return CHS{}, minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"LBA %d not in range [0, %d) for %s", lba, g.TotalSectors(), g.Slug,
			),
		)
	}

	track := lba / uint32(g.SectorsPerTrack)
	return CHS{
		Cylinder: uint8(track / uint32(g.Heads)),
		Head:     uint8(track % uint32(g.Heads)),
		Sector:   uint8(lba%uint32(g.SectorsPerTrack)) + 1,
	}, nil
}

// ToLBA is the inverse of [DiskGeometry.ToCHS].
func (g *DiskGeometry) ToLBA(address CHS) (uint32, error) {
	if uint(address.Cylinder) >= g.TotalDataTracks ||
		uint(address.Head) >= g.Heads ||
		address.Sector == 0 ||
		uint(address.Sector) > g.SectorsPerTrack {
		return 0, minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%s is outside the geometry of %s", address, g.Slug),
		)
	}

	track := uint32(address.Cylinder)*uint32(g.Heads) + uint32(address.Head)
	return track*uint32(g.SectorsPerTrack) + uint32(address.Sector) - 1, nil
}

////////////////////////////////////////////////////////////////////////////////

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries map[string]DiskGeometry

func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	geometry, ok := diskGeometries[slug]
	if ok {
		return geometry, nil
	}

	err := minios.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("no predefined disk geometry exists with slug %q", slug))
	return DiskGeometry{}, err
}

// MustGetPredefinedDiskGeometry is like [GetPredefinedDiskGeometry] but panics
// if `slug` is unknown.
func MustGetPredefinedDiskGeometry(slug string) DiskGeometry {
	geometry, err := GetPredefinedDiskGeometry(slug)
	if err != nil {
		panic(err)
	}
	return geometry
}

func init() {
	csvReader := csv.NewReader(strings.NewReader(diskGeometriesRawCSV))
	csvReader.Comma = '|'

	var rows []DiskGeometry
	if err := gocsv.UnmarshalCSV(csvReader, &rows); err != nil {
		panic(fmt.Errorf("failed to decode disk geometries: %w", err))
	}

	diskGeometries = make(map[string]DiskGeometry, len(rows))
	for i, row := range rows {
		_, exists := diskGeometries[row.Slug]
		if exists {
			message := fmt.Errorf(
				"duplicate definition for disk %q found on row %d",
				row.Slug,
				i+1)
			panic(message)
		}
		diskGeometries[row.Slug] = row
	}
}
