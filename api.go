// Package minios holds the types shared by every layer of the kernel's storage
// stack: the sector device contract and the error kinds.
package minios

// SectorSize is the size of one physical sector on the supported media.
const SectorSize = 512

// SectorDevice is implemented by anything that can transfer single sectors
// addressed by their logical block address (LBA). The floppy controller driver
// is the production implementation.
type SectorDevice interface {
	// ReadSector copies the sector at `lba` into `buffer`.
	ReadSector(lba uint32, buffer *[SectorSize]byte) error
	// WriteSector replaces the sector at `lba` with the contents of `data`.
	WriteSector(lba uint32, data *[SectorSize]byte) error
}
