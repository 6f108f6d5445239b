package testing

import (
	"fmt"

	"github.com/andreitdr/MiniOS"
)

// MemoryDevice is a [minios.SectorDevice] over a byte slice, with per-sector
// fault injection and an access log.
type MemoryDevice struct {
	Data []byte
	// FailReads maps LBAs to the error ReadSector returns for them.
	FailReads map[uint32]error
	// Reads lists every LBA successfully read, in order.
	Reads  []uint32
	Writes []uint32
}

func NewMemoryDevice(image []byte) *MemoryDevice {
	return &MemoryDevice{
		Data:      image,
		FailReads: map[uint32]error{},
	}
}

func (d *MemoryDevice) sector(lba uint32) ([]byte, error) {
	start := int64(lba) * minios.SectorSize
	if start+minios.SectorSize > int64(len(d.Data)) {
		return nil, minios.ErrIOFailure.WithMessage(
			fmt.Sprintf("sector %d is past the end of a %d-byte image", lba, len(d.Data)))
	}
	return d.Data[start : start+minios.SectorSize], nil
}

func (d *MemoryDevice) ReadSector(lba uint32, buffer *[minios.SectorSize]byte) error {
	if err, ok := d.FailReads[lba]; ok {
		return err
	}
	sector, err := d.sector(lba)
	if err != nil {
		return err
	}
	copy(buffer[:], sector)
	d.Reads = append(d.Reads, lba)
	return nil
}

func (d *MemoryDevice) WriteSector(lba uint32, data *[minios.SectorSize]byte) error {
	sector, err := d.sector(lba)
	if err != nil {
		return err
	}
	copy(sector, data[:])
	d.Writes = append(d.Writes, lba)
	return nil
}

// ResetLog forgets recorded reads and writes.
func (d *MemoryDevice) ResetLog() {
	d.Reads = nil
	d.Writes = nil
}
