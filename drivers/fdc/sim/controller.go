// Package sim emulates a PC floppy controller at the register level, backed
// by a raw disk image. It lets the driver and everything above it run in user
// space and in tests.
package sim

import (
	"io"

	"github.com/andreitdr/MiniOS"
	"github.com/andreitdr/MiniOS/disks"
	"github.com/andreitdr/MiniOS/drivers/fdc"
)

type phase int

const (
	phaseCommand phase = iota
	phaseExecution
	phaseResult
)

// Status register 1 bits reported on failed transfers.
const (
	st1NotWritable = 0x02
	st1NoData      = 0x04
	st1DataError   = 0x20
)

// ST2 data error in data field.
const st2DataError = 0x20

// Drive ready bit in status register 0 for not-ready terminations.
const st0NotReady = 0x08

// Faults selects misbehavior to inject.
type Faults struct {
	// Dead keeps the main status register at zero: the controller never
	// becomes ready for anything.
	Dead bool
	// StallDataPhase enters the execution phase of a read or write but never
	// asserts data-ready.
	StallDataPhase bool
	// BadSectors makes transfers of these LBAs terminate abnormally with a
	// data error.
	BadSectors map[uint32]bool
	// SeekDrift is added to the cylinder the head lands on after a seek.
	SeekDrift int
	// WriteProtected rejects every write.
	WriteProtected bool
}

// Stats counts what the controller has been asked to do.
type Stats struct {
	Resets       int
	Recalibrates int
	Seeks        int
	SectorReads  int
	SectorWrites int
	LastAddress  disks.CHS
	DataRate     uint8
}

type interrupt struct {
	st0      uint8
	cylinder uint8
}

// Controller implements [hal.Port] for the registers of one controller.
type Controller struct {
	// Faults may be changed between requests.
	Faults Faults
	// SeekPolls is how many status reads a seek or recalibrate keeps drive A
	// busy for.
	SeekPolls int

	base     uint16
	geometry disks.DiskGeometry
	image    io.ReadWriteSeeker
	stats    Stats

	dor        uint8
	phase      phase
	command    []byte
	result     []byte
	pending    []interrupt
	cylinder   uint8
	seekBusy   int
	writing    bool
	currentLBA uint32
	address    disks.CHS
	buffer     [minios.SectorSize]byte
	bufferPos  int
}

// New creates a controller at [fdc.PrimaryBase] whose drive A holds `image`.
func New(image io.ReadWriteSeeker, geometry disks.DiskGeometry) *Controller {
	return &Controller{
		base:      fdc.PrimaryBase,
		geometry:  geometry,
		image:     image,
		SeekPolls: 2,
	}
}

// SetBase moves the controller to another I/O base.
func (c *Controller) SetBase(base uint16) {
	c.base = base
}

func (c *Controller) Stats() Stats {
	return c.stats
}

// Cylinder returns the cylinder drive A's head is over.
func (c *Controller) Cylinder() uint8 {
	return c.cylinder
}

// MotorRunning reports whether drive A's motor is enabled through the DOR.
func (c *Controller) MotorRunning() bool {
	return c.dor&fdc.DORMotorA != 0
}

// ReadPort implements [hal.Port].
func (c *Controller) ReadPort(port uint16) uint8 {
	switch port - c.base {
	case fdc.RegMSR:
		return c.status()
	case fdc.RegFIFO:
		return c.readFIFO()
	case fdc.RegDOR:
		return c.dor
	default:
		return 0xFF
	}
}

// WritePort implements [hal.Port].
func (c *Controller) WritePort(port uint16, value uint8) {
	switch port - c.base {
	case fdc.RegDOR:
		c.writeDOR(value)
	case fdc.RegFIFO:
		c.writeFIFO(value)
	case fdc.RegCCR:
		c.stats.DataRate = value
	}
}

func (c *Controller) inReset() bool {
	return c.dor&fdc.DORReset == 0
}

func (c *Controller) writeDOR(value uint8) {
	wasInReset := c.inReset()
	c.dor = value

	if c.inReset() {
		c.phase = phaseCommand
		c.command = c.command[:0]
		c.result = nil
		c.pending = nil
		c.seekBusy = 0
		return
	}

	if wasInReset {
		// Leaving reset raises one "ready changed" interrupt per drive.
		c.stats.Resets++
		c.pending = c.pending[:0]
		for drive := uint8(0); drive < 4; drive++ {
			c.pending = append(c.pending, interrupt{st0: 0xC0 | drive, cylinder: c.cylinder})
		}
	}
}

func (c *Controller) status() uint8 {
	if c.Faults.Dead || c.inReset() {
		return 0
	}

	if c.seekBusy > 0 {
		c.seekBusy--
		return fdc.MSRDataReady | fdc.MSRDriveABusy
	}

	switch c.phase {
	case phaseExecution:
		status := uint8(fdc.MSRBusy | fdc.MSRNonDMA)
		if c.Faults.StallDataPhase {
			return status
		}
		if !c.writing {
			status |= fdc.MSRDirection
		}
		return status | fdc.MSRDataReady
	case phaseResult:
		return fdc.MSRDataReady | fdc.MSRDirection | fdc.MSRBusy
	default:
		if len(c.command) > 0 {
			return fdc.MSRDataReady | fdc.MSRBusy
		}
		return fdc.MSRDataReady
	}
}

func (c *Controller) readFIFO() uint8 {
	switch c.phase {
	case phaseExecution:
		if c.writing || c.Faults.StallDataPhase {
			return 0xFF
		}
		value := c.buffer[c.bufferPos]
		c.bufferPos++
		if c.bufferPos == len(c.buffer) {
			c.stats.SectorReads++
			c.finishTransfer()
		}
		return value
	case phaseResult:
		value := c.result[0]
		c.result = c.result[1:]
		if len(c.result) == 0 {
			c.phase = phaseCommand
		}
		return value
	default:
		return 0xFF
	}
}

func (c *Controller) writeFIFO(value uint8) {
	switch c.phase {
	case phaseExecution:
		if !c.writing || c.Faults.StallDataPhase {
			return
		}
		c.buffer[c.bufferPos] = value
		c.bufferPos++
		if c.bufferPos == len(c.buffer) {
			c.commitWrite()
		}
		return
	case phaseResult:
		return
	}

	c.command = append(c.command, value)
	opcode := c.command[0] & fdc.CmdOpcodeMask
	length, known := commandLengths[opcode]
	if !known {
		c.command = c.command[:0]
		c.respond(fdc.ST0InvalidCommand)
		return
	}
	if len(c.command) < length {
		return
	}

	command := c.command
	c.command = c.command[:0]
	c.execute(opcode, command)
}

var commandLengths = map[uint8]int{
	fdc.CmdSpecify:          3,
	fdc.CmdSenseDriveStatus: 2,
	fdc.CmdWriteData:        9,
	fdc.CmdReadData:         9,
	fdc.CmdRecalibrate:      2,
	fdc.CmdSenseInterrupt:   1,
	fdc.CmdSeek:             3,
}

func (c *Controller) execute(opcode uint8, command []byte) {
	switch opcode {
	case fdc.CmdSpecify:
		// No result phase.
	case fdc.CmdSenseDriveStatus:
		st3 := uint8(0x20) | command[1]&0x07
		if c.cylinder == 0 {
			st3 |= 0x10
		}
		c.respond(st3)
	case fdc.CmdRecalibrate:
		c.stats.Recalibrates++
		c.moveHead(0, 0)
	case fdc.CmdSeek:
		c.stats.Seeks++
		drifted := int(command[2]) + c.Faults.SeekDrift
		if drifted < 0 {
			drifted = 0
		}
		c.moveHead(uint8(drifted), (command[1]>>2)&1)
	case fdc.CmdSenseInterrupt:
		if len(c.pending) == 0 {
			c.respond(fdc.ST0InvalidCommand)
			return
		}
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.respond(next.st0, next.cylinder)
	case fdc.CmdReadData, fdc.CmdWriteData:
		c.startTransfer(opcode == fdc.CmdWriteData, command)
	}
}

func (c *Controller) moveHead(cylinder, head uint8) {
	c.cylinder = cylinder
	c.seekBusy = c.SeekPolls
	c.pending = append(
		c.pending, interrupt{st0: fdc.ST0SeekEnd | head<<2, cylinder: cylinder})
}

func (c *Controller) startTransfer(write bool, command []byte) {
	c.address = disks.CHS{Cylinder: command[2], Head: command[3], Sector: command[4]}
	c.stats.LastAddress = c.address
	headBits := c.address.Head << 2

	if !c.MotorRunning() {
		c.respondStatus(fdc.ST0AbnormalEnd|st0NotReady|headBits, 0, 0)
		return
	}

	lba, err := c.geometry.ToLBA(c.address)
	if err != nil || c.address.Cylinder != c.cylinder {
		c.respondStatus(fdc.ST0AbnormalEnd|headBits, st1NoData, 0)
		return
	}
	if c.Faults.BadSectors[lba] {
		c.respondStatus(fdc.ST0AbnormalEnd|headBits, st1DataError, st2DataError)
		return
	}
	if write && c.Faults.WriteProtected {
		c.respondStatus(fdc.ST0AbnormalEnd|headBits, st1NotWritable, 0)
		return
	}

	c.currentLBA = lba
	c.writing = write
	c.bufferPos = 0
	if !write {
		if err = c.loadSector(lba); err != nil {
			c.respondStatus(fdc.ST0AbnormalEnd|headBits, st1NoData, 0)
			return
		}
	}
	c.phase = phaseExecution
}

func (c *Controller) commitWrite() {
	offset := int64(c.currentLBA) * minios.SectorSize
	_, err := c.image.Seek(offset, io.SeekStart)
	if err == nil {
		_, err = c.image.Write(c.buffer[:])
	}
	if err != nil {
		c.respondStatus(fdc.ST0AbnormalEnd|c.address.Head<<2, st1DataError, 0)
		return
	}
	c.stats.SectorWrites++
	c.finishTransfer()
}

func (c *Controller) loadSector(lba uint32) error {
	_, err := c.image.Seek(int64(lba)*minios.SectorSize, io.SeekStart)
	if err != nil {
		return err
	}
	_, err = io.ReadFull(c.image, c.buffer[:])
	return err
}

func (c *Controller) finishTransfer() {
	c.respondStatus(c.address.Head<<2, 0, 0)
}

// respondStatus queues the seven-byte result of a read or write.
func (c *Controller) respondStatus(st0, st1, st2 uint8) {
	c.respond(
		st0, st1, st2,
		c.address.Cylinder, c.address.Head, c.address.Sector,
		2,
	)
}

func (c *Controller) respond(result ...uint8) {
	c.result = append(c.result[:0], result...)
	c.phase = phaseResult
}
