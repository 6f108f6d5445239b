// Package fdc drives a PC-compatible floppy disk controller in polled,
// non-DMA mode.
//
// Every sector transfer runs the full request cycle:
//
//	Idle → Recalibrate → Seek → CommandPhase → DataPhase → ResultPhase → Idle
//
// Each phase waits on the main status register under its own deadline. A
// phase that misses its deadline aborts the request with
// [minios.ErrHardwareTimeout]; nothing is retried.
package fdc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/andreitdr/MiniOS"
	"github.com/andreitdr/MiniOS/disks"
	"github.com/andreitdr/MiniOS/hal"
)

// State is the phase of the request the driver is currently executing.
type State int

const (
	StateIdle State = iota
	StateRecalibrate
	StateSeek
	StateCommand
	StateData
	StateResult
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateRecalibrate: "recalibrate",
	StateSeek:        "seek",
	StateCommand:     "command phase",
	StateData:        "data phase",
	StateResult:      "result phase",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Timing holds the deadlines for each kind of wait the driver performs.
type Timing struct {
	// PollTimeout bounds the wait for a single byte handshake through the FIFO.
	PollTimeout time.Duration
	// SeekTimeout bounds a recalibrate or seek, including head settling.
	SeekTimeout time.Duration
	// ResetTimeout bounds the wait for the controller to come out of reset.
	ResetTimeout time.Duration
	// SpinUpDelay is how long the motor needs to reach speed.
	SpinUpDelay time.Duration
}

// DefaultTiming returns deadlines suitable for a 3.5" drive.
func DefaultTiming() Timing {
	return Timing{
		PollTimeout:  time.Second,
		SeekTimeout:  3 * time.Second,
		ResetTimeout: time.Second,
		SpinUpDelay:  500 * time.Millisecond,
	}
}

// Options configures a [Driver]. Zero fields take their defaults.
type Options struct {
	// BasePort is the controller's I/O base. Defaults to [PrimaryBase].
	BasePort uint16
	// Geometry describes the medium. Defaults to [disks.DefaultFloppySlug].
	Geometry disks.DiskGeometry
	Timing   Timing
	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Driver owns the conversation with one floppy controller and drive A.
type Driver struct {
	port     hal.Port
	clock    hal.Clock
	base     uint16
	geometry disks.DiskGeometry
	timing   Timing
	logger   *slog.Logger

	ready   bool
	motorOn bool
	dor     uint8
	state   State
}

// New creates a driver for the controller reachable through `port`. The
// controller is not touched until [Driver.Init] is called.
func New(port hal.Port, clock hal.Clock, options Options) (*Driver, error) {
	if options.BasePort == 0 {
		options.BasePort = PrimaryBase
	}
	if options.Geometry.TotalSectors() == 0 {
		options.Geometry = disks.MustGetPredefinedDiskGeometry(disks.DefaultFloppySlug)
	}
	if options.Geometry.AddressUnitsPerSector != minios.SectorSize {
		return nil, minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"geometry %q has %d-byte sectors, only %d is supported",
				options.Geometry.Slug,
				options.Geometry.AddressUnitsPerSector,
				minios.SectorSize,
			),
		)
	}

	defaults := DefaultTiming()
	if options.Timing.PollTimeout <= 0 {
		options.Timing.PollTimeout = defaults.PollTimeout
	}
	if options.Timing.SeekTimeout <= 0 {
		options.Timing.SeekTimeout = defaults.SeekTimeout
	}
	if options.Timing.ResetTimeout <= 0 {
		options.Timing.ResetTimeout = defaults.ResetTimeout
	}
	if options.Timing.SpinUpDelay <= 0 {
		options.Timing.SpinUpDelay = defaults.SpinUpDelay
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Driver{
		port:     port,
		clock:    clock,
		base:     options.BasePort,
		geometry: options.Geometry,
		timing:   options.Timing,
		logger:   logger,
	}, nil
}

// Geometry returns the medium layout the driver translates addresses with.
func (d *Driver) Geometry() disks.DiskGeometry {
	return d.geometry
}

// State returns the phase of the request in progress. Outside of a request
// this is always [StateIdle].
func (d *Driver) State() State {
	return d.state
}

// Ready reports whether [Driver.Init] has completed successfully.
func (d *Driver) Ready() bool {
	return d.ready
}

// MotorRunning reports whether the drive motor is enabled.
func (d *Driver) MotorRunning() bool {
	return d.motorOn
}

// Init resets the controller, programs it for polled 500 kbit/s operation,
// starts the motor and marks the driver ready. Calling it again once it has
// succeeded does nothing.
func (d *Driver) Init() error {
	if d.ready {
		return nil
	}

	d.info("resetting floppy controller", slog.String("base", fmt.Sprintf("%#x", d.base)))

	// Pulse reset. This also drops the motor.
	d.writeDOR(0)
	d.motorOn = false
	d.clock.Wait()
	d.writeDOR(DORReset | DORIRQDMA)

	_, err := d.waitStatus(MSRDataReady, MSRDataReady, d.timing.ResetTimeout)
	if err != nil {
		d.logerror("controller did not leave reset", slog.Any("err", err))
		return err
	}

	for i := 0; i < postResetSenseCount; i++ {
		if _, _, err = d.senseInterrupt(); err != nil {
			d.logerror("post-reset sense interrupt failed", slog.Int("drive", i), slog.Any("err", err))
			return err
		}
	}

	d.out(RegCCR, dataRate500K)
	if err = d.sendCommand(CmdSpecify, specifyStepUnload, specifyLoadNonDMA); err != nil {
		d.logerror("SPECIFY failed", slog.Any("err", err))
		return err
	}

	if err = d.MotorOn(); err != nil {
		return err
	}

	d.ready = true
	d.info("floppy controller ready", slog.String("geometry", d.geometry.Slug))
	return nil
}

// MotorOn enables the drive A motor and waits for it to spin up. It returns
// immediately if the motor is already running.
func (d *Driver) MotorOn() error {
	if d.motorOn {
		return nil
	}
	d.writeDOR(d.dor | DORMotorA)
	hal.Delay(d.clock, d.timing.SpinUpDelay)
	d.motorOn = true
	d.debug("motor on")
	return nil
}

// MotorOff disables the drive A motor. It does nothing if the motor is
// already off.
func (d *Driver) MotorOff() error {
	if !d.motorOn {
		return nil
	}
	d.writeDOR(d.dor &^ DORMotorA)
	d.motorOn = false
	d.debug("motor off")
	return nil
}

// ReadSector reads the sector at `lba` into `buffer`.
func (d *Driver) ReadSector(lba uint32, buffer *[minios.SectorSize]byte) error {
	return d.transferSector(CmdReadData, lba, buffer[:])
}

// WriteSector writes `data` to the sector at `lba`.
func (d *Driver) WriteSector(lba uint32, data *[minios.SectorSize]byte) error {
	return d.transferSector(CmdWriteData, lba, data[:])
}

func (d *Driver) transferSector(command uint8, lba uint32, buffer []byte) error {
	if !d.ready {
		return minios.ErrHardwareNotReady.WithMessage(
			fmt.Sprintf("sector %d requested before initialization", lba))
	}

	address, err := d.geometry.ToCHS(lba)
	if err != nil {
		return err
	}

	if err = d.MotorOn(); err != nil {
		return err
	}

	defer d.setState(StateIdle)
	err = d.runRequest(command, address, buffer)
	if err != nil {
		d.logerror(
			"sector transfer failed",
			slog.Uint64("lba", uint64(lba)),
			slog.String("chs", address.String()),
			slog.String("state", d.state.String()),
			slog.Any("err", err),
		)
		return err
	}

	d.debug(
		"sector transferred",
		slog.Bool("write", command == CmdWriteData),
		slog.Uint64("lba", uint64(lba)),
		slog.String("chs", address.String()),
	)
	return nil
}

func (d *Driver) runRequest(command uint8, address disks.CHS, buffer []byte) error {
	d.setState(StateRecalibrate)
	if err := d.recalibrate(); err != nil {
		return err
	}

	d.setState(StateSeek)
	if err := d.seek(address.Cylinder, address.Head); err != nil {
		return err
	}

	d.setState(StateCommand)
	err := d.sendCommand(
		command|FlagMFM,
		address.Head<<2,
		address.Cylinder,
		address.Head,
		address.Sector,
		sectorSizeCode,
		address.Sector, // Last sector to transfer: stop after this one.
		gap3Length,
		dataLength,
	)
	if err != nil {
		return err
	}

	d.setState(StateData)
	transferred, err := d.transfer(buffer, command == CmdReadData)
	if err != nil {
		return err
	}

	d.setState(StateResult)
	var result [ResultPhaseLength]byte
	for i := range result {
		if result[i], err = d.readByte(); err != nil {
			return err
		}
	}

	st0, st1, st2 := result[0], result[1], result[2]
	if st0&ST0InterruptCodeMask != 0 || transferred != len(buffer) {
		return minios.ErrIOFailure.WithMessage(
			fmt.Sprintf(
				"%s: %d of %d bytes, ST0=%#02x ST1=%#02x ST2=%#02x",
				address, transferred, len(buffer), st0, st1, st2,
			),
		)
	}
	return nil
}

// transfer moves `buffer` through the FIFO one byte at a time. It stops early
// without error if the controller leaves the execution phase; the caller
// detects the short transfer from the count and the result bytes.
func (d *Driver) transfer(buffer []byte, read bool) (int, error) {
	for i := range buffer {
		msr, err := d.waitStatus(MSRDataReady, MSRDataReady, d.timing.PollTimeout)
		if err != nil {
			return i, err
		}
		if msr&MSRNonDMA == 0 {
			return i, nil
		}

		if read {
			buffer[i] = d.in(RegFIFO)
		} else {
			d.out(RegFIFO, buffer[i])
		}
	}
	return len(buffer), nil
}

// recalibrate returns the head to cylinder 0.
func (d *Driver) recalibrate() error {
	if err := d.sendCommand(CmdRecalibrate, 0); err != nil {
		return err
	}
	return d.waitSeekEnd(0)
}

func (d *Driver) seek(cylinder, head uint8) error {
	if err := d.sendCommand(CmdSeek, head<<2, cylinder); err != nil {
		return err
	}
	return d.waitSeekEnd(cylinder)
}

// waitSeekEnd waits for drive A to finish moving the head, then confirms the
// head reached `cylinder`.
func (d *Driver) waitSeekEnd(cylinder uint8) error {
	_, err := d.waitStatus(
		MSRDataReady|MSRBusy|MSRDriveABusy, MSRDataReady, d.timing.SeekTimeout)
	if err != nil {
		return err
	}

	st0, presentCylinder, err := d.senseInterrupt()
	if err != nil {
		return err
	}
	if st0&ST0SeekEnd == 0 || st0&ST0InterruptCodeMask != 0 || presentCylinder != cylinder {
		return minios.ErrSeekFailure.WithMessage(
			fmt.Sprintf(
				"wanted cylinder %d, head at %d (ST0=%#02x)",
				cylinder, presentCylinder, st0,
			),
		)
	}
	return nil
}

// senseInterrupt acknowledges a completed reset, seek or recalibrate and
// returns ST0 and the present cylinder number.
func (d *Driver) senseInterrupt() (st0, cylinder uint8, err error) {
	if err = d.sendCommand(CmdSenseInterrupt); err != nil {
		return 0, 0, err
	}
	if st0, err = d.readByte(); err != nil {
		return 0, 0, err
	}
	if st0&ST0InterruptCodeMask == ST0InvalidCommand {
		// No interrupt was pending; the controller sends only ST0.
		return st0, 0, nil
	}
	cylinder, err = d.readByte()
	return st0, cylinder, err
}

func (d *Driver) sendCommand(command uint8, parameters ...uint8) error {
	if err := d.writeByte(command); err != nil {
		return err
	}
	for _, parameter := range parameters {
		if err := d.writeByte(parameter); err != nil {
			return err
		}
	}
	return nil
}

// writeByte waits until the controller accepts a byte from the CPU, then
// writes it to the FIFO.
func (d *Driver) writeByte(value uint8) error {
	_, err := d.waitStatus(MSRDataReady|MSRDirection, MSRDataReady, d.timing.PollTimeout)
	if err != nil {
		return err
	}
	d.out(RegFIFO, value)
	return nil
}

// readByte waits until the controller has a byte for the CPU, then reads it
// from the FIFO.
func (d *Driver) readByte() (uint8, error) {
	_, err := d.waitStatus(
		MSRDataReady|MSRDirection, MSRDataReady|MSRDirection, d.timing.PollTimeout)
	if err != nil {
		return 0, err
	}
	return d.in(RegFIFO), nil
}

// waitStatus polls the main status register until the bits selected by `mask`
// equal `want`, or until `budget` has elapsed.
func (d *Driver) waitStatus(mask, want uint8, budget time.Duration) (uint8, error) {
	deadline := d.clock.Now().Add(budget)
	for {
		msr := d.in(RegMSR)
		if msr&mask == want {
			return msr, nil
		}
		if hal.Expired(d.clock, deadline) {
			return msr, minios.ErrHardwareTimeout.WithMessage(
				fmt.Sprintf(
					"%s: MSR=%#02x after %s, wanted %#02x under mask %#02x",
					d.state, msr, budget, want, mask,
				),
			)
		}
		d.clock.Wait()
	}
}

func (d *Driver) setState(state State) {
	d.state = state
}

func (d *Driver) writeDOR(value uint8) {
	d.dor = value
	d.out(RegDOR, value)
}

func (d *Driver) in(register uint16) uint8 {
	return d.port.ReadPort(d.base + register)
}

func (d *Driver) out(register uint16, value uint8) {
	d.port.WritePort(d.base+register, value)
}

func (d *Driver) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	d.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func (d *Driver) debug(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelDebug, msg, attrs...)
}
func (d *Driver) info(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelInfo, msg, attrs...)
}
func (d *Driver) logerror(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelError, msg, attrs...)
}
