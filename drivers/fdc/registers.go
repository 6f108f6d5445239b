package fdc

// PrimaryBase is the I/O base of the first floppy controller on a PC.
const PrimaryBase uint16 = 0x3F0

// Register offsets from the controller's base port.
const (
	RegDOR  = 0x2 // Digital output register
	RegMSR  = 0x4 // Main status register (read)
	RegFIFO = 0x5 // Data FIFO
	RegCCR  = 0x7 // Configuration control register (write)
)

// Digital output register bits.
const (
	DORDriveMask = 0x03
	DORReset     = 1 << 2 // Cleared holds the controller in reset.
	DORIRQDMA    = 1 << 3
	DORMotorA    = 1 << 4
)

// Main status register bits.
const (
	MSRDriveABusy = 1 << iota // Drive A is seeking.
	MSRDriveBBusy
	MSRDriveCBusy
	MSRDriveDBusy
	MSRBusy      // A command is in progress.
	MSRNonDMA    // Execution phase of a non-DMA transfer.
	MSRDirection // Set when the controller has data for the CPU.
	MSRDataReady // RQM: the FIFO is ready for a transfer.
)

// Command opcodes.
const (
	CmdSpecify          = 0x03
	CmdSenseDriveStatus = 0x04
	CmdWriteData        = 0x05
	CmdReadData         = 0x06
	CmdRecalibrate      = 0x07
	CmdSenseInterrupt   = 0x08
	CmdSeek             = 0x0F

	// CmdOpcodeMask selects the opcode from a command byte carrying flags.
	CmdOpcodeMask = 0x1F
	// FlagMFM selects double-density recording.
	FlagMFM = 0x40
)

// Status register 0 bits.
const (
	ST0InterruptCodeMask = 0xC0
	ST0AbnormalEnd       = 0x40
	ST0InvalidCommand    = 0x80
	ST0SeekEnd           = 0x20
	ST0EquipmentCheck    = 0x10
	ST0HeadSelect        = 0x04
)

// Read/write command parameters for 512-byte MFM sectors.
const (
	sectorSizeCode = 2    // 128 << 2 == 512
	gap3Length     = 0x1B // 3.5" 1.44M
	dataLength     = 0xFF // Unused when sectorSizeCode != 0

	// ResultPhaseLength is the number of status bytes a read or write returns:
	// ST0, ST1, ST2, cylinder, head, sector, size code.
	ResultPhaseLength = 7
)

// Controller set-up values.
const (
	dataRate500K = 0x00
	// Step rate 8ms, head unload 240ms.
	specifyStepUnload = 0x8F
	// Head load 10ms, non-DMA mode.
	specifyLoadNonDMA = 0x0A | 0x01
	// The controller raises one interrupt per drive after a reset.
	postResetSenseCount = 4
)
