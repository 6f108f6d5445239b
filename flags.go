package minios

// Permission bits in the layout of a Unix st_mode, used to present directory
// entries the way stat(2) would.
const (
	ModeOtherExecute = 1 << iota // 0001
	ModeOtherWrite               // 0002
	ModeOtherRead                // 0004
	ModeGroupExecute             // 0010
	ModeGroupWrite               // 0020
	ModeGroupRead                // 0040
	ModeUserExecute              // 0100
	ModeUserWrite                // 0200
	ModeUserRead                 // 0400
)

const ModeReadAll = ModeUserRead | ModeGroupRead | ModeOtherRead
const ModeWriteAll = ModeUserWrite | ModeGroupWrite | ModeOtherWrite
const ModeExecuteAll = ModeUserExecute | ModeGroupExecute | ModeOtherExecute

// File type bits.
const (
	ModeTypeDirectory = 0x4000
	ModeTypeRegular   = 0x8000
	ModeTypeMask      = 0xF000
)
