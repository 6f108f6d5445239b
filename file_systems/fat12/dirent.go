package fat12

import (
	"encoding/binary"
	"time"

	"github.com/andreitdr/MiniOS"
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 1

	// AttrHidden is an attribute flag marking a directory entry as "hidden", meaning it
	// wouldn't show up in normal directory listings.
	AttrHidden = 2

	// AttrSystem is an attribute flag marking a directory entry as essential to the
	// operating system.
	AttrSystem = 4

	// AttrVolumeLabel is an attribute flag that marks an entry as holding the
	// volume label rather than a file. Long file name entries also carry it.
	AttrVolumeLabel = 8

	// AttrDirectory is an attribute flag marking a directory entry as being a directory.
	AttrDirectory = 16

	// AttrArchived is an attribute flag set whenever the directory entry is
	// created or modified, cleared by backup tools.
	AttrArchived = 32
)

// First-byte markers.
const (
	direntEndMarker = 0x00
	direntDeleted   = 0xE5
	direntKanjiE5   = 0x05
)

// Field offsets within a directory entry.
const (
	offDirentName       = 0
	offDirentAttributes = 11
	offDirentModTime    = 22
	offDirentModDate    = 24
	offDirentCluster    = 26
	offDirentSize       = 28
)

// DirectoryEntry is a decoded root directory entry.
type DirectoryEntry struct {
	Name         ShortName
	Attributes   uint8
	FirstCluster Cluster
	FileSize     uint32
	// LastModified is the zero time if the entry carries no date.
	LastModified time.Time
}

// DecodeDirectoryEntry decodes the 32-byte entry at the start of `raw`.
func DecodeDirectoryEntry(raw []byte) DirectoryEntry {
	le := binary.LittleEndian

	var entry DirectoryEntry
	copy(entry.Name[:], raw[offDirentName:offDirentName+len(entry.Name)])
	entry.Attributes = raw[offDirentAttributes]
	entry.FirstCluster = Cluster(le.Uint16(raw[offDirentCluster:]))
	entry.FileSize = le.Uint32(raw[offDirentSize:])
	entry.LastModified = TimestampFromParts(
		le.Uint16(raw[offDirentModDate:]), le.Uint16(raw[offDirentModTime:]))
	return entry
}

// Encode writes the entry into the first 32 bytes of `raw`. Fields this
// package doesn't model are zeroed.
func (e DirectoryEntry) Encode(raw []byte) {
	le := binary.LittleEndian

	clear(raw[:DirentSize])
	copy(raw[offDirentName:], e.Name[:])
	raw[offDirentAttributes] = e.Attributes
	datePart, timePart := TimestampToParts(e.LastModified)
	le.PutUint16(raw[offDirentModTime:], timePart)
	le.PutUint16(raw[offDirentModDate:], datePart)
	le.PutUint16(raw[offDirentCluster:], uint16(e.FirstCluster))
	le.PutUint32(raw[offDirentSize:], e.FileSize)
}

// IsEnd reports whether the entry terminates the directory.
func (e DirectoryEntry) IsEnd() bool {
	return e.Name[0] == direntEndMarker
}

func (e DirectoryEntry) IsDeleted() bool {
	return e.Name[0] == direntDeleted
}

func (e DirectoryEntry) IsVolumeLabel() bool {
	return e.Attributes&AttrVolumeLabel != 0
}

func (e DirectoryEntry) IsDirectory() bool {
	return e.Attributes&AttrDirectory != 0
}

// IsFile reports whether the entry names a regular file, i.e. it is none of
// terminal, deleted, volume label or directory.
func (e DirectoryEntry) IsFile() bool {
	return !e.IsEnd() && !e.IsDeleted() && !e.IsVolumeLabel() && !e.IsDirectory()
}

// Mode gives Unix-style type and permission bits for the entry. FAT has no
// owners, so every class gets the same permissions.
func (e DirectoryEntry) Mode() uint32 {
	mode := uint32(minios.ModeReadAll)
	if e.Attributes&AttrReadOnly == 0 {
		mode |= minios.ModeWriteAll
	}
	if e.IsDirectory() {
		return mode | minios.ModeExecuteAll | minios.ModeTypeDirectory
	}
	return mode | minios.ModeTypeRegular
}

// TimestampFromParts converts an on-disk FAT date and time into a time.Time in
// local time. A zero date yields the zero time.
func TimestampFromParts(datePart, timePart uint16) time.Time {
	if datePart == 0 {
		return time.Time{}
	}

	day := int(datePart & 0x001f)
	month := time.Month((datePart >> 5) & 0x000f)
	year := 1980 + int(datePart>>9)

	seconds := int(timePart&0x001f) * 2
	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)

	return time.Date(year, month, day, hours, minutes, seconds, 0, time.Local)
}

// TimestampToParts is the inverse of [TimestampFromParts]. Times before 1980
// encode as zero; seconds are rounded down to an even number.
func TimestampToParts(t time.Time) (datePart, timePart uint16) {
	if t.IsZero() {
		return 0, 0
	}
	t = t.In(time.Local)
	if t.Year() < 1980 {
		return 0, 0
	}

	datePart = uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	timePart = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return datePart, timePart
}
