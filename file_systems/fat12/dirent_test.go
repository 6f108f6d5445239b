package fat12_test

import (
	"testing"
	"time"

	"github.com/andreitdr/MiniOS/file_systems/fat12"
	"github.com/stretchr/testify/assert"
)

func TestDecodeDirectoryEntry(t *testing.T) {
	raw := []byte{
		// Name
		'K', 'E', 'R', 'N', 'E', 'L', ' ', ' ', 'B', 'I', 'N',
		// Attributes
		fat12.AttrReadOnly | fat12.AttrSystem,
		// Reserved, created, accessed, cluster high
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		// Modified time 12:10:20
		0x4A, 0x61,
		// Modified date 1995-08-24
		0x18, 0x1F,
		// First cluster
		0x2A, 0x00,
		// Size 74752
		0x00, 0x24, 0x01, 0x00,
	}

	entry := fat12.DecodeDirectoryEntry(raw)
	assert.Equal(t, "KERNEL.BIN", entry.Name.String())
	assert.EqualValues(t, fat12.AttrReadOnly|fat12.AttrSystem, entry.Attributes)
	assert.EqualValues(t, 42, entry.FirstCluster)
	assert.EqualValues(t, 74752, entry.FileSize)
	assert.Equal(
		t, time.Date(1995, time.August, 24, 12, 10, 20, 0, time.Local), entry.LastModified)
	assert.True(t, entry.IsFile())
}

func TestDirectoryEntry__EncodeRoundTrip(t *testing.T) {
	entry := fat12.DirectoryEntry{
		Name:         fat12.NormalizeName("boot.cfg"),
		Attributes:   fat12.AttrArchived | fat12.AttrHidden,
		FirstCluster: 0x0ABC,
		FileSize:     123456,
		LastModified: time.Date(2004, time.February, 29, 23, 59, 58, 0, time.Local),
	}

	raw := make([]byte, fat12.DirentSize)
	for i := range raw {
		raw[i] = 0xCC
	}
	entry.Encode(raw)

	assert.Equal(t, entry, fat12.DecodeDirectoryEntry(raw))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, raw[12:22], "reserved bytes not cleared")
}

func TestDirectoryEntry__States(t *testing.T) {
	var end fat12.DirectoryEntry
	assert.True(t, end.IsEnd())
	assert.False(t, end.IsFile())

	deleted := fat12.DirectoryEntry{Name: fat12.NormalizeName("x.txt")}
	deleted.Name[0] = 0xE5
	assert.True(t, deleted.IsDeleted())
	assert.False(t, deleted.IsFile())

	label := fat12.DirectoryEntry{Name: fat12.NormalizeName("MINIOS"), Attributes: fat12.AttrVolumeLabel}
	assert.True(t, label.IsVolumeLabel())
	assert.False(t, label.IsFile())

	dir := fat12.DirectoryEntry{Name: fat12.NormalizeName("SYSTEM"), Attributes: fat12.AttrDirectory}
	assert.True(t, dir.IsDirectory())
	assert.False(t, dir.IsFile())

	longName := fat12.DirectoryEntry{Name: fat12.NormalizeName("A"), Attributes: 0x0F}
	assert.False(t, longName.IsFile())
}

func TestTimestamp__ZeroAndPre1980(t *testing.T) {
	assert.True(t, fat12.TimestampFromParts(0, 0x1234).IsZero())

	datePart, timePart := fat12.TimestampToParts(time.Time{})
	assert.Zero(t, datePart)
	assert.Zero(t, timePart)

	datePart, _ = fat12.TimestampToParts(time.Date(1975, time.May, 1, 0, 0, 0, 0, time.Local))
	assert.Zero(t, datePart)
}

func TestTimestamp__OddSecondsRoundDown(t *testing.T) {
	datePart, timePart := fat12.TimestampToParts(
		time.Date(1999, time.December, 31, 23, 59, 59, 0, time.Local))
	assert.Equal(
		t,
		time.Date(1999, time.December, 31, 23, 59, 58, 0, time.Local),
		fat12.TimestampFromParts(datePart, timePart),
	)
}

func TestDirectoryEntry__Mode(t *testing.T) {
	file := fat12.DirectoryEntry{Attributes: fat12.AttrArchived}
	assert.EqualValues(t, 0o100666, file.Mode())

	readOnly := fat12.DirectoryEntry{Attributes: fat12.AttrReadOnly | fat12.AttrSystem}
	assert.EqualValues(t, 0o100444, readOnly.Mode())

	dir := fat12.DirectoryEntry{Attributes: fat12.AttrDirectory}
	assert.EqualValues(t, 0o40777, dir.Mode())
}
