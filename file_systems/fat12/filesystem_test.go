package fat12_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/andreitdr/MiniOS"
	"github.com/andreitdr/MiniOS/disks"
	"github.com/andreitdr/MiniOS/file_systems/fat12"
	minitest "github.com/andreitdr/MiniOS/testing"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var helloText = []byte("Hello from the root directory!\r\n")

// newVolume builds the usual test volume: two files, a volume label, a
// deleted entry and a subdirectory, in that directory order.
func newVolume(t *testing.T) (*minitest.FAT12ImageBuilder, *minitest.MemoryDevice) {
	builder := minitest.NewFAT12Image(t)
	builder.AddEntry(fat12.DirectoryEntry{
		Name:       fat12.NormalizeName("MINIOS"),
		Attributes: fat12.AttrVolumeLabel,
	})
	builder.AddFile("HELLO.TXT", helloText)

	deleted := fat12.DirectoryEntry{Name: fat12.NormalizeName("GONE.TXT"), FileSize: 10}
	deleted.Name[0] = 0xE5
	builder.AddEntry(deleted)

	builder.AddEntry(fat12.DirectoryEntry{
		Name:         fat12.NormalizeName("SYSTEM"),
		Attributes:   fat12.AttrDirectory,
		FirstCluster: 100,
	})
	builder.AddFile("KERNEL.BIN", minitest.CreateRandomImage(512, 5, t))

	return builder, minitest.NewMemoryDevice(builder.Bytes())
}

func mountVolume(t *testing.T) (*fat12.FileSystem, *minitest.FAT12ImageBuilder, *minitest.MemoryDevice) {
	builder, device := newVolume(t)
	fs := fat12.New(device, fat12.Options{})
	require.NoError(t, fs.Mount())
	return fs, builder, device
}

func TestMount__Basic(t *testing.T) {
	fs, _, device := mountVolume(t)
	assert.True(t, fs.Mounted())

	params, err := fs.BootParameters()
	require.NoError(t, err)
	assert.Equal(t, minitest.Floppy1440K(), params)

	// Boot sector, the first FAT only, then the whole root directory.
	expected := []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	for lba := uint32(19); lba < 33; lba++ {
		expected = append(expected, lba)
	}
	assert.Equal(t, expected, device.Reads)
}

func TestMount__NotMountedYet(t *testing.T) {
	_, device := newVolume(t)
	fs := fat12.New(device, fat12.Options{})

	assert.False(t, fs.Mounted())
	_, err := fs.Open("HELLO.TXT")
	assert.ErrorIs(t, err, minios.ErrMountFailure)
	_, err = fs.List()
	assert.ErrorIs(t, err, minios.ErrMountFailure)
	_, err = fs.Entries()
	assert.ErrorIs(t, err, minios.ErrMountFailure)
	_, err = fs.Stat("HELLO.TXT")
	assert.ErrorIs(t, err, minios.ErrMountFailure)
	_, err = fs.Usage()
	assert.ErrorIs(t, err, minios.ErrMountFailure)
	_, err = fs.BootParameters()
	assert.ErrorIs(t, err, minios.ErrMountFailure)
	_, err = fs.AllocationTable()
	assert.ErrorIs(t, err, minios.ErrMountFailure)
	assert.False(t, fs.Exists("HELLO.TXT"))
	assert.Empty(t, device.Reads)
}

func TestMount__FailuresAreTerminal(t *testing.T) {
	testCases := []struct {
		name     string
		failLBA  uint32
		expected []uint32
	}{
		{"BootSector", 0, nil},
		{"AllocationTable", 5, []uint32{0, 1, 2, 3, 4}},
		{"RootDirectory", 25, []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 19, 20, 21, 22, 23, 24}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, device := newVolume(t)
			device.FailReads[tc.failLBA] = minios.ErrIOFailure.WithMessage("injected")
			fs := fat12.New(device, fat12.Options{})

			err := fs.Mount()
			assert.ErrorIs(t, err, minios.ErrMountFailure)
			assert.ErrorIs(t, err, minios.ErrIOFailure)
			assert.Equal(t, tc.expected, device.Reads, "no sector may be retried")
			assert.False(t, fs.Mounted())

			_, err = fs.Open("HELLO.TXT")
			assert.ErrorIs(t, err, minios.ErrMountFailure)
			_, err = fs.List()
			assert.ErrorIs(t, err, minios.ErrMountFailure)
		})
	}
}

func TestMount__CorruptedBootSector(t *testing.T) {
	_, device := newVolume(t)
	clear(device.Data[:minios.SectorSize])
	fs := fat12.New(device, fat12.Options{})

	err := fs.Mount()
	assert.ErrorIs(t, err, minios.ErrMountFailure)
	assert.ErrorIs(t, err, minios.ErrFileSystemCorrupted)
	assert.Equal(t, []uint32{0}, device.Reads)
}

func TestMount__RetryAfterFailure(t *testing.T) {
	_, device := newVolume(t)
	device.FailReads[0] = minios.ErrIOFailure
	fs := fat12.New(device, fat12.Options{})
	require.Error(t, fs.Mount())

	delete(device.FailReads, 0)
	require.NoError(t, fs.Mount())
	assert.True(t, fs.Exists("HELLO.TXT"))
}

func TestMount__FailureDropsPreviousMount(t *testing.T) {
	fs, _, device := mountVolume(t)
	device.FailReads[0] = minios.ErrIOFailure

	require.Error(t, fs.Mount())
	assert.False(t, fs.Mounted())
	assert.False(t, fs.Exists("HELLO.TXT"))
}

func TestMount__LogsFailure(t *testing.T) {
	_, device := newVolume(t)
	device.FailReads[0] = minios.ErrIOFailure

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	fs := fat12.New(device, fat12.Options{Logger: logger})

	require.Error(t, fs.Mount())
	assert.Contains(t, logs.String(), "mount failed")
	assert.Contains(t, logs.String(), "step=\"reading boot sector\"")
}

func TestMount__GeometryMismatchIsOnlyAWarning(t *testing.T) {
	_, device := newVolume(t)
	geometry := disks.MustGetPredefinedDiskGeometry("3.5-dd-720k")

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	fs := fat12.New(device, fat12.Options{Geometry: &geometry, Logger: logger})

	require.NoError(t, fs.Mount())
	assert.Contains(t, logs.String(), "boot sector geometry differs from drive")
}

func TestMount__MaxRootDirSectors(t *testing.T) {
	builder := minitest.NewFAT12Image(t)
	// 16 entries fill exactly one sector, so the 17th lands in the second.
	for i := 0; i < 17; i++ {
		builder.AddFile(string(rune('A'+i))+".DAT", []byte{byte(i)})
	}
	device := minitest.NewMemoryDevice(builder.Bytes())

	capped := fat12.New(device, fat12.Options{MaxRootDirSectors: 1})
	require.NoError(t, capped.Mount())
	count, err := capped.List()
	require.NoError(t, err)
	assert.Equal(t, 16, count)
	assert.False(t, capped.Exists("Q.DAT"))

	full := fat12.New(device, fat12.Options{})
	require.NoError(t, full.Mount())
	count, err = full.List()
	require.NoError(t, err)
	assert.Equal(t, 17, count)
	assert.True(t, full.Exists("q.dat"))
}

func TestOpen__NotFound(t *testing.T) {
	fs, _, _ := mountVolume(t)

	_, err := fs.Open("MISSING.TXT")
	assert.ErrorIs(t, err, minios.ErrNotFound)
	assert.Contains(t, err.Error(), "MISSING.TXT")
}

func TestOpen__SkipsNonFiles(t *testing.T) {
	fs, _, _ := mountVolume(t)

	for _, name := range []string{"MINIOS", "SYSTEM", "\xE5ONE.TXT", "GONE.TXT"} {
		_, err := fs.Open(name)
		assert.ErrorIsf(t, err, minios.ErrNotFound, "%q", name)
	}
}

func TestOpen__CaseInsensitive(t *testing.T) {
	fs, _, _ := mountVolume(t)

	for _, name := range []string{"HELLO.TXT", "hello.txt", "Hello.Txt"} {
		file, err := fs.Open(name)
		require.NoErrorf(t, err, "%q", name)
		assert.EqualValues(t, len(helloText), file.Size())
		assert.Equal(t, "HELLO.TXT", file.Entry().Name.String())
	}
}

func TestOpen__LeadingE5Name(t *testing.T) {
	builder := minitest.NewFAT12Image(t)
	entry := builder.AddFile("\xE5SCAPE.DAT", helloText)
	require.EqualValues(t, 0x05, entry.Name[0], "leading 0xE5 must be stored as 0x05")

	fs := fat12.New(minitest.NewMemoryDevice(builder.Bytes()), fat12.Options{})
	require.NoError(t, fs.Mount())

	count, err := fs.List()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := fs.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := fs.ReadFile(entries[0].Name.String())
	require.NoError(t, err)
	assert.Equal(t, helloText, data)
}

func TestOpen__StopsAtEndMarker(t *testing.T) {
	builder, device := newVolume(t)

	// Put a valid-looking entry after the end marker.
	rootStart := int(builder.Params.RootDirStart()) * minios.SectorSize
	hidden := fat12.DirectoryEntry{Name: fat12.NormalizeName("AFTER.END"), FirstCluster: 2, FileSize: 1}
	hidden.Encode(device.Data[rootStart+6*fat12.DirentSize:])

	fs := fat12.New(device, fat12.Options{})
	require.NoError(t, fs.Mount())
	assert.False(t, fs.Exists("AFTER.END"))
}

func TestList(t *testing.T) {
	fs, _, _ := mountVolume(t)

	count, err := fs.List()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestList__Empty(t *testing.T) {
	device := minitest.NewMemoryDevice(minitest.NewFAT12Image(t).Bytes())
	fs := fat12.New(device, fat12.Options{})
	require.NoError(t, fs.Mount())

	count, err := fs.List()
	require.NoError(t, err)
	assert.Zero(t, count)

	entries, err := fs.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntries(t *testing.T) {
	builder := minitest.NewFAT12Image(t)
	hello := builder.AddFile("HELLO.TXT", helloText)
	kernel := builder.AddFile("KERNEL.BIN", make([]byte, 1300))
	fs := fat12.New(minitest.NewMemoryDevice(builder.Bytes()), fat12.Options{})
	require.NoError(t, fs.Mount())

	entries, err := fs.Entries()
	require.NoError(t, err)
	if diff := cmp.Diff([]fat12.DirectoryEntry{hello, kernel}, entries); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}
	assert.EqualValues(t, 2, entries[0].FirstCluster)
	assert.EqualValues(t, 3, entries[1].FirstCluster)
}

func TestStat(t *testing.T) {
	fs, _, _ := mountVolume(t)

	entry, err := fs.Stat("kernel.bin")
	require.NoError(t, err)
	assert.EqualValues(t, 5*512, entry.FileSize)
	assert.EqualValues(t, fat12.AttrArchived, entry.Attributes)

	_, err = fs.Stat("nope")
	assert.ErrorIs(t, err, minios.ErrNotFound)
}

func TestReadFile(t *testing.T) {
	fs, builder, _ := mountVolume(t)

	contents, err := fs.ReadFile("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, helloText, contents)

	kernel, err := fs.ReadFile("KERNEL.BIN")
	require.NoError(t, err)
	entry, err := fs.Stat("KERNEL.BIN")
	require.NoError(t, err)
	assert.Equal(t, builder.ClusterData(entry.FirstCluster), kernel[:512])
	assert.Len(t, kernel, 5*512)
}

func TestReadFile__EmptyFile(t *testing.T) {
	builder := minitest.NewFAT12Image(t)
	builder.AddFile("EMPTY", nil)
	fs := fat12.New(minitest.NewMemoryDevice(builder.Bytes()), fat12.Options{})
	require.NoError(t, fs.Mount())

	contents, err := fs.ReadFile("EMPTY")
	require.NoError(t, err)
	assert.Empty(t, contents)
}

func TestReadFile__PartialOnDeviceError(t *testing.T) {
	fs, _, device := mountVolume(t)
	entry, err := fs.Stat("KERNEL.BIN")
	require.NoError(t, err)

	params, err := fs.BootParameters()
	require.NoError(t, err)
	device.FailReads[params.ClusterToLBA(entry.FirstCluster+3)] = minios.ErrIOFailure

	contents, err := fs.ReadFile("KERNEL.BIN")
	assert.ErrorIs(t, err, minios.ErrIOFailure)
	assert.Len(t, contents, 3*512)
}

func TestAllocationTable__IsACopy(t *testing.T) {
	fs, _, _ := mountVolume(t)

	table, err := fs.AllocationTable()
	require.NoError(t, err)
	require.NoError(t, table.Set(2, 0))

	again, err := fs.AllocationTable()
	require.NoError(t, err)
	value, err := again.Get(2)
	require.NoError(t, err)
	assert.EqualValues(t, 0xFFF, value)
}

func TestUsage(t *testing.T) {
	builder := minitest.NewFAT12Image(t)
	builder.AddFile("A.BIN", make([]byte, 3*512))
	builder.AddFileAt("B.BIN", make([]byte, 600), []fat12.Cluster{10, 12})
	require.NoError(t, builder.Table.Set(20, uint16(fat12.BadCluster)))
	fs := fat12.New(minitest.NewMemoryDevice(builder.Bytes()), fat12.Options{})
	require.NoError(t, fs.Mount())

	usage, err := fs.Usage()
	require.NoError(t, err)
	assert.Equal(t, 2847, usage.Total)
	assert.Equal(t, 5, usage.Used)
	assert.Equal(t, 1, usage.Bad)
	assert.Equal(t, 2847-6, usage.Free)

	for _, cluster := range []int{2, 3, 4, 10, 12, 20} {
		assert.Truef(t, usage.Allocated.Get(cluster-2), "cluster %d", cluster)
	}
	for _, cluster := range []int{5, 11, 13, 2848} {
		assert.Falsef(t, usage.Allocated.Get(cluster-2), "cluster %d", cluster)
	}
}

func TestUnmount(t *testing.T) {
	fs, _, _ := mountVolume(t)
	fs.Unmount()

	assert.False(t, fs.Mounted())
	_, err := fs.Open("HELLO.TXT")
	assert.True(t, errors.Is(err, minios.ErrMountFailure))
}
