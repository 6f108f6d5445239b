package fat12

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/andreitdr/MiniOS"
)

// OpenFile is a caller-owned handle to a file in the root directory. It
// refers to the [FileSystem] that opened it but holds nothing exclusively; the
// zero value is a closed handle.
//
// Writes are not persisted: [OpenFile.Write] only moves the position and grows
// the logical size. Reads never go past the size stored on the medium.
type OpenFile struct {
	fs         *FileSystem
	generation uint32
	entry      DirectoryEntry

	// size is the logical size; storedSize is what the medium holds.
	size       uint32
	storedSize uint32
	position   uint32

	// cluster is the clusterIndex'th cluster of the file. When valid and
	// clusterIndex == position / bytesPerCluster, it contains position.
	cluster      Cluster
	clusterIndex uint32
	clusterValid bool
}

func (f *OpenFile) check() error {
	if f.fs == nil {
		return minios.ErrInvalidHandle.WithMessage("file is closed")
	}
	if err := f.fs.checkMounted(); err != nil {
		return err
	}
	if f.generation != f.fs.generation {
		return minios.ErrInvalidHandle.WithMessage(
			fmt.Sprintf("%s was opened on a previous mount", f.entry.Name))
	}
	return nil
}

// IsOpen reports whether the handle can still be used.
func (f *OpenFile) IsOpen() bool {
	return f.check() == nil
}

// Entry returns the directory entry the file was opened from.
func (f *OpenFile) Entry() DirectoryEntry {
	return f.entry
}

// Size returns the logical size of the file, including unpersisted writes.
func (f *OpenFile) Size() uint32 {
	return f.size
}

// Position returns the current byte offset.
func (f *OpenFile) Position() uint32 {
	return f.position
}

// Read implements [io.Reader]. It copies at most Size() - Position() bytes
// and advances the position by exactly the number of bytes copied.
//
// If a sector can't be fetched partway through, the bytes already copied are
// returned together with the device's error. At the end of the file it
// returns 0 and [io.EOF].
func (f *OpenFile) Read(buffer []byte) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	if len(buffer) == 0 {
		return 0, nil
	}
	if f.position >= f.storedSize {
		return 0, io.EOF
	}

	want := f.storedSize - f.position
	if uint64(len(buffer)) < uint64(want) {
		want = uint32(len(buffer))
	}

	fs := f.fs
	bytesPerCluster := fs.params.BytesPerCluster()
	cluster, err := f.locate()
	if err != nil {
		return 0, err
	}

	total := uint32(0)
	for total < want {
		if err = fs.readCluster(cluster); err != nil {
			fs.logerror(
				"cluster read failed",
				slog.String("name", f.entry.Name.String()),
				slog.Int("cluster", int(cluster)),
				slog.Uint64("copied", uint64(total)),
				slog.Any("err", err),
			)
			return int(total), err
		}

		offset := f.position % bytesPerCluster
		copied := uint32(copy(buffer[total:want], fs.scratch[offset:]))
		total += copied
		f.position += copied

		if f.position%bytesPerCluster != 0 {
			break
		}

		// The rest of this cluster is consumed; move on to the next one.
		next, err := fs.next(cluster)
		if err != nil {
			f.clusterValid = false
			if total < want {
				return int(total), err
			}
			break
		}
		f.cluster = next
		f.clusterIndex++
		cluster = next

		if next == EndOfChain && total < want {
			return int(total), minios.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"%s: cluster chain ends at byte %d of %d",
					f.entry.Name, f.position, f.storedSize),
			)
		}
	}
	return int(total), nil
}

// locate makes the cached cluster the one containing the current position,
// walking the chain forward from the cached cluster when possible and from
// the first cluster otherwise.
func (f *OpenFile) locate() (Cluster, error) {
	target := f.position / f.fs.params.BytesPerCluster()
	if !f.clusterValid || f.clusterIndex > target {
		f.cluster = f.entry.FirstCluster
		f.clusterIndex = 0
		f.clusterValid = true
	}

	for f.clusterIndex < target {
		next, err := f.fs.next(f.cluster)
		if err != nil {
			f.clusterValid = false
			return 0, err
		}
		if next == EndOfChain {
			f.clusterValid = false
			return 0, minios.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"%s: cluster chain ends before byte %d", f.entry.Name, f.position))
		}
		f.cluster = next
		f.clusterIndex++
	}

	if f.cluster < FirstDataCluster || f.cluster > f.fs.params.LastCluster() {
		f.clusterValid = false
		return 0, minios.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("%s: invalid cluster %d at byte %d", f.entry.Name, f.cluster, f.position))
	}
	return f.cluster, nil
}

// Write implements [io.Writer] without touching the medium: the position
// advances by len(data) and the logical size grows to cover it.
func (f *OpenFile) Write(data []byte) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	if uint64(f.position)+uint64(len(data)) > math.MaxUint32 {
		return 0, minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%s: writing %d bytes at %d exceeds 4 GiB", f.entry.Name, len(data), f.position))
	}

	f.position += uint32(len(data))
	if f.position > f.size {
		f.size = f.position
	}
	f.fs.debug(
		"write not persisted",
		slog.String("name", f.entry.Name.String()),
		slog.Int("bytes", len(data)),
		slog.Uint64("size", uint64(f.size)),
	)
	return len(data), nil
}

// Seek implements [io.Seeker]. The resulting offset must lie in [0, Size()],
// otherwise [minios.ErrInvalidOffset] is returned and the position is kept.
// The cluster for the new position is found on the next read.
func (f *OpenFile) Seek(offset int64, whence int) (int64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(f.position)
	case io.SeekEnd:
		base = int64(f.size)
	default:
		return 0, minios.ErrInvalidArgument.WithMessage(fmt.Sprintf("invalid whence %d", whence))
	}

	target := base + offset
	if target < 0 || target > int64(f.size) {
		return int64(f.position), minios.ErrInvalidOffset.WithMessage(
			fmt.Sprintf("%s: offset %d not in [0, %d]", f.entry.Name, target, f.size))
	}
	f.position = uint32(target)
	return target, nil
}

// Close resets the handle to its zero value. Closing a closed handle does
// nothing.
func (f *OpenFile) Close() error {
	*f = OpenFile{}
	return nil
}
