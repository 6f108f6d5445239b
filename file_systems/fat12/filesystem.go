package fat12

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/andreitdr/MiniOS"
	"github.com/andreitdr/MiniOS/disks"
	"github.com/andreitdr/MiniOS/file_systems/common/blockcache"
	"github.com/boljen/go-bitmap"
)

// Options configures a [FileSystem].
type Options struct {
	// MaxRootDirSectors caps how many root directory sectors are loaded at
	// mount. Zero loads the whole directory the boot sector declares.
	MaxRootDirSectors uint
	// Geometry, if set, is compared against the boot sector at mount and any
	// mismatch is logged.
	Geometry *disks.DiskGeometry
	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// FileSystem is the mount context for one FAT12 volume. It owns the boot
// parameters, the allocation table, the root directory and a one-cluster
// scratch buffer, all sized when the volume is mounted.
//
// A FileSystem is not safe for concurrent use.
type FileSystem struct {
	device  minios.SectorDevice
	options Options
	logger  *slog.Logger

	mounted    bool
	generation uint32
	params     BootParameters
	table      AllocationTable
	root       []byte
	scratch    []byte
}

// New creates an unmounted file system on top of `device`.
func New(device minios.SectorDevice, options Options) *FileSystem {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileSystem{
		device:  device,
		options: options,
		logger:  logger,
	}
}

// Mount reads the boot sector, the first allocation table and the root
// directory. Any failure leaves the file system unmounted; every other
// operation then fails with [minios.ErrMountFailure] until Mount succeeds.
// Mounting again discards the previous state and invalidates its handles.
func (fs *FileSystem) Mount() error {
	fs.Unmount()

	var bootSector [minios.SectorSize]byte
	if err := fs.device.ReadSector(0, &bootSector); err != nil {
		return fs.mountFailed("reading boot sector", err)
	}

	params, err := ParseBootParameters(bootSector[:])
	if err != nil {
		return fs.mountFailed("parsing boot sector", err)
	}
	fs.checkGeometry(params)

	tableCache := blockcache.WrapDevice(fs.device, params.FATStart(), uint(params.SectorsPerFAT))
	table, err := tableCache.Data()
	if err != nil {
		return fs.mountFailed("loading allocation table", err)
	}

	rootSectors := uint(params.RootDirSectors())
	if limit := fs.options.MaxRootDirSectors; limit > 0 && limit < rootSectors {
		fs.warn(
			"root directory truncated",
			slog.Uint64("declared_sectors", uint64(rootSectors)),
			slog.Uint64("loaded_sectors", uint64(limit)),
		)
		rootSectors = limit
	}

	rootCache := blockcache.WrapDevice(fs.device, params.RootDirStart(), rootSectors)
	root, err := rootCache.Data()
	if err != nil {
		return fs.mountFailed("loading root directory", err)
	}

	fs.params = params
	fs.table = AllocationTable(table)
	fs.root = root
	fs.scratch = make([]byte, params.BytesPerCluster())
	fs.generation++
	fs.mounted = true

	fs.info(
		"mounted FAT12 volume",
		slog.String("oem", params.OEMName),
		slog.Uint64("total_sectors", uint64(params.TotalSectors)),
		slog.Uint64("clusters", uint64(params.TotalClusters())),
		slog.Int("bytes_per_cluster", int(params.BytesPerCluster())),
		slog.Int("root_entries", len(root)/DirentSize),
	)
	return nil
}

func (fs *FileSystem) mountFailed(step string, err error) error {
	fs.logerror("mount failed", slog.String("step", step), slog.Any("err", err))
	return minios.ErrMountFailure.Wrap(err)
}

func (fs *FileSystem) checkGeometry(params BootParameters) {
	geometry := fs.options.Geometry
	if geometry == nil {
		return
	}
	if uint(params.SectorsPerTrack) != geometry.SectorsPerTrack ||
		uint(params.NumHeads) != geometry.Heads ||
		params.TotalSectors > geometry.TotalSectors() {
		fs.warn(
			"boot sector geometry differs from drive",
			slog.String("drive", geometry.Slug),
			slog.Int("sectors_per_track", int(params.SectorsPerTrack)),
			slog.Int("heads", int(params.NumHeads)),
			slog.Uint64("total_sectors", uint64(params.TotalSectors)),
		)
	}
}

// Unmount drops every cache. Open handles become invalid.
func (fs *FileSystem) Unmount() {
	fs.mounted = false
	fs.params = BootParameters{}
	fs.table = nil
	fs.root = nil
	fs.scratch = nil
}

// Mounted reports whether the last call to Mount succeeded.
func (fs *FileSystem) Mounted() bool {
	return fs.mounted
}

func (fs *FileSystem) checkMounted() error {
	if !fs.mounted {
		return minios.ErrMountFailure.WithMessage("no volume mounted")
	}
	return nil
}

// BootParameters returns the parameters of the mounted volume.
func (fs *FileSystem) BootParameters() (BootParameters, error) {
	if err := fs.checkMounted(); err != nil {
		return BootParameters{}, err
	}
	return fs.params, nil
}

// AllocationTable returns a copy of the mounted volume's allocation table.
func (fs *FileSystem) AllocationTable() (AllocationTable, error) {
	if err := fs.checkMounted(); err != nil {
		return nil, err
	}
	return append(AllocationTable(nil), fs.table...), nil
}

// forEachFile calls `visit` for every regular file in the root directory, in
// directory order, until `visit` returns false.
func (fs *FileSystem) forEachFile(visit func(entry DirectoryEntry) bool) {
	for offset := 0; offset+DirentSize <= len(fs.root); offset += DirentSize {
		raw := fs.root[offset : offset+DirentSize]
		if raw[0] == direntEndMarker {
			return
		}
		if raw[0] == direntDeleted || raw[offDirentAttributes]&(AttrVolumeLabel|AttrDirectory) != 0 {
			continue
		}
		if !visit(DecodeDirectoryEntry(raw)) {
			return
		}
	}
}

func (fs *FileSystem) lookup(name string) (DirectoryEntry, error) {
	if err := fs.checkMounted(); err != nil {
		return DirectoryEntry{}, err
	}

	target := NormalizeName(name)
	var found DirectoryEntry
	ok := false
	fs.forEachFile(func(entry DirectoryEntry) bool {
		if entry.Name == target {
			found, ok = entry, true
			return false
		}
		return true
	})

	if !ok {
		return DirectoryEntry{}, minios.ErrNotFound.WithMessage(name)
	}
	return found, nil
}

// Open returns a handle for reading the file `name` from the root directory.
// Matching is on the normalized 8.3 form; see [NormalizeName].
func (fs *FileSystem) Open(name string) (OpenFile, error) {
	entry, err := fs.lookup(name)
	if err != nil {
		fs.debug("open failed", slog.String("name", name), slog.Any("err", err))
		return OpenFile{}, err
	}

	fs.debug(
		"opened file",
		slog.String("name", entry.Name.String()),
		slog.Int("cluster", int(entry.FirstCluster)),
		slog.Uint64("size", uint64(entry.FileSize)),
	)
	return OpenFile{
		fs:           fs,
		generation:   fs.generation,
		entry:        entry,
		size:         entry.FileSize,
		storedSize:   entry.FileSize,
		cluster:      entry.FirstCluster,
		clusterValid: true,
	}, nil
}

// Stat returns the directory entry for `name`.
func (fs *FileSystem) Stat(name string) (DirectoryEntry, error) {
	return fs.lookup(name)
}

// Exists reports whether `name` is a file in the root directory. It is false
// when nothing is mounted.
func (fs *FileSystem) Exists(name string) bool {
	_, err := fs.lookup(name)
	return err == nil
}

// List returns the number of files in the root directory.
func (fs *FileSystem) List() (int, error) {
	if err := fs.checkMounted(); err != nil {
		return 0, err
	}

	count := 0
	fs.forEachFile(func(DirectoryEntry) bool {
		count++
		return true
	})
	return count, nil
}

// Entries returns every file in the root directory, in directory order.
func (fs *FileSystem) Entries() ([]DirectoryEntry, error) {
	if err := fs.checkMounted(); err != nil {
		return nil, err
	}

	entries := []DirectoryEntry{}
	fs.forEachFile(func(entry DirectoryEntry) bool {
		entries = append(entries, entry)
		return true
	})
	return entries, nil
}

// ReadFile returns the contents of `name`. If reading stops early, the bytes
// read so far are returned with the error.
func (fs *FileSystem) ReadFile(name string) ([]byte, error) {
	file, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	contents := make([]byte, file.Size())
	n, err := io.ReadFull(&file, contents)
	if err != nil {
		return contents[:n], err
	}
	return contents, nil
}

// ClusterUsage summarizes the allocation table.
type ClusterUsage struct {
	Total int
	Used  int
	Free  int
	Bad   int
	// Allocated has bit i set if data cluster i+2 is in use or bad.
	Allocated bitmap.Bitmap
}

// Usage walks the allocation table and classifies every data cluster.
func (fs *FileSystem) Usage() (ClusterUsage, error) {
	if err := fs.checkMounted(); err != nil {
		return ClusterUsage{}, err
	}

	total := int(fs.params.TotalClusters())
	usage := ClusterUsage{
		Total:     total,
		Allocated: bitmap.NewSlice(total),
	}
	for i := 0; i < total; i++ {
		value, err := fs.table.Get(FirstDataCluster + Cluster(i))
		if err != nil {
			return ClusterUsage{}, minios.ErrFileSystemCorrupted.Wrap(err)
		}

		switch Cluster(value) {
		case FreeCluster:
			usage.Free++
			continue
		case BadCluster:
			usage.Bad++
		default:
			usage.Used++
		}
		usage.Allocated.Set(i, true)
	}
	return usage, nil
}

// next follows the allocation table from `cluster`, rejecting links that
// leave the volume.
func (fs *FileSystem) next(cluster Cluster) (Cluster, error) {
	next, err := fs.table.Next(cluster)
	if err != nil {
		return 0, err
	}
	if next != EndOfChain && next > fs.params.LastCluster() {
		return 0, minios.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"cluster %d links to %d, past the last cluster %d",
				cluster, next, fs.params.LastCluster()),
		)
	}
	return next, nil
}

// readCluster fetches every sector of `cluster` into the scratch buffer.
// Device errors are returned unchanged.
func (fs *FileSystem) readCluster(cluster Cluster) error {
	if cluster < FirstDataCluster || cluster > fs.params.LastCluster() {
		return minios.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("cluster %d is outside the data region", cluster))
	}

	lba := fs.params.ClusterToLBA(cluster)
	for i := 0; i < int(fs.params.SectorsPerCluster); i++ {
		sector := fs.scratch[i*minios.SectorSize : (i+1)*minios.SectorSize]
		err := fs.device.ReadSector(lba+uint32(i), (*[minios.SectorSize]byte)(sector))
		if err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileSystem) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	fs.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func (fs *FileSystem) debug(msg string, attrs ...slog.Attr) {
	fs.logattrs(slog.LevelDebug, msg, attrs...)
}
func (fs *FileSystem) info(msg string, attrs ...slog.Attr) {
	fs.logattrs(slog.LevelInfo, msg, attrs...)
}
func (fs *FileSystem) warn(msg string, attrs ...slog.Attr) {
	fs.logattrs(slog.LevelWarn, msg, attrs...)
}
func (fs *FileSystem) logerror(msg string, attrs ...slog.Attr) {
	fs.logattrs(slog.LevelError, msg, attrs...)
}
