package main

import (
	"encoding/hex"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/andreitdr/MiniOS"
	"github.com/andreitdr/MiniOS/file_systems/common/basicstream"
	"github.com/andreitdr/MiniOS/file_systems/common/blockcache"
	"github.com/andreitdr/MiniOS/file_systems/fat12"
	"github.com/andreitdr/MiniOS/utilities/compression"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

const timestampLayout = "2006-01-02 15:04:05"

func showInfo(context *cli.Context) error {
	vol, err := openVolume(context)
	if err != nil {
		return err
	}
	defer vol.Close()

	params, err := vol.fs.BootParameters()
	if err != nil {
		return err
	}
	usage, err := vol.fs.Usage()
	if err != nil {
		return err
	}
	geometry := vol.driver.Geometry()
	bytesPerCluster := uint64(params.BytesPerCluster())

	w := tabwriter.NewWriter(context.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Drive:\t%s (%s)\n", geometry.Name, geometry.Slug)
	fmt.Fprintf(w, "OEM name:\t%s\n", params.OEMName)
	fmt.Fprintf(w, "Media descriptor:\t%#02x\n", params.Media)
	fmt.Fprintf(w, "Bytes per sector:\t%d\n", params.BytesPerSector)
	fmt.Fprintf(w, "Sectors per cluster:\t%d\n", params.SectorsPerCluster)
	fmt.Fprintf(w, "Reserved sectors:\t%d\n", params.ReservedSectors)
	fmt.Fprintf(w, "FATs:\t%d x %d sectors\n", params.NumFATs, params.SectorsPerFAT)
	fmt.Fprintf(w, "Root entries:\t%d\n", params.RootEntryCount)
	fmt.Fprintf(w, "Total sectors:\t%d\n", params.TotalSectors)
	fmt.Fprintf(w, "Geometry:\t%d heads, %d sectors/track\n", params.NumHeads, params.SectorsPerTrack)
	fmt.Fprintf(
		w,
		"Clusters:\t%d (%d used, %d bad, %d free)\n",
		usage.Total, usage.Used, usage.Bad, usage.Free)
	fmt.Fprintf(w, "Capacity:\t%s\n", humanize.IBytes(uint64(usage.Total)*bytesPerCluster))
	fmt.Fprintf(w, "Free space:\t%s\n", humanize.IBytes(uint64(usage.Free)*bytesPerCluster))
	return w.Flush()
}

// attributeFlags renders the attribute byte DOS-style, one letter per flag.
func attributeFlags(attributes uint8) string {
	flags := []struct {
		bit    uint8
		letter byte
	}{
		{fat12.AttrReadOnly, 'R'},
		{fat12.AttrHidden, 'H'},
		{fat12.AttrSystem, 'S'},
		{fat12.AttrArchived, 'A'},
	}

	var b strings.Builder
	for _, flag := range flags {
		if attributes&flag.bit != 0 {
			b.WriteByte(flag.letter)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func formatTimestamp(entry fat12.DirectoryEntry) string {
	if entry.LastModified.IsZero() {
		return "-"
	}
	return entry.LastModified.Format(timestampLayout)
}

func listFiles(context *cli.Context) error {
	vol, err := openVolume(context)
	if err != nil {
		return err
	}
	defer vol.Close()

	entries, err := vol.fs.Entries()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(context.App.Writer, 0, 4, 2, ' ', tabwriter.AlignRight)
	total := uint64(0)
	for _, entry := range entries {
		fmt.Fprintf(
			w,
			"%s\t%d\t %s\t %s\t\n",
			attributeFlags(entry.Attributes),
			entry.FileSize,
			formatTimestamp(entry),
			entry.Name)
		total += uint64(entry.FileSize)
	}
	if err = w.Flush(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(
		context.App.Writer, "%d file(s), %s\n", len(entries), humanize.IBytes(total))
	return err
}

func needName(context *cli.Context) (string, error) {
	if context.NArg() < 2 {
		return "", minios.ErrInvalidArgument.WithMessage("missing NAME argument")
	}
	return context.Args().Get(1), nil
}

func catFile(context *cli.Context) error {
	name, err := needName(context)
	if err != nil {
		return err
	}
	vol, err := openVolume(context)
	if err != nil {
		return err
	}
	defer vol.Close()

	file, err := vol.fs.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(context.App.Writer, &file)
	return err
}

func parseSectorArgument(context *cli.Context, index int, what string) (uint32, error) {
	value, err := strconv.ParseUint(context.Args().Get(index), 0, 32)
	if err != nil {
		return 0, minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("bad %s %q", what, context.Args().Get(index)))
	}
	return uint32(value), nil
}

// dumpSectors reads sectors straight from the drive, so it also works on
// disks with a damaged boot sector.
func dumpSectors(context *cli.Context) error {
	if context.NArg() < 2 || context.NArg() > 3 {
		return minios.ErrInvalidArgument.WithMessage("expected IMAGE LBA [COUNT]")
	}
	lba, err := parseSectorArgument(context, 1, "LBA")
	if err != nil {
		return err
	}
	count := uint32(1)
	if context.NArg() == 3 {
		if count, err = parseSectorArgument(context, 2, "COUNT"); err != nil {
			return err
		}
	}

	vol, err := openDrive(context)
	if err != nil {
		return err
	}
	defer vol.Close()

	geometry := vol.driver.Geometry()
	totalSectors := geometry.TotalSectors()
	if count == 0 || lba >= totalSectors || count > totalSectors-lba {
		return minios.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"sectors [%d, %d) not in [0, %d)", lba, uint64(lba)+uint64(count), totalSectors))
	}

	cache := blockcache.WrapDevice(vol.driver, lba, uint(count))
	stream, err := basicstream.New(cache.Size(), cache)
	if err != nil {
		return err
	}

	dumper := hex.Dumper(context.App.Writer)
	_, err = stream.WriteTo(dumper)
	if closeErr := dumper.Close(); err == nil {
		err = closeErr
	}
	return err
}

func statFile(context *cli.Context) error {
	name, err := needName(context)
	if err != nil {
		return err
	}
	vol, err := openVolume(context)
	if err != nil {
		return err
	}
	defer vol.Close()

	entry, err := vol.fs.Stat(name)
	if err != nil {
		return err
	}

	var chain []fat12.Cluster
	if entry.FirstCluster != fat12.FreeCluster {
		table, err := vol.fs.AllocationTable()
		if err != nil {
			return err
		}
		if chain, err = table.Chain(entry.FirstCluster); err != nil {
			return err
		}
	}

	mode := iofs.FileMode(entry.Mode() & 0o777)
	if entry.Mode()&minios.ModeTypeMask == minios.ModeTypeDirectory {
		mode |= iofs.ModeDir
	}

	w := tabwriter.NewWriter(context.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", entry.Name)
	fmt.Fprintf(w, "Size:\t%d (%s)\n", entry.FileSize, humanize.IBytes(uint64(entry.FileSize)))
	fmt.Fprintf(w, "Mode:\t%s (%#o)\n", mode, entry.Mode())
	fmt.Fprintf(w, "Attributes:\t%s\n", attributeFlags(entry.Attributes))
	fmt.Fprintf(w, "Modified:\t%s\n", formatTimestamp(entry))
	fmt.Fprintf(w, "First cluster:\t%d\n", entry.FirstCluster)
	fmt.Fprintf(w, "Clusters:\t%d %v\n", len(chain), chain)
	return w.Flush()
}

// convertFile opens the two path arguments and runs `convert` over them.
func convertFile(
	context *cli.Context,
	convert func(io.Reader, io.Writer) (int64, error),
	action string,
) error {
	if context.NArg() != 2 {
		return minios.ErrInvalidArgument.WithMessage("expected an input and an output file")
	}
	sourcePath := context.Args().Get(0)
	outputPath := context.Args().Get(1)

	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open file for reading: `%s`: %w", sourcePath, err)
	}
	defer source.Close()

	output, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to open file for writing: `%s`: %w", outputPath, err)
	}

	if _, err = convert(source, output); err != nil {
		output.Close()
		return fmt.Errorf("failed to %s %s: %w", action, sourcePath, err)
	}
	if err = output.Close(); err != nil {
		return err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(
		context.App.Writer, "Wrote %s to %s.\n", humanize.IBytes(uint64(info.Size())), outputPath)
	return err
}

func packImage(context *cli.Context) error {
	return convertFile(context, compression.CompressImage, "pack")
}

func unpackImage(context *cli.Context) error {
	return convertFile(context, compression.DecompressImage, "unpack")
}
