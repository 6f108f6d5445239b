package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "fdtool",
		Usage: "Inspect FAT12 floppy images through the simulated disk controller",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load settings from a YAML `FILE`",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log `LEVEL` (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Show the boot parameters and cluster usage of an image",
				Action:    showInfo,
				ArgsUsage: "IMAGE",
			},
			{
				Name:      "ls",
				Usage:     "List the files in the root directory",
				Action:    listFiles,
				ArgsUsage: "IMAGE",
			},
			{
				Name:      "cat",
				Usage:     "Write a file's contents to standard output",
				Action:    catFile,
				ArgsUsage: "IMAGE NAME",
			},
			{
				Name:      "stat",
				Usage:     "Show the directory entry and cluster chain of a file",
				Action:    statFile,
				ArgsUsage: "IMAGE NAME",
			},
			{
				Name:      "dump",
				Usage:     "Hex dump raw sectors without mounting the file system",
				Action:    dumpSectors,
				ArgsUsage: "IMAGE LBA [COUNT]",
			},
			{
				Name:      "pack",
				Usage:     "Compress a raw image with RLE8 and gzip",
				Action:    packImage,
				ArgsUsage: "RAW_IMAGE OUTPUT",
			},
			{
				Name:      "unpack",
				Usage:     "Expand an RLE8 and gzip compressed image",
				Action:    unpackImage,
				ArgsUsage: "COMPRESSED_IMAGE OUTPUT",
			},
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
