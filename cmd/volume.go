package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/andreitdr/MiniOS"
	"github.com/andreitdr/MiniOS/config"
	"github.com/andreitdr/MiniOS/drivers/fdc"
	"github.com/andreitdr/MiniOS/drivers/fdc/sim"
	"github.com/andreitdr/MiniOS/file_systems/fat12"
	"github.com/andreitdr/MiniOS/utilities/compression"
	"github.com/urfave/cli/v2"
	"github.com/xaionaro-go/bytesextra"
)

// compressedSuffix marks images stored with [compression.CompressImage].
const compressedSuffix = ".rle.gz"

// volume is a mounted image with the whole stack underneath it.
type volume struct {
	fs     *fat12.FileSystem
	driver *fdc.Driver
	logger *slog.Logger
	closer io.Closer
}

func (v *volume) Close() error {
	v.fs.Unmount()
	if err := v.driver.MotorOff(); err != nil {
		v.logger.Warn("failed to stop motor", slog.Any("err", err))
	}
	if v.closer != nil {
		return v.closer.Close()
	}
	return nil
}

func loadConfig(context *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := context.Path("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if level := context.String("log-level"); level != "" {
		cfg.Log.Level = level
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// openImage returns the image at `path` as a seekable stream. Compressed
// images are expanded into memory; nothing is ever written back to them.
func openImage(path string) (io.ReadWriteSeeker, io.Closer, error) {
	if !strings.HasSuffix(path, compressedSuffix) {
		file, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return file, file, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	var expanded bytes.Buffer
	if _, err = compression.DecompressImage(file, &expanded); err != nil {
		return nil, nil, fmt.Errorf("failed to expand %s: %w", path, err)
	}
	return bytesextra.NewReadWriteSeeker(expanded.Bytes()), nil, nil
}

// openDrive puts the image named by the first argument into a simulated
// drive and brings up the controller. The returned volume has no file system.
func openDrive(context *cli.Context) (*volume, error) {
	if context.NArg() < 1 {
		return nil, minios.ErrInvalidArgument.WithMessage("missing IMAGE argument")
	}

	cfg, err := loadConfig(context)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger(context.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	driverOptions, err := cfg.DriverOptions(logger)
	if err != nil {
		return nil, err
	}
	fsOptions, err := cfg.FileSystemOptions(logger)
	if err != nil {
		return nil, err
	}

	image, closer, err := openImage(context.Args().First())
	if err != nil {
		return nil, err
	}

	controller := sim.New(image, driverOptions.Geometry)
	controller.SetBase(driverOptions.BasePort)

	driver, err := fdc.New(controller, cfg.Clock(), driverOptions)
	if err == nil {
		err = driver.Init()
	}
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}

	return &volume{
		fs:     fat12.New(driver, fsOptions),
		driver: driver,
		logger: logger,
		closer: closer,
	}, nil
}

// openVolume is [openDrive] followed by mounting the file system.
func openVolume(context *cli.Context) (*volume, error) {
	vol, err := openDrive(context)
	if err != nil {
		return nil, err
	}
	if err = vol.fs.Mount(); err != nil {
		vol.Close()
		return nil, err
	}
	return vol, nil
}
