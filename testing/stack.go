package testing

import (
	"testing"
	"time"

	"github.com/andreitdr/MiniOS/disks"
	"github.com/andreitdr/MiniOS/drivers/fdc"
	"github.com/andreitdr/MiniOS/drivers/fdc/sim"
	"github.com/andreitdr/MiniOS/file_systems/fat12"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// FastTiming keeps deadlines short so that fake-clock timeouts need few
// polls.
func FastTiming() fdc.Timing {
	return fdc.Timing{
		PollTimeout:  100 * time.Microsecond,
		SeekTimeout:  200 * time.Microsecond,
		ResetTimeout: 100 * time.Microsecond,
		SpinUpDelay:  50 * time.Microsecond,
	}
}

// SimulatedStack is the whole storage stack running on a simulated
// controller and a fake clock.
type SimulatedStack struct {
	Controller *sim.Controller
	Clock      *FakeClock
	Driver     *fdc.Driver
	FS         *fat12.FileSystem
}

// NewSimulatedStack puts `image` in a simulated 1.44M drive and initializes
// the driver. The file system is created but not mounted.
func NewSimulatedStack(t *testing.T, image []byte) *SimulatedStack {
	geometry := disks.MustGetPredefinedDiskGeometry(disks.DefaultFloppySlug)
	controller := sim.New(bytesextra.NewReadWriteSeeker(image), geometry)
	clock := NewFakeClock(time.Microsecond)

	driver, err := fdc.New(controller, clock, fdc.Options{Geometry: geometry, Timing: FastTiming()})
	require.NoError(t, err)
	require.NoError(t, driver.Init(), "driver failed to initialize")

	return &SimulatedStack{
		Controller: controller,
		Clock:      clock,
		Driver:     driver,
		FS:         fat12.New(driver, fat12.Options{Geometry: &geometry}),
	}
}
