package cmm_test

import (
	"os"
	"testing"

	"github.com/axsys-go/cmm/cmm"
	"github.com/axsys-go/cmm/cmmutils"
	"github.com/axsys-go/cmm/driver"
	"github.com/axsys-go/cmm/driver/sim"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
)

type AllocatorSetup struct {
	Partitions       []driver.Partition
	AllocatorOptions cmm.CreateOptions
}

// readyAllocator builds an allocator over an initialized simulated platform. At cleanup it
// checks that the test gave back every block and mapping.
func readyAllocator(t *testing.T, setup AllocatorSetup) (*sim.Driver, *cmm.Allocator) {
	drv, err := sim.New(sim.Options{Partitions: setup.Partitions})
	require.NoError(t, err)

	system, err := cmm.NewSystem(drv)
	require.NoError(t, err)
	require.True(t, system.Ok())

	logger := slog.New(slog.NewTextHandler(os.Stdout))
	allocator, err := cmm.New(logger, drv, setup.AllocatorOptions)
	require.NoError(t, err)

	t.Cleanup(func() {
		var stats cmmutils.Statistics
		allocator.Statistics(&stats)
		require.Equal(t, cmmutils.Statistics{}, stats)

		require.NoError(t, drv.Validate())
		require.NoError(t, system.Close())
		require.False(t, system.Ok())
		require.NoError(t, drv.Close())
	})

	return drv, allocator
}

func fill(data []byte, value byte) {
	for i := range data {
		data[i] = value
	}
}

func pattern(data []byte, seed byte) {
	for i := range data {
		data[i] = byte(i) ^ seed
	}
}

func requireCode(t *testing.T, err error, code cmm.ErrorCode) {
	t.Helper()

	require.Error(t, err)
	require.ErrorIs(t, err, code)
	require.Equal(t, code, cmm.CodeOf(err))
}
