package cmm_test

import (
	"encoding/json"
	"testing"

	"github.com/axsys-go/cmm/cmm"
	"github.com/axsys-go/cmm/cmmutils"
	"github.com/axsys-go/cmm/driver"
	"github.com/axsys-go/cmm/driver/sim"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestQueryPartitions(t *testing.T) {
	_, allocator := readyAllocator(t, AllocatorSetup{
		Partitions: []driver.Partition{
			{Name: "dma", Phys: 0x1000_0000, SizeKB: 1024},
			{Name: "anonymous", Phys: 0x1010_0000, SizeKB: 4096},
		},
	})

	parts, err := allocator.QueryPartitions()
	require.NoError(t, err)
	require.Equal(t, []driver.Partition{
		{Name: "dma", Phys: 0x1000_0000, SizeKB: 1024},
		{Name: "anonymous", Phys: 0x1010_0000, SizeKB: 4096},
	}, parts)

	part, found, err := allocator.FindAnonymous()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(0x1010_0000), part.Phys)

	// Blocks come from the anonymous partition
	buffer := allocator.NewBuffer()
	view, err := buffer.Allocate(64*KiB, cmm.CacheModeNonCached, "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, buffer.Phys(), part.Phys)

	status, err := allocator.QueryStatus()
	require.NoError(t, err)
	require.Equal(t, uint64(5*MiB), status.TotalBytes)
	require.Equal(t, uint64(5*MiB-64*KiB), status.RemainBytes)
	require.Equal(t, uint32(1), status.BlockCount)
	require.Len(t, status.Partitions, 2)

	require.NoError(t, view.Reset())
	require.NoError(t, buffer.Free())
}

func TestFindAnonymousMissing(t *testing.T) {
	_, allocator := readyAllocator(t, AllocatorSetup{
		Partitions: []driver.Partition{{Name: "dma", Phys: 0x1000_0000, SizeKB: 1024}},
	})

	_, found, err := allocator.FindAnonymous()
	require.NoError(t, err)
	require.False(t, found)
}

func TestPlatformQueryFailures(t *testing.T) {
	ctrl := gomock.NewController(t)

	drv, allocator := mockAllocator(t, ctrl, cmm.CreateOptions{})

	drv.EXPECT().Partitions().Return(nil, driver.ErrNotInitialized).Times(2)
	_, err := allocator.QueryPartitions()
	requireCode(t, err, cmm.SystemCallFailed)
	require.ErrorIs(t, err, driver.ErrNotInitialized)

	_, found, err := allocator.FindAnonymous()
	requireCode(t, err, cmm.SystemCallFailed)
	require.False(t, found)

	drv.EXPECT().QueryStatus().Return(driver.Status{}, driver.ErrSyscall)
	_, err = allocator.QueryStatus()
	requireCode(t, err, cmm.SystemCallFailed)
}

func TestAllocatorUninitializedPlatform(t *testing.T) {
	drv, err := sim.New(sim.Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, drv.Close()) }()

	allocator, err := cmm.New(nil, drv, cmm.CreateOptions{})
	require.NoError(t, err)

	buffer := allocator.NewBuffer()
	_, err = buffer.Allocate(4*KiB, cmm.CacheModeNonCached, "")
	requireCode(t, err, cmm.AllocationFailed)
	require.ErrorIs(t, err, driver.ErrNotInitialized)
	require.Equal(t, cmm.BufferIdle, buffer.State())
}

func TestStatistics(t *testing.T) {
	_, allocator := readyAllocator(t, AllocatorSetup{})

	first := allocator.NewBuffer()
	firstView, err := first.Allocate(64*KiB, cmm.CacheModeCached, "first")
	require.NoError(t, err)

	second := allocator.NewBuffer()
	secondView, err := second.Allocate(8*KiB, cmm.CacheModeNonCached, "second")
	require.NoError(t, err)
	alias, err := second.MapView(0, 4*KiB, cmm.CacheModeCached)
	require.NoError(t, err)

	var stats cmmutils.Statistics
	allocator.Statistics(&stats)
	require.Equal(t, cmmutils.Statistics{
		BlockCount: 2,
		BlockBytes: 72 * KiB,
		ViewCount:  3,
		ViewBytes:  76 * KiB,
	}, stats)

	require.NoError(t, alias.Reset())
	require.NoError(t, secondView.Reset())
	require.NoError(t, second.Free())

	allocator.Statistics(&stats)
	require.Equal(t, cmmutils.Statistics{
		BlockCount: 1,
		BlockBytes: 64 * KiB,
		ViewCount:  1,
		ViewBytes:  64 * KiB,
	}, stats)

	require.NoError(t, firstView.Reset())
	require.NoError(t, first.Free())
}

func TestBuildStatsString(t *testing.T) {
	_, allocator := readyAllocator(t, AllocatorSetup{})

	buffer := allocator.NewBuffer()
	view, err := buffer.Allocate(16*KiB, cmm.CacheModeCached, "stats")
	require.NoError(t, err)
	require.NoError(t, view.Flush(0, cmm.ToEnd))

	attached := allocator.NewBuffer()
	require.NoError(t, attached.AttachExternal(buffer.Phys()+16*KiB, 4*KiB))

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(allocator.BuildStatsString(false)), &summary))
	require.NotContains(t, summary, "Allocations")
	require.Equal(t, "None", summary["Flags"])

	total := summary["Total"].(map[string]any)
	require.Equal(t, float64(1), total["BlockCount"])
	require.Equal(t, float64(16*KiB), total["BlockBytes"])
	require.Equal(t, float64(2), total["TrackedAllocations"])
	require.Equal(t, float64(20*KiB), total["TrackedBytes"])

	cacheOps := summary["CacheOperations"].(map[string]any)
	require.Equal(t, float64(1), cacheOps["FlushCalls"])
	require.Equal(t, float64(16*KiB), cacheOps["FlushBytes"])

	var detailed map[string]any
	require.NoError(t, json.Unmarshal([]byte(allocator.BuildStatsString(true)), &detailed))
	allocations := detailed["Allocations"].([]any)
	require.Len(t, allocations, 2)

	owned := allocations[0].(map[string]any)
	require.Equal(t, "stats", owned["Tag"])
	require.Equal(t, true, owned["Owned"])
	require.Len(t, owned["Views"], 1)

	external := allocations[1].(map[string]any)
	require.Equal(t, false, external["Owned"])
	require.Empty(t, external["Views"])

	require.NoError(t, attached.DetachExternal())
	require.NoError(t, view.Reset())
	require.NoError(t, buffer.Free())
}

func TestExternallySynchronized(t *testing.T) {
	_, allocator := readyAllocator(t, AllocatorSetup{
		AllocatorOptions: cmm.CreateOptions{Flags: cmm.CreateExternallySynchronized},
	})
	require.Equal(t, cmm.CreateExternallySynchronized, allocator.Flags())

	buffer := allocator.NewBuffer()
	view, err := buffer.Allocate(4*KiB, cmm.CacheModeNonCached, "")
	require.NoError(t, err)
	require.NoError(t, view.Reset())
	require.NoError(t, buffer.Free())
}

func TestCreateFlagsString(t *testing.T) {
	require.Equal(t, "None", cmm.CreateFlags(0).String())
	require.Equal(t, "CreateExternallySynchronized", cmm.CreateExternallySynchronized.String())
	require.Equal(t, "CreateExternallySynchronized|Unknown", (cmm.CreateExternallySynchronized | 2).String())
}
