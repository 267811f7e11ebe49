package cmm_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"unsafe"

	"github.com/axsys-go/cmm/cmm"
	"github.com/axsys-go/cmm/driver"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func decodeDump(t *testing.T, dump string) map[string]any {
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(dump), &decoded), dump)
	return decoded
}

func TestBufferDump(t *testing.T) {
	_, allocator := readyAllocator(t, AllocatorSetup{})

	buffer := allocator.NewBuffer()
	require.Equal(t, map[string]any{"State": "Idle"}, decodeDump(t, buffer.Dump(0)))

	view, err := buffer.Allocate(16*KiB, cmm.CacheModeCached, "dump")
	require.NoError(t, err)

	dump := decodeDump(t, buffer.Dump(4*KiB))
	require.Equal(t, "Owned", dump["State"])
	require.Equal(t, fmt.Sprintf("0x%x", buffer.Phys()), dump["Phys"])
	require.Equal(t, float64(16*KiB), dump["Size"])
	require.Equal(t, "CacheModeCached", dump["Mode"])
	require.Equal(t, true, dump["Owned"])
	require.Equal(t, "dump", dump["Tag"])
	require.Equal(t, float64(2), dump["References"])
	require.Equal(t, float64(1), dump["ViewCount"])
	require.Len(t, dump["Views"], 1)

	byPhys := dump["ByPhys"].(map[string]any)
	require.Equal(t, fmt.Sprintf("0x%x", buffer.Phys()+4*KiB), byPhys["Phys"])
	require.Equal(t, float64(16*KiB), byPhys["BlockSize"])
	require.NotContains(t, byPhys, "Error")

	// Past the block the platform has nothing to report
	byPhys = decodeDump(t, buffer.Dump(16*KiB))["ByPhys"].(map[string]any)
	require.Contains(t, byPhys, "Error")

	require.NoError(t, view.Reset())
	require.NoError(t, buffer.Free())
}

func TestViewDump(t *testing.T) {
	_, allocator := readyAllocator(t, AllocatorSetup{})

	buffer := allocator.NewBuffer()
	base, err := buffer.Allocate(16*KiB, cmm.CacheModeNonCached, "")
	require.NoError(t, err)
	view, err := buffer.MapViewFast(8*KiB, 4*KiB, cmm.CacheModeNonCached)
	require.NoError(t, err)

	dump := decodeDump(t, view.Dump(16))
	require.Equal(t, true, dump["Valid"])
	require.Equal(t, float64(8*KiB), dump["Offset"])
	require.Equal(t, float64(4*KiB), dump["Size"])
	require.Equal(t, true, dump["Fast"])

	byVirt := dump["ByVirt"].(map[string]any)
	require.Equal(t, fmt.Sprintf("0x%x", buffer.Phys()+8*KiB+16), byVirt["Phys"])
	require.Equal(t, "CacheModeNonCached", byVirt["Mode"])

	byVirt = decodeDump(t, view.Dump(4*KiB))["ByVirt"].(map[string]any)
	require.Contains(t, byVirt, "Error")

	require.NoError(t, view.Reset())
	require.Equal(t, map[string]any{"Valid": false}, decodeDump(t, view.Dump(0)))

	require.NoError(t, base.Reset())
	require.NoError(t, buffer.Free())
}

func TestVerify(t *testing.T) {
	_, allocator := readyAllocator(t, AllocatorSetup{})

	buffer := allocator.NewBuffer()
	requireCode(t, buffer.Verify(), cmm.NoAllocation)

	base, err := buffer.Allocate(64*KiB, cmm.CacheModeCached, "")
	require.NoError(t, err)
	window, err := buffer.MapView(16*KiB, 16*KiB, cmm.CacheModeNonCached)
	require.NoError(t, err)
	fast, err := window.MapViewFast(4*KiB, 4*KiB, cmm.CacheModeCached)
	require.NoError(t, err)

	require.NoError(t, buffer.Verify())

	require.NoError(t, fast.Reset())
	require.NoError(t, window.Reset())
	require.NoError(t, base.Reset())
	require.NoError(t, buffer.Free())
}

func TestVerifyAttachedOutsidePartitions(t *testing.T) {
	_, allocator := readyAllocator(t, AllocatorSetup{})

	part, found, err := allocator.FindAnonymous()
	require.NoError(t, err)
	require.True(t, found)

	buffer := allocator.NewBuffer()
	require.NoError(t, buffer.AttachExternal(part.Phys+uint64(part.SizeKB)*1024-4*KiB, 8*KiB))
	requireCode(t, buffer.Verify(), cmm.OutOfRange)
	require.NoError(t, buffer.DetachExternal())

	require.NoError(t, buffer.AttachExternal(part.Phys, 8*KiB))
	require.NoError(t, buffer.Verify())
	require.NoError(t, buffer.DetachExternal())
}

func TestVerifyDetectsPlatformMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)

	drv, allocator := mockAllocator(t, ctrl, cmm.CreateOptions{})

	baseVirt := memoryOf(8192)
	viewVirt := memoryOf(8192)
	drv.EXPECT().MemAlloc(uint32(8192), uint32(0x1000), driver.CacheModeNonCached, "").Return(mockPhys, baseVirt, nil)
	drv.EXPECT().Mmap(mockPhys, uint32(8192), driver.CacheModeNonCached).Return(viewVirt, nil)

	buffer := allocator.NewBuffer()
	view, err := buffer.Allocate(8192, cmm.CacheModeNonCached, "")
	require.NoError(t, err)

	partitions := []driver.Partition{{Name: "anonymous", Phys: mockPhys, SizeKB: 1024}}

	drv.EXPECT().BlockInfoByPhys(mockPhys).Return(driver.PhysBlockInfo{}, driver.ErrInvalidAddress)
	requireCode(t, buffer.Verify(), cmm.SystemCallFailed)

	drv.EXPECT().BlockInfoByPhys(mockPhys).Return(driver.PhysBlockInfo{Virt: baseVirt, BlockSize: 4096}, nil)
	requireCode(t, buffer.Verify(), cmm.Unknown)

	drv.EXPECT().BlockInfoByPhys(mockPhys).Return(driver.PhysBlockInfo{Virt: baseVirt, BlockSize: 8192}, nil)
	drv.EXPECT().Partitions().Return(partitions, nil)
	drv.EXPECT().BlockInfoByVirt(viewVirt).Return(driver.VirtBlockInfo{Phys: mockPhys + 4096}, nil)
	requireCode(t, buffer.Verify(), cmm.Unknown)

	// A failing partition query skips the range check
	drv.EXPECT().BlockInfoByPhys(mockPhys).Return(driver.PhysBlockInfo{Virt: baseVirt, BlockSize: 8192}, nil)
	drv.EXPECT().Partitions().Return(nil, driver.ErrSyscall)
	drv.EXPECT().BlockInfoByVirt(viewVirt).Return(driver.VirtBlockInfo{Phys: mockPhys}, nil)
	require.NoError(t, buffer.Verify())

	drv.EXPECT().Munmap(viewVirt, uint32(8192)).Return(nil)
	drv.EXPECT().MemFree(mockPhys, baseVirt).Return(nil)
	require.NoError(t, view.Reset())
	require.NoError(t, buffer.Free())
}

func TestVerifyHoldsAllocation(t *testing.T) {
	ctrl := gomock.NewController(t)

	drv, allocator := mockAllocator(t, ctrl, cmm.CreateOptions{})

	baseVirt := memoryOf(4096)
	drv.EXPECT().MemAlloc(uint32(4096), uint32(0x1000), driver.CacheModeNonCached, "").Return(mockPhys, baseVirt, nil)
	drv.EXPECT().Mmap(mockPhys, uint32(4096), driver.CacheModeNonCached).Return(baseVirt, nil)

	buffer := allocator.NewBuffer()
	view, err := buffer.Allocate(4096, cmm.CacheModeNonCached, "")
	require.NoError(t, err)

	// The last handles go away while the block is being queried
	gomock.InOrder(
		drv.EXPECT().BlockInfoByPhys(mockPhys).DoAndReturn(func(uint64) (driver.PhysBlockInfo, error) {
			require.NoError(t, view.Reset())
			require.NoError(t, buffer.Close())
			return driver.PhysBlockInfo{Virt: baseVirt, BlockSize: 4096}, nil
		}),
		drv.EXPECT().Munmap(baseVirt, uint32(4096)).Return(nil),
		drv.EXPECT().Partitions().Return([]driver.Partition{{Name: "anonymous", Phys: mockPhys, SizeKB: 1024}}, nil),
		drv.EXPECT().MemFree(mockPhys, baseVirt).Return(nil),
	)

	require.NoError(t, buffer.Verify())
	requireNoUsage(t, allocator)
}

func TestDumpHoldsAllocation(t *testing.T) {
	ctrl := gomock.NewController(t)

	drv, allocator := mockAllocator(t, ctrl, cmm.CreateOptions{})

	baseVirt := memoryOf(4096)
	drv.EXPECT().MemAlloc(uint32(4096), uint32(0x1000), driver.CacheModeNonCached, "").Return(mockPhys, baseVirt, nil)
	drv.EXPECT().Mmap(mockPhys, uint32(4096), driver.CacheModeNonCached).Return(baseVirt, nil)

	buffer := allocator.NewBuffer()
	view, err := buffer.Allocate(4096, cmm.CacheModeNonCached, "")
	require.NoError(t, err)

	gomock.InOrder(
		drv.EXPECT().BlockInfoByPhys(mockPhys+16).DoAndReturn(func(uint64) (driver.PhysBlockInfo, error) {
			require.NoError(t, view.Reset())
			require.NoError(t, buffer.Close())
			return driver.PhysBlockInfo{Virt: unsafe.Add(baseVirt, 16), BlockSize: 4096}, nil
		}),
		drv.EXPECT().Munmap(baseVirt, uint32(4096)).Return(nil),
		drv.EXPECT().MemFree(mockPhys, baseVirt).Return(nil),
	)

	dump := buffer.Dump(16)
	require.Contains(t, dump, `"State":"Owned"`)
	require.Contains(t, dump, `"BlockSize":4096`)
	requireNoUsage(t, allocator)
}
