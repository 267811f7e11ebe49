//go:build axsys && cgo

// Package axsys binds driver.Driver onto the vendor AX_SYS C API. It is only built with the
// axsys build tag and needs the vendor headers and libax_sys at build time.
package axsys

/*
#cgo LDFLAGS: -lax_sys
#include <stdlib.h>
#include <ax_sys_api.h>
*/
import "C"

import (
	"unsafe"

	"github.com/axsys-go/cmm/driver"
	"github.com/cockroachdb/errors"
)

// Driver forwards every call to the platform library. The library synchronizes internally, so
// Driver holds no state of its own.
type Driver struct{}

var _ driver.Driver = Driver{}

func New() Driver {
	return Driver{}
}

func check(ret C.AX_S32, call string) error {
	if ret != 0 {
		return errors.Wrapf(driver.ErrSyscall, "%s returned 0x%X", call, uint32(ret))
	}
	return nil
}

func (Driver) Init() error {
	return check(C.AX_SYS_Init(), "AX_SYS_Init")
}

func (Driver) Deinit() error {
	return check(C.AX_SYS_Deinit(), "AX_SYS_Deinit")
}

func (Driver) MemAlloc(size uint32, align uint32, mode driver.CacheMode, token string) (uint64, unsafe.Pointer, error) {
	var phys C.AX_U64
	var virt unsafe.Pointer

	ctoken := C.CString(token)
	defer C.free(unsafe.Pointer(ctoken))

	var ret C.AX_S32
	if mode == driver.CacheModeCached {
		ret = C.AX_SYS_MemAllocCached(&phys, &virt, C.AX_U32(size), C.AX_U32(align), (*C.AX_S8)(unsafe.Pointer(ctoken)))
	} else {
		ret = C.AX_SYS_MemAlloc(&phys, &virt, C.AX_U32(size), C.AX_U32(align), (*C.AX_S8)(unsafe.Pointer(ctoken)))
	}
	if ret != 0 {
		return 0, nil, errors.Wrapf(driver.ErrOutOfMemory, "AX_SYS_MemAlloc failed with 0x%x", uint32(ret))
	}
	return uint64(phys), virt, nil
}

func (Driver) MemFree(phys uint64, virt unsafe.Pointer) error {
	return check(C.AX_SYS_MemFree(C.AX_U64(phys), virt), "AX_SYS_MemFree")
}

func mapped(ptr unsafe.Pointer, call string, phys uint64) (unsafe.Pointer, error) {
	if ptr == nil {
		return nil, errors.Wrapf(driver.ErrSyscall, "%s failed for 0x%x", call, phys)
	}
	return ptr, nil
}

func (Driver) Mmap(phys uint64, size uint32, mode driver.CacheMode) (unsafe.Pointer, error) {
	if mode == driver.CacheModeCached {
		return mapped(C.AX_SYS_MmapCache(C.AX_U64(phys), C.AX_U32(size)), "AX_SYS_MmapCache", phys)
	}
	return mapped(C.AX_SYS_Mmap(C.AX_U64(phys), C.AX_U32(size)), "AX_SYS_Mmap", phys)
}

func (Driver) MmapFast(phys uint64, size uint32, mode driver.CacheMode) (unsafe.Pointer, error) {
	if mode == driver.CacheModeCached {
		return mapped(C.AX_SYS_MmapCacheFast(C.AX_U64(phys), C.AX_U32(size)), "AX_SYS_MmapCacheFast", phys)
	}
	return mapped(C.AX_SYS_MmapFast(C.AX_U64(phys), C.AX_U32(size)), "AX_SYS_MmapFast", phys)
}

func (Driver) Munmap(virt unsafe.Pointer, size uint32) error {
	return check(C.AX_SYS_Munmap(virt, C.AX_U32(size)), "AX_SYS_Munmap")
}

func (Driver) FlushCache(phys uint64, virt unsafe.Pointer, size uint32) error {
	return check(C.AX_SYS_MflushCache(C.AX_U64(phys), virt, C.AX_U32(size)), "AX_SYS_MflushCache")
}

func (Driver) InvalidateCache(phys uint64, virt unsafe.Pointer, size uint32) error {
	return check(C.AX_SYS_MinvalidateCache(C.AX_U64(phys), virt, C.AX_U32(size)), "AX_SYS_MinvalidateCache")
}

// The platform reports 0 for non-cached memory
func cacheMode(memType C.AX_S32) driver.CacheMode {
	if memType == 0 {
		return driver.CacheModeNonCached
	}
	return driver.CacheModeCached
}

func (Driver) BlockInfoByPhys(phys uint64) (driver.PhysBlockInfo, error) {
	var memType C.AX_S32
	var virt unsafe.Pointer
	var blockSize C.AX_U32

	err := check(C.AX_SYS_MemGetBlockInfoByPhy(C.AX_U64(phys), &memType, &virt, &blockSize), "AX_SYS_MemGetBlockInfoByPhy")
	if err != nil {
		return driver.PhysBlockInfo{}, errors.Wrapf(driver.ErrInvalidAddress, "%v", err)
	}

	return driver.PhysBlockInfo{
		Mode:      cacheMode(memType),
		Virt:      virt,
		BlockSize: uint32(blockSize),
	}, nil
}

func (Driver) BlockInfoByVirt(virt unsafe.Pointer) (driver.VirtBlockInfo, error) {
	var phys C.AX_U64
	var memType C.AX_S32

	err := check(C.AX_SYS_MemGetBlockInfoByVirt(virt, &phys, &memType), "AX_SYS_MemGetBlockInfoByVirt")
	if err != nil {
		return driver.VirtBlockInfo{}, errors.Wrapf(driver.ErrInvalidAddress, "%v", err)
	}

	return driver.VirtBlockInfo{
		Phys: uint64(phys),
		Mode: cacheMode(memType),
	}, nil
}

func partitions(info *C.AX_CMM_PARTITION_INFO_T) []driver.Partition {
	count := int(info.PartitionCnt)
	parts := make([]driver.Partition, 0, count)
	for i := 0; i < count; i++ {
		part := &info.PartitionInfo[i]
		parts = append(parts, driver.Partition{
			Name:   C.GoString((*C.char)(unsafe.Pointer(&part.Name[0]))),
			Phys:   uint64(part.PhysAddr),
			SizeKB: uint32(part.SizeKB),
		})
	}
	return parts
}

func (Driver) Partitions() ([]driver.Partition, error) {
	var info C.AX_CMM_PARTITION_INFO_T

	err := check(C.AX_SYS_MemGetPartitionInfo(&info), "AX_SYS_MemGetPartitionInfo")
	if err != nil {
		return nil, err
	}
	return partitions(&info), nil
}

// QueryStatus converts the platform's KiB counts to bytes
func (Driver) QueryStatus() (driver.Status, error) {
	var status C.AX_CMM_STATUS_T

	err := check(C.AX_SYS_MemQueryStatus(&status), "AX_SYS_MemQueryStatus")
	if err != nil {
		return driver.Status{}, err
	}

	return driver.Status{
		TotalBytes:  uint64(status.TotalSize) * 1024,
		RemainBytes: uint64(status.RemainSize) * 1024,
		BlockCount:  uint32(status.BlockCnt),
		Partitions:  partitions(&status.Partition),
	}, nil
}
