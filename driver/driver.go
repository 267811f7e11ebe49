// Package driver defines the platform surface the cmm package consumes: allocation of
// physically-contiguous blocks, mapping of physical ranges into the process, cache
// maintenance and block/partition queries.
//
// Sizes are 32-bit counts because that is all the underlying platform accepts per call.
// Callers that need larger operations must split them.
package driver

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

//go:generate mockgen -source driver.go -destination mocks/driver.go -package mock_driver

// CacheMode selects whether CPU caches are used for a mapping or allocation
type CacheMode int32

const (
	CacheModeNonCached CacheMode = iota
	CacheModeCached
)

var cacheModeMapping = make(map[CacheMode]string)

func (m CacheMode) String() string {
	return cacheModeMapping[m]
}

func init() {
	cacheModeMapping[CacheModeNonCached] = "CacheModeNonCached"
	cacheModeMapping[CacheModeCached] = "CacheModeCached"
}

// MaxCallSize is the largest byte count a single platform call accepts
const MaxCallSize uint64 = 0xFFFFFFFF

var (
	ErrNotInitialized = errors.New("platform not initialized")
	ErrOutOfMemory    = errors.New("no contiguous range available")
	ErrInvalidAddress = errors.New("address does not belong to a known block or mapping")
	ErrInvalidSize    = errors.New("invalid size")
	ErrSyscall        = errors.New("platform call failed")
)

// PhysBlockInfo is the metadata returned for a physical address query
type PhysBlockInfo struct {
	// Mode is the cache mode the block was allocated with
	Mode CacheMode
	// Virt is the allocation-time virtual address corresponding to the queried physical address
	Virt unsafe.Pointer
	// BlockSize is the size of the whole block containing the address
	BlockSize uint32
}

// VirtBlockInfo is the metadata returned for a virtual address query
type VirtBlockInfo struct {
	Phys uint64
	Mode CacheMode
}

// Partition is a named physical range managed by the platform
type Partition struct {
	Name   string
	Phys   uint64
	SizeKB uint32
}

// Status is an aggregate usage report
type Status struct {
	TotalBytes  uint64
	RemainBytes uint64
	BlockCount  uint32
	Partitions  []Partition
}

// Driver is implemented by each platform backend. Implementations must be safe for
// concurrent use.
type Driver interface {
	Init() error
	Deinit() error

	// MemAlloc allocates a physically-contiguous block and maps it with the requested mode.
	// The returned virtual address must be handed back to MemFree.
	MemAlloc(size uint32, align uint32, mode CacheMode, token string) (uint64, unsafe.Pointer, error)
	MemFree(phys uint64, virt unsafe.Pointer) error

	Mmap(phys uint64, size uint32, mode CacheMode) (unsafe.Pointer, error)
	// MmapFast behaves like Mmap, but repeated calls for the same range may return the
	// same address.
	MmapFast(phys uint64, size uint32, mode CacheMode) (unsafe.Pointer, error)
	Munmap(virt unsafe.Pointer, size uint32) error

	FlushCache(phys uint64, virt unsafe.Pointer, size uint32) error
	InvalidateCache(phys uint64, virt unsafe.Pointer, size uint32) error

	BlockInfoByPhys(phys uint64) (PhysBlockInfo, error)
	BlockInfoByVirt(virt unsafe.Pointer) (VirtBlockInfo, error)

	Partitions() ([]Partition, error)
	QueryStatus() (Status, error)
}
