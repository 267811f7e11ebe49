package platform

import (
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/axsys-go/cmm/cmmutils"
	"github.com/axsys-go/cmm/driver"
	"github.com/cockroachdb/errors"
)

type MemoryCallbacks interface {
	Allocate(phys uint64, size int, mode driver.CacheMode, tag string)
	Free(phys uint64, size int, mode driver.CacheMode, tag string)
}

// Memory sits between the cmm package and a driver.Driver. It narrows sizes to the 32-bit
// counts the platform accepts, picks the plain or fast mapping path, splits cache operations
// into chunks and keeps usage counters.
type Memory struct {
	// Number of physical blocks obtained from the driver and not yet returned
	blockCount int32
	// Size of physical blocks obtained from the driver and not yet returned
	blockBytes int64
	// Number of live mappings, including allocation-time base views
	viewCount int32
	// Size of live mappings
	viewBytes int64

	flushCalls       int64
	flushChunks      int64
	flushBytes       int64
	invalidateCalls  int64
	invalidateChunks int64
	invalidateBytes  int64

	driver          driver.Driver
	alignment       uint32
	chunkSize       int
	memoryCallbacks MemoryCallbacks
}

func NewMemory(drv driver.Driver, alignment uint32, chunkSize int, callbacks MemoryCallbacks) (*Memory, error) {
	if drv == nil {
		return nil, errors.New("a driver must be provided")
	}

	err := cmmutils.CheckPow2(alignment, "allocation alignment")
	if err != nil {
		return nil, err
	}

	if chunkSize <= 0 || uint64(chunkSize) > driver.MaxCallSize {
		return nil, errors.Newf("cache operation chunk size %d must be between 1 and %d", chunkSize, driver.MaxCallSize)
	}

	return &Memory{
		driver:          drv,
		alignment:       alignment,
		chunkSize:       chunkSize,
		memoryCallbacks: callbacks,
	}, nil
}

func (m *Memory) Driver() driver.Driver { return m.driver }
func (m *Memory) ChunkSize() int        { return m.chunkSize }

func checkCallSize(size int) error {
	if size <= 0 {
		return errors.Wrapf(driver.ErrInvalidSize, "size %d", size)
	}
	if uint64(size) > driver.MaxCallSize {
		return errors.Wrapf(driver.ErrInvalidSize, "size %d exceeds the per-call limit of %d", size, driver.MaxCallSize)
	}
	return nil
}

// AllocateBlock obtains a physically-contiguous block and returns its physical address together
// with the allocation-time mapping, which must later be handed back to FreeBlock
func (m *Memory) AllocateBlock(size int, mode driver.CacheMode, tag string) (uint64, unsafe.Pointer, error) {
	err := checkCallSize(size)
	if err != nil {
		return 0, nil, err
	}

	phys, virt, err := m.driver.MemAlloc(uint32(size), m.alignment, mode, tag)
	if err != nil {
		return 0, nil, err
	}

	atomic.AddInt64(&m.blockBytes, int64(size))
	atomic.AddInt32(&m.blockCount, 1)

	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Allocate(phys, size, mode, tag)
	}

	return phys, virt, nil
}

func (m *Memory) FreeBlock(phys uint64, virt unsafe.Pointer, size int, mode driver.CacheMode, tag string) error {
	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Free(phys, size, mode, tag)
	}

	err := m.driver.MemFree(phys, virt)

	newVal := atomic.AddInt64(&m.blockBytes, int64(-size))
	if newVal < 0 {
		panic(fmt.Sprintf("block bytes went negative after freeing block 0x%x", phys))
	}
	newCount := atomic.AddInt32(&m.blockCount, -1)
	if newCount < 0 {
		panic(fmt.Sprintf("block count went negative after freeing block 0x%x", phys))
	}

	return err
}

func (m *Memory) Map(phys uint64, size int, mode driver.CacheMode, fast bool) (unsafe.Pointer, error) {
	err := checkCallSize(size)
	if err != nil {
		return nil, err
	}

	var ptr unsafe.Pointer
	if fast {
		ptr, err = m.driver.MmapFast(phys, uint32(size), mode)
	} else {
		ptr, err = m.driver.Mmap(phys, uint32(size), mode)
	}
	if err != nil {
		return nil, err
	}
	if ptr == nil {
		return nil, errors.Wrapf(driver.ErrSyscall, "mapping 0x%x returned a nil address", phys)
	}

	atomic.AddInt64(&m.viewBytes, int64(size))
	atomic.AddInt32(&m.viewCount, 1)
	return ptr, nil
}

// Unmap releases a mapping made by Map. The counters are updated even when the driver fails,
// since the caller forgets the mapping either way.
func (m *Memory) Unmap(ptr unsafe.Pointer, size int) error {
	atomic.AddInt64(&m.viewBytes, int64(-size))
	atomic.AddInt32(&m.viewCount, -1)

	err := checkCallSize(size)
	if err != nil {
		return err
	}

	return m.driver.Munmap(ptr, uint32(size))
}

// FlushOrInvalidate runs the cache operation over [ptr, ptr+size), which must map [phys, phys+size).
// The range is split into chunks of at most ChunkSize bytes and the physical and virtual
// addresses advance together. The first failing chunk aborts the operation.
func (m *Memory) FlushOrInvalidate(operation CacheOperation, phys uint64, ptr unsafe.Pointer, size int) error {
	if size <= 0 {
		return errors.Wrapf(driver.ErrInvalidSize, "size %d", size)
	}

	var call func(uint64, unsafe.Pointer, uint32) error
	switch operation {
	case CacheOperationFlush:
		call = m.driver.FlushCache
		atomic.AddInt64(&m.flushCalls, 1)
	case CacheOperationInvalidate:
		call = m.driver.InvalidateCache
		atomic.AddInt64(&m.invalidateCalls, 1)
	default:
		return errors.Newf("attempted to perform invalid cache operation %s", operation.String())
	}

	chunks := cmmutils.ChunkCount(size, m.chunkSize)
	for i := 0; i < chunks; i++ {
		chunk := m.chunkSize
		if i == chunks-1 {
			chunk = size - i*m.chunkSize
		}

		err := call(phys, ptr, uint32(chunk))
		if err != nil {
			return errors.Wrapf(err, "%s of chunk %d/%d (%d bytes at 0x%x)", operation, i+1, chunks, chunk, phys)
		}
		m.recordChunk(operation, chunk)

		phys += uint64(chunk)
		ptr = unsafe.Add(ptr, chunk)
	}

	return nil
}

func (m *Memory) recordChunk(operation CacheOperation, size int) {
	if operation == CacheOperationFlush {
		atomic.AddInt64(&m.flushChunks, 1)
		atomic.AddInt64(&m.flushBytes, int64(size))
		return
	}

	atomic.AddInt64(&m.invalidateChunks, 1)
	atomic.AddInt64(&m.invalidateBytes, int64(size))
}

func (m *Memory) AddStatistics(stats *cmmutils.Statistics) {
	stats.BlockCount += int(atomic.LoadInt32(&m.blockCount))
	stats.BlockBytes += clampInt(atomic.LoadInt64(&m.blockBytes))
	stats.ViewCount += int(atomic.LoadInt32(&m.viewCount))
	stats.ViewBytes += clampInt(atomic.LoadInt64(&m.viewBytes))
}

func (m *Memory) AddCacheStatistics(stats *cmmutils.CacheStatistics) {
	stats.FlushCalls += clampInt(atomic.LoadInt64(&m.flushCalls))
	stats.FlushChunks += clampInt(atomic.LoadInt64(&m.flushChunks))
	stats.FlushBytes += clampInt(atomic.LoadInt64(&m.flushBytes))
	stats.InvalidateCalls += clampInt(atomic.LoadInt64(&m.invalidateCalls))
	stats.InvalidateChunks += clampInt(atomic.LoadInt64(&m.invalidateChunks))
	stats.InvalidateBytes += clampInt(atomic.LoadInt64(&m.invalidateBytes))
}

func clampInt(v int64) int {
	if v > math.MaxInt {
		return math.MaxInt
	}
	return int(v)
}
