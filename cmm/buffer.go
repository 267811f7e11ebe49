package cmm

import (
	"fmt"

	"github.com/axsys-go/cmm/cmm/internal/utils"
)

// Buffer is a handle on at most one allocation. A Buffer starts idle, becomes owned through
// Allocate or attached through AttachExternal, and returns to idle through Free, DetachExternal
// or Close.
type Buffer struct {
	allocator *Allocator

	mutex utils.OptionalMutex
	alloc *allocation
}

func newBuffer(allocator *Allocator, alloc *allocation) *Buffer {
	return &Buffer{
		allocator: allocator,
		mutex:     utils.OptionalMutex{UseMutex: allocator.useMutex},
		alloc:     alloc,
	}
}

// current returns the allocation this buffer refers to, if any
func (b *Buffer) current() *allocation {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.alloc
}

// acquire returns the current allocation with an extra reference held, or nil when idle. The
// caller must release it.
func (b *Buffer) acquire() *allocation {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.alloc != nil {
		b.alloc.retain()
	}
	return b.alloc
}

// Allocate obtains a new physically-contiguous block of size bytes and returns the base view
// covering all of it. The buffer must be idle.
func (b *Buffer) Allocate(size int, mode CacheMode, tag string) (*View, error) {
	b.allocator.logger.Debug("Buffer::Allocate")

	b.mutex.Lock()
	alloc, err := b.allocate(size, mode, tag)
	if err != nil {
		b.mutex.Unlock()
		return nil, err
	}

	// The view's reference is taken while the buffer still holds the lock so a concurrent Free
	// can't release the block before the base view exists
	alloc.retain()
	b.mutex.Unlock()

	view, err := alloc.mapRetained(0, size, mode, false)
	if err == nil {
		return view, nil
	}

	// Roll back so the buffer is idle again
	b.mutex.Lock()
	if b.alloc == alloc {
		b.alloc = nil
	} else {
		alloc = nil
	}
	b.mutex.Unlock()

	if alloc != nil {
		err = combine(err, alloc.release())
	}
	return nil, err
}

func (b *Buffer) allocate(size int, mode CacheMode, tag string) (*allocation, error) {
	if b.alloc != nil {
		return nil, newError(AlreadyInitialized, func() string { return "buffer already allocated or attached" })
	}
	if int64(size) > MaxSize {
		return nil, newErrorf(MemoryTooLarge, "size too large: 0x%x", size)
	}
	if size <= 0 {
		return nil, newErrorf(InvalidArgument, "invalid allocation size %d", size)
	}

	phys, virt, err := b.allocator.memory.AllocateBlock(size, mode, tag)
	if err != nil {
		return nil, wrapError(AllocationFailed, err, func() string {
			return fmt.Sprintf("failed to allocate 0x%x bytes (%s)", size, mode)
		})
	}

	b.alloc = newAllocation(b.allocator, phys, size, mode, true, virt, tag)
	return b.alloc, nil
}

// Free releases an owned allocation. It fails with ReferencesRemain while any View or other
// Buffer still refers to the allocation.
func (b *Buffer) Free() error {
	b.allocator.logger.Debug("Buffer::Free")

	b.mutex.Lock()
	alloc := b.alloc
	if alloc == nil {
		b.mutex.Unlock()
		return newError(NoAllocation, func() string { return "no allocation to free" })
	}
	if !alloc.owned {
		b.mutex.Unlock()
		return newError(NotOwned, func() string { return "buffer does not own memory" })
	}
	if refs := alloc.References(); refs > 1 {
		b.mutex.Unlock()
		return newErrorf(ReferencesRemain, "references remain: %d", refs)
	}
	b.alloc = nil
	b.mutex.Unlock()

	return alloc.release()
}

// AttachExternal wraps a physical range the buffer does not own. The range is never freed
// through this package.
func (b *Buffer) AttachExternal(phys uint64, size int) error {
	b.allocator.logger.Debug("Buffer::AttachExternal")

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.alloc != nil {
		return newError(AlreadyInitialized, func() string { return "buffer already allocated or attached" })
	}
	if size <= 0 {
		return newErrorf(InvalidArgument, "invalid external size %d", size)
	}

	b.alloc = newAllocation(b.allocator, phys, size, CacheModeNonCached, false, nil, "")
	return nil
}

// DetachExternal forgets an attached range. It fails with ReferencesRemain while views remain.
func (b *Buffer) DetachExternal() error {
	b.allocator.logger.Debug("Buffer::DetachExternal")

	b.mutex.Lock()
	alloc := b.alloc
	if alloc == nil || alloc.owned {
		b.mutex.Unlock()
		return newError(NoAllocation, func() string { return "no external allocation attached" })
	}
	if refs := alloc.References(); refs > 1 {
		b.mutex.Unlock()
		return newErrorf(ReferencesRemain, "references remain: %d", refs)
	}
	b.alloc = nil
	b.mutex.Unlock()

	return alloc.release()
}

// Close drops this buffer's reference without checking for other holders. The allocation is
// released once its last View or Buffer lets go of it.
func (b *Buffer) Close() error {
	b.allocator.logger.Debug("Buffer::Close")

	b.mutex.Lock()
	alloc := b.alloc
	b.alloc = nil
	b.mutex.Unlock()

	if alloc == nil {
		return nil
	}
	return alloc.release()
}

// MapView maps [offset, offset+size) of the allocation, measured from its start
func (b *Buffer) MapView(offset, size int, mode CacheMode) (*View, error) {
	b.allocator.logger.Debug("Buffer::MapView")

	return b.mapView(offset, size, mode, false)
}

// MapViewFast is MapView through the platform's fast mapping path
func (b *Buffer) MapViewFast(offset, size int, mode CacheMode) (*View, error) {
	b.allocator.logger.Debug("Buffer::MapViewFast")

	return b.mapView(offset, size, mode, true)
}

func (b *Buffer) mapView(offset, size int, mode CacheMode, fast bool) (*View, error) {
	b.mutex.Lock()
	alloc := b.alloc
	if alloc == nil {
		b.mutex.Unlock()
		return nil, newError(NoAllocation, func() string { return "no allocation to map" })
	}

	err := checkWindow(offset, size, alloc.size)
	if err != nil {
		b.mutex.Unlock()
		return nil, err
	}

	alloc.retain()
	b.mutex.Unlock()

	return alloc.mapRetained(offset, size, mode, fast)
}

func (b *Buffer) State() BufferState {
	return b.current().state()
}

func (b *Buffer) Phys() uint64 {
	if alloc := b.current(); alloc != nil {
		return alloc.phys
	}
	return 0
}

func (b *Buffer) Size() int {
	if alloc := b.current(); alloc != nil {
		return alloc.size
	}
	return 0
}

// Mode is the cache mode the allocation was created with. Attached ranges report CacheModeNonCached.
func (b *Buffer) Mode() CacheMode {
	if alloc := b.current(); alloc != nil {
		return alloc.mode
	}
	return CacheModeNonCached
}

func (b *Buffer) Tag() string {
	if alloc := b.current(); alloc != nil {
		return alloc.tag
	}
	return ""
}

func (b *Buffer) Owned() bool {
	alloc := b.current()
	return alloc != nil && alloc.owned
}

// References returns the number of Buffers and Views holding the allocation, including this one
func (b *Buffer) References() int {
	if alloc := b.current(); alloc != nil {
		return alloc.References()
	}
	return 0
}

// Views returns a snapshot of the views currently open on the allocation
func (b *Buffer) Views() []ViewEntry {
	if alloc := b.current(); alloc != nil {
		return alloc.views.Entries()
	}
	return nil
}
