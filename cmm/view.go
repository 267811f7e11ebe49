package cmm

import (
	"fmt"
	"unsafe"

	"github.com/axsys-go/cmm/cmm/internal/platform"
	"github.com/axsys-go/cmm/cmmutils"
)

// View is one virtual mapping of a window of an allocation with its own cache mode. A View holds
// a reference on the allocation until Reset is called and may outlive the Buffer that created it.
//
// A View must only be used from one goroutine at a time.
type View struct {
	allocator *Allocator
	alloc     *allocation

	// Offset of the window from the start of the allocation
	offset int
	data   unsafe.Pointer
	size   int
	mode   CacheMode
	fast   bool

	// Registry links, guarded by the allocation's view list mutex
	prev *View
	next *View
}

func (v *View) logDebug(msg string) {
	if v.allocator != nil {
		v.allocator.logger.Debug(msg)
	}
}

func (v *View) entry() ViewEntry {
	return ViewEntry{
		Addr:   uintptr(v.data),
		Offset: v.offset,
		Size:   v.size,
		Mode:   v.mode,
		Fast:   v.fast,
	}
}

// Data returns the mapped window as a byte slice, or nil once the view has been reset
func (v *View) Data() []byte {
	if v.data == nil {
		return nil
	}
	return unsafe.Slice((*byte)(v.data), v.size)
}

func (v *View) Pointer() unsafe.Pointer { return v.data }
func (v *View) Size() int               { return v.size }
func (v *View) Mode() CacheMode         { return v.mode }
func (v *View) Fast() bool              { return v.fast }

// Offset is the position of the window from the start of the allocation
func (v *View) Offset() int { return v.offset }

// Phys returns the physical address of the first byte of the window, or 0 once reset
func (v *View) Phys() uint64 {
	if v.alloc == nil {
		return 0
	}
	return v.alloc.phys + uint64(v.offset)
}

// Valid reports whether the view is mapped
func (v *View) Valid() bool {
	return v.alloc != nil && v.data != nil && v.size > 0
}

// Reset unmaps the view, removes it from the allocation's registry and drops its reference. It
// is safe to call more than once. The view is cleared even if the platform reports a failure.
func (v *View) Reset() error {
	v.logDebug("View::Reset")

	if v.alloc == nil {
		return nil
	}

	alloc := v.alloc
	data := v.data
	size := v.size

	// Registry readers see the fields under the list lock, so the view leaves the list before
	// they change and before the mapping goes away
	alloc.views.Unregister(v)
	cmmutils.DebugValidate(&alloc.views)

	v.alloc = nil
	v.data = nil
	v.size = 0
	v.offset = 0
	v.mode = CacheModeNonCached
	v.fast = false

	var unmapErr error
	if data != nil {
		err := alloc.allocator.memory.Unmap(data, size)
		if err != nil {
			unmapErr = wrapError(UnmapFailed, err, func() string {
				return fmt.Sprintf("failed to unmap 0x%x bytes at %p", size, data)
			})
		}
	}

	return combine(unmapErr, alloc.release())
}

// MapView maps a further window of the allocation. offset is relative to this view's window
// and [offset, offset+size) must lie inside it.
func (v *View) MapView(offset, size int, mode CacheMode) (*View, error) {
	v.logDebug("View::MapView")

	return v.mapView(offset, size, mode, false)
}

// MapViewFast is MapView through the platform's fast mapping path, which may hand out the same
// address for repeated mappings of an identical range
func (v *View) MapViewFast(offset, size int, mode CacheMode) (*View, error) {
	v.logDebug("View::MapViewFast")

	return v.mapView(offset, size, mode, true)
}

func (v *View) mapView(offset, size int, mode CacheMode, fast bool) (*View, error) {
	if v.alloc == nil {
		return nil, newError(NoAllocation, func() string { return "no allocation for view" })
	}

	err := checkWindow(offset, size, v.size)
	if err != nil {
		return nil, err
	}

	v.alloc.retain()
	return v.alloc.mapRetained(v.offset+offset, size, mode, fast)
}

// MakeBuffer returns a new Buffer sharing this view's allocation
func (v *View) MakeBuffer() (*Buffer, error) {
	v.logDebug("View::MakeBuffer")

	if v.alloc == nil {
		return nil, newError(NoAllocation, func() string { return "no allocation to make buffer" })
	}

	v.alloc.retain()
	return newBuffer(v.allocator, v.alloc), nil
}

// Flush writes back CPU cache lines covering [offset, offset+size) of the view so the device
// sees the CPU's writes. Only that range is guaranteed to be visible afterwards. size may be
// ToEnd, and ranges running past the end of the view are clamped to it.
func (v *View) Flush(offset, size int) error {
	v.logDebug("View::Flush")

	return v.flushOrInvalidate(offset, size, platform.CacheOperationFlush)
}

// Invalidate discards CPU cache lines covering [offset, offset+size) of the view so the CPU
// observes the device's writes. The range is resolved the same way as for Flush.
func (v *View) Invalidate(offset, size int) error {
	v.logDebug("View::Invalidate")

	return v.flushOrInvalidate(offset, size, platform.CacheOperationInvalidate)
}

func (v *View) flushOrInvalidate(offset, size int, operation platform.CacheOperation) error {
	if !v.Valid() {
		return newError(NotInitialized, func() string { return "view not initialized" })
	}

	if offset < 0 || size < ToEnd {
		return newErrorf(InvalidArgument, "invalid range (off=0x%x size=%d)", offset, size)
	}
	if offset >= v.size {
		return newErrorf(OutOfRange, "offset 0x%x out of range for view size 0x%x", offset, v.size)
	}

	// A size of -1 indicates the rest of the view
	length := size
	if size == ToEnd || !cmmutils.RangeFits(offset, size, v.size) {
		length = v.size - offset
	}
	if length == 0 {
		return newError(InvalidArgument, func() string { return "zero length" })
	}

	err := v.allocator.memory.FlushOrInvalidate(operation, v.Phys()+uint64(offset), unsafe.Add(v.data, offset), length)
	if err == nil {
		return nil
	}

	code := FlushFailed
	if operation == platform.CacheOperationInvalidate {
		code = InvalidateFailed
	}
	return wrapError(code, err, func() string {
		return fmt.Sprintf("%s of 0x%x bytes at offset 0x%x failed", operation, length, offset)
	})
}

// checkWindow validates a mapping request against a window of the given size
func checkWindow(offset, size, window int) error {
	if offset < 0 || size <= 0 {
		return newErrorf(InvalidArgument, "invalid mapping (off=0x%x size=%d)", offset, size)
	}
	if !cmmutils.RangeFits(offset, size, window) {
		return newErrorf(OutOfRange, "mapping out of range (off=0x%x size=0x%x window=0x%x)", offset, size, window)
	}
	if int64(size) > MaxSize {
		return newErrorf(MemoryTooLarge, "mapping size 0x%x exceeds 0x%x", size, MaxSize)
	}
	return nil
}
