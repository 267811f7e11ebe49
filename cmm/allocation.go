package cmm

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/axsys-go/cmm/cmmutils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// allocation is one physically-contiguous range shared by every Buffer and View that refers
// to it. Each of those handles holds one reference; the range is released when the last
// reference is dropped.
type allocation struct {
	allocator *Allocator

	phys  uint64
	size  int
	mode  CacheMode
	owned bool
	tag   string
	// Mapping returned by the platform when an owned block was allocated. It is the address the
	// block is freed with.
	baseVirt unsafe.Pointer

	refs     atomic.Int32
	released atomic.Bool

	views viewList

	nextAlloc *allocation
	prevAlloc *allocation
}

func newAllocation(allocator *Allocator, phys uint64, size int, mode CacheMode, owned bool, baseVirt unsafe.Pointer, tag string) *allocation {
	alloc := &allocation{
		allocator: allocator,
		phys:      phys,
		size:      size,
		mode:      mode,
		owned:     owned,
		tag:       tag,
		baseVirt:  baseVirt,
	}
	alloc.views.Init(allocator.useMutex, size)
	alloc.refs.Store(1)

	allocator.allocations.Register(alloc)
	return alloc
}

func (a *allocation) References() int {
	return int(a.refs.Load())
}

func (a *allocation) retain() {
	if a.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("retained allocation 0x%x after its last reference was dropped", a.phys))
	}
}

// release drops one reference. When it was the last one the allocation leaves the allocator's
// list and, if owned, the block goes back to the platform.
func (a *allocation) release() error {
	remaining := a.refs.Add(-1)
	if remaining < 0 {
		panic(fmt.Sprintf("allocation 0x%x released more times than it was retained", a.phys))
	}
	if remaining > 0 {
		return nil
	}

	if !a.released.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("allocation 0x%x released twice", a.phys))
	}

	a.views.Close()
	cmmutils.DebugValidate(&a.views)
	a.allocator.allocations.Unregister(a)
	cmmutils.DebugValidate(&a.allocator.allocations)

	if !a.owned {
		return nil
	}

	err := a.allocator.memory.FreeBlock(a.phys, a.baseVirt, a.size, a.mode, a.tag)
	if err != nil {
		return wrapError(MemFreeFailed, err, func() string {
			return fmt.Sprintf("failed to free block at 0x%x", a.phys)
		})
	}
	return nil
}

// mapRetained maps [offset, offset+size) of the allocation and registers the resulting view.
// The caller must already hold a reference on behalf of the new view. The reference is handed
// to the view on success and dropped on failure.
func (a *allocation) mapRetained(offset, size int, mode CacheMode, fast bool) (*View, error) {
	phys := a.phys + uint64(offset)
	ptr, err := a.allocator.memory.Map(phys, size, mode, fast)
	if err != nil {
		releaseErr := a.release()
		return nil, combine(wrapError(MapFailed, err, func() string {
			return fmt.Sprintf("failed to map 0x%x bytes at 0x%x (%s)", size, phys, mode)
		}), releaseErr)
	}

	view := &View{
		allocator: a.allocator,
		alloc:     a,
		offset:    offset,
		data:      ptr,
		size:      size,
		mode:      mode,
		fast:      fast,
	}

	err = a.views.Register(view)
	if err != nil {
		unmapErr := a.allocator.memory.Unmap(ptr, size)
		releaseErr := a.release()
		return nil, combine(wrapError(ViewRegistrationFailed, err, func() string {
			return fmt.Sprintf("failed to register view at offset 0x%x", offset)
		}), unmapErr, releaseErr)
	}
	cmmutils.DebugValidate(&a.views)

	return view, nil
}

func (a *allocation) printParameters(json *jwriter.ObjectState) {
	json.Name("Phys").String(fmt.Sprintf("0x%x", a.phys))
	json.Name("Size").Int(a.size)
	json.Name("Mode").String(a.mode.String())
	json.Name("Owned").Bool(a.owned)
	json.Name("References").Int(a.References())
	json.Name("ViewCount").Int(a.views.Count())

	if a.tag != "" {
		json.Name("Tag").String(a.tag)
	}

	a.views.BuildStatsString(json)
}

func (a *allocation) state() BufferState {
	switch {
	case a == nil:
		return BufferIdle
	case a.owned:
		return BufferOwned
	default:
		return BufferAttached
	}
}
