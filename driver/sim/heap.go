package sim

import (
	"github.com/axsys-go/cmm/cmmutils"
	"github.com/cockroachdb/errors"
)

type freeRange struct {
	start uint64
	end   uint64
}

// rangeHeap hands out physical ranges first-fit from one partition. Free ranges are kept sorted
// by address and coalesced on release.
type rangeHeap struct {
	base uint64
	end  uint64
	free []freeRange
	used uint64
}

func newRangeHeap(base, size uint64) *rangeHeap {
	return &rangeHeap{
		base: base,
		end:  base + size,
		free: []freeRange{{start: base, end: base + size}},
	}
}

func (h *rangeHeap) Contains(phys uint64, size uint64) bool {
	return phys >= h.base && phys <= h.end && size <= h.end-phys
}

// Alloc carves size bytes aligned to align out of the first free range large enough to hold them
func (h *rangeHeap) Alloc(size uint64, align uint64) (uint64, bool) {
	if size == 0 {
		return 0, false
	}

	for i, r := range h.free {
		start := alignUp(r.start, align)
		if start < r.start || start >= r.end || size > r.end-start {
			continue
		}

		end := start + size
		var replacement []freeRange
		if start > r.start {
			replacement = append(replacement, freeRange{start: r.start, end: start})
		}
		if end < r.end {
			replacement = append(replacement, freeRange{start: end, end: r.end})
		}

		h.free = append(h.free[:i], append(replacement, h.free[i+1:]...)...)
		h.used += size
		return start, true
	}

	return 0, false
}

func (h *rangeHeap) Free(start, size uint64) error {
	end := start + size
	if size == 0 || start < h.base || end > h.end || end < start {
		return errors.Newf("range 0x%x+0x%x lies outside the heap", start, size)
	}

	index := len(h.free)
	for i, r := range h.free {
		if r.start >= end {
			index = i
			break
		}
	}

	if index > 0 && h.free[index-1].end > start {
		return errors.Newf("range 0x%x+0x%x overlaps free space", start, size)
	}

	h.free = append(h.free, freeRange{})
	copy(h.free[index+1:], h.free[index:])
	h.free[index] = freeRange{start: start, end: end}
	h.used -= size

	// Merge with the following range, then with the preceding one
	if index+1 < len(h.free) && h.free[index+1].start == end {
		h.free[index].end = h.free[index+1].end
		h.free = append(h.free[:index+1], h.free[index+2:]...)
	}
	if index > 0 && h.free[index-1].end == start {
		h.free[index-1].end = h.free[index].end
		h.free = append(h.free[:index], h.free[index+1:]...)
	}

	return nil
}

func (h *rangeHeap) Remaining() uint64 {
	return (h.end - h.base) - h.used
}

func (h *rangeHeap) Validate() error {
	var free uint64
	for i, r := range h.free {
		if r.start >= r.end {
			return errors.Newf("free range %d is empty or inverted", i)
		}
		if r.start < h.base || r.end > h.end {
			return errors.Newf("free range %d lies outside the heap", i)
		}
		if i > 0 && h.free[i-1].end >= r.start {
			return errors.Newf("free ranges %d and %d are unsorted or uncoalesced", i-1, i)
		}
		free += r.end - r.start
	}

	if free+h.used != h.end-h.base {
		return errors.Newf("free bytes %d plus used bytes %d do not cover the heap", free, h.used)
	}
	return nil
}

func alignUp(value, align uint64) uint64 {
	if align <= 1 {
		return value
	}
	cmmutils.DebugCheckPow2(align, "alignment")
	return (value + align - 1) &^ (align - 1)
}
