// Package sim is a pure-Go stand-in for the CMM platform. Physical memory is a shared memory file
// on Linux (a plain slice elsewhere), non-cached mappings are real aliases of it and cached
// mappings read and write a private copy that only reaches memory through FlushCache and is only
// refreshed by InvalidateCache, at cache line granularity. That makes missing cache maintenance
// observable in tests.
package sim

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/axsys-go/cmm/cmmutils"
	"github.com/axsys-go/cmm/driver"
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
)

const (
	// DefaultPartitionBase is where the default anonymous partition starts
	DefaultPartitionBase uint64 = 0x1_0000_0000
	// DefaultPartitionSizeKB is the size of the default anonymous partition, 64MiB
	DefaultPartitionSizeKB uint32 = 64 * 1024
	// DefaultCacheLineSize is the granularity of simulated cache maintenance
	DefaultCacheLineSize = 64
)

// Options configures the simulated platform. The zero value is valid.
type Options struct {
	// Partitions are the physical ranges the platform manages. Allocations come from the
	// partition named "anonymous", or from the first partition if none has that name.
	Partitions []driver.Partition
	// CacheLineSize is the granularity of flush and invalidate. It must be a power of two.
	CacheLineSize int
}

type fastKey struct {
	phys uint64
	size int
	mode driver.CacheMode
}

type block struct {
	phys     uint64
	size     int
	mode     driver.CacheMode
	token    string
	baseVirt unsafe.Pointer
}

type mapping struct {
	phys uint64
	size int
	mode driver.CacheMode
	fast bool
	// Outstanding MmapFast calls sharing this mapping
	refs int

	region region
	// Private copy standing in for the CPU cache, cached mappings only
	shadow []byte

	// Next mapping at the same address; the slice-backed arena hands out identical addresses
	// for identical non-cached ranges
	next *mapping
}

func (m *mapping) addr() uintptr {
	if m.shadow != nil {
		return uintptr(unsafe.Pointer(&m.shadow[0]))
	}
	return uintptr(unsafe.Pointer(&m.region.mem[0]))
}

func (m *mapping) ptr() unsafe.Pointer {
	if m.shadow != nil {
		return unsafe.Pointer(&m.shadow[0])
	}
	return unsafe.Pointer(&m.region.mem[0])
}

// Driver implements driver.Driver over simulated memory
type Driver struct {
	mutex sync.Mutex

	initialized bool
	closed      bool

	partitions []driver.Partition
	heap       *rangeHeap
	arenaBase  uint64
	arenaSize  uint64
	arena      arena
	lineSize   int

	blocks   *swiss.Map[uint64, *block]
	mappings *swiss.Map[uintptr, *mapping]
	fast     *swiss.Map[fastKey, *mapping]
}

var _ driver.Driver = &Driver{}

// New creates a simulated platform. It must be initialized with Init before use and its memory
// is released by Close.
func New(options Options) (*Driver, error) {
	parts := options.Partitions
	if len(parts) == 0 {
		parts = []driver.Partition{{Name: "anonymous", Phys: DefaultPartitionBase, SizeKB: DefaultPartitionSizeKB}}
	}
	parts = append([]driver.Partition(nil), parts...)

	lineSize := options.CacheLineSize
	if lineSize == 0 {
		lineSize = DefaultCacheLineSize
	}
	err := cmmutils.CheckPow2(lineSize, "cache line size")
	if err != nil {
		return nil, err
	}

	err = validatePartitions(parts)
	if err != nil {
		return nil, err
	}

	sorted := append([]driver.Partition(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Phys < sorted[j].Phys })
	base := sorted[0].Phys
	last := sorted[len(sorted)-1]
	size := last.Phys + uint64(last.SizeKB)*1024 - base

	heapPart := parts[0]
	for _, part := range parts {
		if part.Name == "anonymous" {
			heapPart = part
			break
		}
	}

	mem, err := newArena(size)
	if err != nil {
		return nil, err
	}

	return &Driver{
		partitions: parts,
		heap:       newRangeHeap(heapPart.Phys, uint64(heapPart.SizeKB)*1024),
		arenaBase:  base,
		arenaSize:  size,
		arena:      mem,
		lineSize:   lineSize,

		blocks:   swiss.NewMap[uint64, *block](16),
		mappings: swiss.NewMap[uintptr, *mapping](64),
		fast:     swiss.NewMap[fastKey, *mapping](16),
	}, nil
}

func validatePartitions(parts []driver.Partition) error {
	for i, part := range parts {
		if part.Name == "" {
			return errors.Newf("partition %d has no name", i)
		}
		if part.SizeKB == 0 {
			return errors.Newf("partition %s is empty", part.Name)
		}
		end := part.Phys + uint64(part.SizeKB)*1024
		if end < part.Phys {
			return errors.Newf("partition %s wraps the address space", part.Name)
		}

		for j := 0; j < i; j++ {
			other := parts[j]
			otherEnd := other.Phys + uint64(other.SizeKB)*1024
			if part.Phys < otherEnd && other.Phys < end {
				return errors.Newf("partitions %s and %s overlap", other.Name, part.Name)
			}
			if part.Name == other.Name {
				return errors.Newf("partition name %s is used twice", part.Name)
			}
		}
	}
	return nil
}

func (d *Driver) Init() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return errors.Wrap(driver.ErrSyscall, "simulated platform has been closed")
	}
	d.initialized = true
	return nil
}

func (d *Driver) Deinit() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.initialized {
		return driver.ErrNotInitialized
	}
	d.initialized = false
	return nil
}

// Close unmaps every outstanding mapping and releases the simulated memory. Pointers previously
// handed out must not be used afterwards.
func (d *Driver) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.initialized = false

	var err error
	d.mappings.Iter(func(_ uintptr, m *mapping) bool {
		for ; m != nil; m = m.next {
			err = errors.CombineErrors(err, d.arena.Unmap(m.region))
		}
		return false
	})
	d.mappings.Clear()
	d.fast.Clear()
	d.blocks.Clear()

	return errors.CombineErrors(err, d.arena.Close())
}

func (d *Driver) checkInitialized() error {
	if !d.initialized {
		return driver.ErrNotInitialized
	}
	return nil
}

func (d *Driver) partitionFor(phys uint64, size uint64) (driver.Partition, bool) {
	for _, part := range d.partitions {
		end := part.Phys + uint64(part.SizeKB)*1024
		if phys >= part.Phys && phys <= end && size <= end-phys {
			return part, true
		}
	}
	return driver.Partition{}, false
}

func (d *Driver) MemAlloc(size uint32, align uint32, mode driver.CacheMode, token string) (uint64, unsafe.Pointer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return 0, nil, err
	}
	if size == 0 {
		return 0, nil, driver.ErrInvalidSize
	}
	if align == 0 {
		align = 1
	}
	err = cmmutils.CheckPow2(align, "alignment")
	if err != nil {
		return 0, nil, errors.Wrapf(driver.ErrInvalidSize, "alignment %d is not a power of two", align)
	}

	phys, ok := d.heap.Alloc(uint64(size), uint64(align))
	if !ok {
		return 0, nil, errors.Wrapf(driver.ErrOutOfMemory, "0x%x bytes", size)
	}

	m, err := d.mapLocked(phys, int(size), mode, false)
	if err != nil {
		_ = d.heap.Free(phys, uint64(size))
		return 0, nil, err
	}

	d.blocks.Put(phys, &block{
		phys:     phys,
		size:     int(size),
		mode:     mode,
		token:    token,
		baseVirt: m.ptr(),
	})
	d.debugValidateLocked()
	return phys, m.ptr(), nil
}

func (d *Driver) MemFree(phys uint64, virt unsafe.Pointer) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return err
	}

	blk, ok := d.blocks.Get(phys)
	if !ok {
		return errors.Wrapf(driver.ErrInvalidAddress, "no block at 0x%x", phys)
	}
	if blk.baseVirt != virt {
		return errors.Wrapf(driver.ErrInvalidAddress, "block 0x%x was not allocated at %p", phys, virt)
	}

	err = d.unmapLocked(virt, blk.size)
	if err != nil {
		return err
	}

	d.blocks.Delete(phys)
	err = d.heap.Free(phys, uint64(blk.size))
	if err != nil {
		return err
	}
	d.debugValidateLocked()
	return nil
}

func (d *Driver) Mmap(phys uint64, size uint32, mode driver.CacheMode) (unsafe.Pointer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return nil, err
	}

	m, err := d.mapLocked(phys, int(size), mode, false)
	if err != nil {
		return nil, err
	}
	return m.ptr(), nil
}

func (d *Driver) MmapFast(phys uint64, size uint32, mode driver.CacheMode) (unsafe.Pointer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return nil, err
	}

	key := fastKey{phys: phys, size: int(size), mode: mode}
	if m, ok := d.fast.Get(key); ok {
		m.refs++
		return m.ptr(), nil
	}

	m, err := d.mapLocked(phys, int(size), mode, true)
	if err != nil {
		return nil, err
	}
	d.fast.Put(key, m)
	return m.ptr(), nil
}

func (d *Driver) mapLocked(phys uint64, size int, mode driver.CacheMode, fast bool) (*mapping, error) {
	if size <= 0 {
		return nil, driver.ErrInvalidSize
	}
	if _, ok := d.partitionFor(phys, uint64(size)); !ok {
		return nil, errors.Wrapf(driver.ErrInvalidAddress, "range 0x%x+0x%x is not inside a partition", phys, size)
	}

	r, err := d.arena.Map(phys-d.arenaBase, size)
	if err != nil {
		return nil, errors.Wrapf(driver.ErrSyscall, "map 0x%x+0x%x: %v", phys, size, err)
	}

	m := &mapping{
		phys:   phys,
		size:   size,
		mode:   mode,
		fast:   fast,
		refs:   1,
		region: r,
	}
	if mode == driver.CacheModeCached {
		// A fresh cached mapping starts out coherent
		m.shadow = make([]byte, size)
		copy(m.shadow, r.mem)
	}

	addr := m.addr()
	if existing, ok := d.mappings.Get(addr); ok {
		m.next = existing
	}
	d.mappings.Put(addr, m)
	return m, nil
}

func (d *Driver) Munmap(virt unsafe.Pointer, size uint32) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return err
	}

	return d.unmapLocked(virt, int(size))
}

func (d *Driver) unmapLocked(virt unsafe.Pointer, size int) error {
	addr := uintptr(virt)
	head, ok := d.mappings.Get(addr)
	if !ok {
		return errors.Wrapf(driver.ErrInvalidAddress, "nothing is mapped at %p", virt)
	}

	var prev *mapping
	m := head
	for m != nil && m.size != size {
		prev = m
		m = m.next
	}
	if m == nil {
		return errors.Wrapf(driver.ErrInvalidSize, "no mapping of 0x%x bytes at %p", size, virt)
	}

	if m.fast {
		m.refs--
		if m.refs > 0 {
			return nil
		}
		d.fast.Delete(fastKey{phys: m.phys, size: m.size, mode: m.mode})
	}

	switch {
	case prev != nil:
		prev.next = m.next
	case m.next != nil:
		d.mappings.Put(addr, m.next)
	default:
		d.mappings.Delete(addr)
	}

	err := d.arena.Unmap(m.region)
	if err != nil {
		return errors.Wrapf(driver.ErrSyscall, "unmap 0x%x: %v", m.phys, err)
	}
	return nil
}

// findMapping returns the mapping containing [virt, virt+size), or nil
func (d *Driver) findMapping(virt unsafe.Pointer, size int) *mapping {
	addr := uintptr(virt)
	if m, ok := d.mappings.Get(addr); ok {
		for ; m != nil; m = m.next {
			if size <= m.size {
				return m
			}
		}
	}

	var found *mapping
	d.mappings.Iter(func(start uintptr, m *mapping) bool {
		for ; m != nil; m = m.next {
			if addr >= start && addr-start < uintptr(m.size) && uintptr(size) <= uintptr(m.size)-(addr-start) {
				found = m
				return true
			}
		}
		return false
	})
	return found
}

func (d *Driver) FlushCache(phys uint64, virt unsafe.Pointer, size uint32) error {
	return d.cacheOp(phys, virt, size, func(m *mapping, lo, hi int) {
		copy(m.region.mem[lo:hi], m.shadow[lo:hi])
	})
}

func (d *Driver) InvalidateCache(phys uint64, virt unsafe.Pointer, size uint32) error {
	return d.cacheOp(phys, virt, size, func(m *mapping, lo, hi int) {
		copy(m.shadow[lo:hi], m.region.mem[lo:hi])
	})
}

// cacheOp resolves the mapping holding [virt, virt+size), widens the range to whole cache lines
// clamped to the mapping and applies op to cached mappings. Non-cached mappings need no work.
func (d *Driver) cacheOp(phys uint64, virt unsafe.Pointer, size uint32, op func(m *mapping, lo, hi int)) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return err
	}
	if size == 0 {
		return driver.ErrInvalidSize
	}

	m := d.findMapping(virt, int(size))
	if m == nil {
		return errors.Wrapf(driver.ErrInvalidAddress, "no mapping covers %p+0x%x", virt, size)
	}

	offset := int(uintptr(virt) - m.addr())
	if m.phys+uint64(offset) != phys {
		return errors.Wrapf(driver.ErrInvalidAddress, "%p maps 0x%x, not 0x%x", virt, m.phys+uint64(offset), phys)
	}
	if m.shadow == nil {
		return nil
	}

	lo := cmmutils.AlignDown(offset, uint(d.lineSize))
	hi := cmmutils.AlignUp(offset+int(size), uint(d.lineSize))
	if hi > m.size {
		hi = m.size
	}
	op(m, lo, hi)
	return nil
}

func (d *Driver) BlockInfoByPhys(phys uint64) (driver.PhysBlockInfo, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return driver.PhysBlockInfo{}, err
	}

	if !d.heap.Contains(phys, 1) {
		return driver.PhysBlockInfo{}, errors.Wrapf(driver.ErrInvalidAddress, "0x%x is outside the allocation heap", phys)
	}

	blk, ok := d.blocks.Get(phys)
	if !ok {
		d.blocks.Iter(func(start uint64, b *block) bool {
			if phys >= start && phys-start < uint64(b.size) {
				blk = b
				ok = true
				return true
			}
			return false
		})
	}
	if !ok {
		return driver.PhysBlockInfo{}, errors.Wrapf(driver.ErrInvalidAddress, "no block contains 0x%x", phys)
	}

	return driver.PhysBlockInfo{
		Mode:      blk.mode,
		Virt:      unsafe.Add(blk.baseVirt, phys-blk.phys),
		BlockSize: uint32(blk.size),
	}, nil
}

func (d *Driver) BlockInfoByVirt(virt unsafe.Pointer) (driver.VirtBlockInfo, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return driver.VirtBlockInfo{}, err
	}

	m := d.findMapping(virt, 1)
	if m == nil {
		return driver.VirtBlockInfo{}, errors.Wrapf(driver.ErrInvalidAddress, "nothing is mapped at %p", virt)
	}

	return driver.VirtBlockInfo{
		Phys: m.phys + uint64(uintptr(virt)-m.addr()),
		Mode: m.mode,
	}, nil
}

func (d *Driver) Partitions() ([]driver.Partition, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return nil, err
	}

	return append([]driver.Partition(nil), d.partitions...), nil
}

func (d *Driver) QueryStatus() (driver.Status, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.checkInitialized()
	if err != nil {
		return driver.Status{}, err
	}

	var total uint64
	for _, part := range d.partitions {
		total += uint64(part.SizeKB) * 1024
	}

	return driver.Status{
		TotalBytes:  total,
		RemainBytes: total - (d.heap.end - d.heap.base) + d.heap.Remaining(),
		BlockCount:  uint32(d.blocks.Count()),
		Partitions:  append([]driver.Partition(nil), d.partitions...),
	}, nil
}

// Validate checks the simulator's internal bookkeeping
func (d *Driver) Validate() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.validateLocked()
}

// debugValidateLocked panics on broken bookkeeping in debug_cmm_utils builds
func (d *Driver) debugValidateLocked() {
	if !cmmutils.DebugChecks {
		return
	}
	err := d.validateLocked()
	if err != nil {
		panic(err)
	}
}

func (d *Driver) validateLocked() error {
	err := d.heap.Validate()
	if err != nil {
		return err
	}

	var blockBytes uint64
	d.blocks.Iter(func(_ uint64, b *block) bool {
		blockBytes += uint64(b.size)
		if !d.heap.Contains(b.phys, uint64(b.size)) {
			err = errors.Newf("block 0x%x+0x%x lies outside the heap", b.phys, b.size)
			return true
		}
		if _, ok := d.mappings.Get(uintptr(b.baseVirt)); !ok {
			err = errors.Newf("block 0x%x has lost its allocation-time mapping", b.phys)
			return true
		}
		return false
	})
	if err != nil {
		return err
	}

	if blockBytes != d.heap.used {
		return errors.Newf("blocks cover 0x%x bytes but the heap has 0x%x in use", blockBytes, d.heap.used)
	}
	return nil
}
