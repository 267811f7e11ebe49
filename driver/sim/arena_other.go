//go:build !linux

package sim

import (
	"github.com/cockroachdb/errors"
)

// heapArena backs physical memory with one Go slice. Mappings of the same range share an address.
type heapArena struct {
	mem []byte
}

func newArena(size uint64) (arena, error) {
	return &heapArena{mem: make([]byte, size)}, nil
}

func (a *heapArena) Map(offset uint64, size int) (region, error) {
	if size <= 0 || offset+uint64(size) > uint64(len(a.mem)) {
		return region{}, errors.Newf("range 0x%x+0x%x lies outside the arena", offset, size)
	}

	end := offset + uint64(size)
	return region{mem: a.mem[offset:end:end]}, nil
}

func (a *heapArena) Unmap(r region) error {
	return nil
}

func (a *heapArena) Close() error {
	a.mem = nil
	return nil
}
