//go:build linux

package sim

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// memfdArena backs physical memory with an anonymous memory file. Every Map is a fresh shared
// mapping, so two mappings of the same range have distinct addresses but see the same bytes.
type memfdArena struct {
	fd       int
	size     uint64
	pageSize uint64
}

func newArena(size uint64) (arena, error) {
	fd, err := unix.MemfdCreate("cmm-sim", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "memfd_create")
	}

	err = unix.Ftruncate(fd, int64(size))
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "ftruncate")
	}

	return &memfdArena{
		fd:       fd,
		size:     size,
		pageSize: uint64(unix.Getpagesize()),
	}, nil
}

func (a *memfdArena) Map(offset uint64, size int) (region, error) {
	if size <= 0 || offset+uint64(size) > a.size {
		return region{}, errors.Newf("range 0x%x+0x%x lies outside the arena", offset, size)
	}

	pageOffset := offset &^ (a.pageSize - 1)
	delta := offset - pageOffset
	length := (delta + uint64(size) + a.pageSize - 1) &^ (a.pageSize - 1)

	raw, err := unix.Mmap(a.fd, int64(pageOffset), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return region{}, errors.Wrap(err, "mmap")
	}

	return region{
		mem: raw[delta : delta+uint64(size) : delta+uint64(size)],
		raw: raw,
	}, nil
}

func (a *memfdArena) Unmap(r region) error {
	if r.raw == nil {
		return nil
	}
	return errors.Wrap(unix.Munmap(r.raw), "munmap")
}

func (a *memfdArena) Close() error {
	if a.fd < 0 {
		return nil
	}
	err := unix.Close(a.fd)
	a.fd = -1
	return errors.Wrap(err, "close")
}
