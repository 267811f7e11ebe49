package cmmutils

import (
	"github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32 | ~uint64
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return errors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// ChunkCount is the number of calls needed to cover size bytes when each call may
// handle at most limit bytes
func ChunkCount(size, limit int) int {
	if size <= 0 || limit <= 0 {
		return 0
	}
	return (size + limit - 1) / limit
}

// RangeFits reports whether [offset, offset+size) lies within [0, total) without
// overflowing
func RangeFits(offset, size, total int) bool {
	if offset < 0 || size < 0 || total < 0 {
		return false
	}
	return offset <= total && size <= total-offset
}
