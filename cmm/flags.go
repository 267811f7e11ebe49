package cmm

import (
	"strings"

	"github.com/axsys-go/cmm/driver"
)

// CacheMode selects whether a mapping goes through the CPU caches
type CacheMode = driver.CacheMode

const (
	CacheModeNonCached = driver.CacheModeNonCached
	CacheModeCached    = driver.CacheModeCached
)

// ToEnd may be passed as the size of Flush or Invalidate to cover everything from the offset
// to the end of the view
const ToEnd = -1

// MaxSize is the largest allocation or mapping the platform can describe in one call
const MaxSize = int64(driver.MaxCallSize)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = make(map[CreateFlags]string)

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for bit := CreateFlags(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		name, ok := createFlagsMapping[bit]
		if !ok {
			name = "Unknown"
		}
		names = append(names, name)
	}
	return strings.Join(names, "|")
}

const (
	// CreateExternallySynchronized ensures that this allocator and all buffers, views and
	// allocations created from it will not be synchronized internally. The consumer must guarantee
	// they are used from only one goroutine at a time or are synchronized by some other mechanism.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	createFlagsMapping[CreateExternallySynchronized] = "CreateExternallySynchronized"
}

// BufferState is the position of a Buffer in its lifecycle
type BufferState int32

const (
	BufferIdle BufferState = iota
	BufferOwned
	BufferAttached
)

var bufferStateMapping = make(map[BufferState]string)

func (s BufferState) String() string {
	return bufferStateMapping[s]
}

func init() {
	bufferStateMapping[BufferIdle] = "Idle"
	bufferStateMapping[BufferOwned] = "Owned"
	bufferStateMapping[BufferAttached] = "Attached"
}
