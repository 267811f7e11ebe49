package cmm

import (
	"io"

	"github.com/axsys-go/cmm/cmm/internal/platform"
	"github.com/axsys-go/cmm/driver"
	"golang.org/x/exp/slog"
)

const (
	// defaultAllocAlignment is the value used as AllocAlignment when none is provided via
	// CreateOptions. It is one 4KiB page.
	defaultAllocAlignment uint32 = 0x1000
	// defaultCacheOpChunkSize is the largest byte count a single platform cache call accepts
	defaultCacheOpChunkSize = int(driver.MaxCallSize)
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// AllocAlignment is the physical alignment requested for every block. It must be a power
	// of two and defaults to 4KiB.
	AllocAlignment uint32

	// CacheOpChunkSize is the most bytes handed to a single platform flush or invalidate call.
	// Larger requests are split. It defaults to, and may not exceed, 0xFFFFFFFF.
	CacheOpChunkSize int

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when physical
	// blocks are obtained from or returned to the platform. Attached external ranges never
	// trigger them.
	MemoryCallbackOptions *MemoryCallbackOptions
}

// New creates a new Allocator
//
// logger - Receives one debug record per public operation. A nil logger discards them.
//
// drv - The platform that blocks are allocated from and mapped through. It must already be
// initialized, see NewSystem.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, drv driver.Driver, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.New(slog.HandlerOptions{Level: discardLevel}.NewTextHandler(io.Discard))
	}

	useMutex := options.Flags&CreateExternallySynchronized == 0

	allocator := &Allocator{
		useMutex:    useMutex,
		logger:      logger,
		driver:      drv,
		createFlags: options.Flags,
	}
	allocator.allocations.Init(useMutex)

	alignment := options.AllocAlignment
	if alignment == 0 {
		alignment = defaultAllocAlignment
	}

	chunkSize := options.CacheOpChunkSize
	if chunkSize == 0 {
		chunkSize = defaultCacheOpChunkSize
	}

	var err error
	allocator.memory, err = platform.NewMemory(
		drv,
		alignment,
		chunkSize,
		&memoryCallbacks{
			Callbacks: options.MemoryCallbackOptions,
			Allocator: allocator,
		},
	)
	if err != nil {
		return nil, wrapError(InvalidArgument, err, func() string { return "invalid allocator options" })
	}

	return allocator, nil
}

// discardLevel is above every level the package logs at
const discardLevel = slog.Level(100)
