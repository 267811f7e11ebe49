package cmm

// AllocateBlockCallback is called after a physical block has been obtained from the platform
type AllocateBlockCallback func(
	allocator *Allocator,
	phys uint64,
	size int,
	mode CacheMode,
	tag string,
	userData interface{},
)

// FreeBlockCallback is called just before a physical block is returned to the platform
type FreeBlockCallback func(
	allocator *Allocator,
	phys uint64,
	size int,
	mode CacheMode,
	tag string,
	userData interface{},
)

type MemoryCallbackOptions struct {
	Allocate AllocateBlockCallback
	Free     FreeBlockCallback
	UserData interface{}
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Allocator *Allocator
}

func (c *memoryCallbacks) Allocate(phys uint64, size int, mode CacheMode, tag string) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Allocator, phys, size, mode, tag, c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(phys uint64, size int, mode CacheMode, tag string) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Allocator, phys, size, mode, tag, c.Callbacks.UserData)
	}
}
