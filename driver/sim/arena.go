package sim

// region is one window onto simulated physical memory
type region struct {
	// mem covers exactly the requested physical range
	mem []byte
	// raw is the whole mapping backing mem when the arena maps pages itself, nil otherwise
	raw []byte
}

// arena is the simulated physical memory. Offsets are relative to the lowest partition address.
type arena interface {
	Map(offset uint64, size int) (region, error)
	Unmap(r region) error
	Close() error
}
