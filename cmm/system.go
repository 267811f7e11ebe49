package cmm

import (
	"sync"

	"github.com/axsys-go/cmm/driver"
	"github.com/cockroachdb/errors"
)

// System brackets the platform's process-wide initialization. Create one before any Allocator
// and close it after the last Buffer and View are gone.
type System struct {
	driver driver.Driver

	mutex sync.Mutex
	ok    bool
}

// NewSystem initializes the platform
func NewSystem(drv driver.Driver) (*System, error) {
	if drv == nil {
		return nil, newError(InvalidArgument, func() string { return "a driver must be provided" })
	}

	err := drv.Init()
	if err != nil {
		return nil, wrapError(SystemInitFailed, err, func() string { return "platform initialization failed" })
	}

	return &System{driver: drv, ok: true}, nil
}

// Ok reports whether the platform is initialized and not yet closed
func (s *System) Ok() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.ok
}

func (s *System) Driver() driver.Driver { return s.driver }

// Close deinitializes the platform. Calling it again is a no-op.
func (s *System) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.ok {
		return nil
	}
	s.ok = false

	err := s.driver.Deinit()
	if err != nil {
		return wrapError(SystemCallFailed, errors.WithStack(err), func() string { return "platform deinitialization failed" })
	}
	return nil
}
