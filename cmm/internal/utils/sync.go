package utils

import (
	"sync"
)

// OptionalMutex is a sync.Mutex that can be switched off when the owner is externally synchronized
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

// OptionalRWMutex is the read/write counterpart of OptionalMutex
type OptionalRWMutex struct {
	Mutex    sync.RWMutex
	UseMutex bool
}

func (m *OptionalRWMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalRWMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

func (m *OptionalRWMutex) RLock() {
	if m.UseMutex {
		m.Mutex.RLock()
	}
}

func (m *OptionalRWMutex) RUnlock() {
	if m.UseMutex {
		m.Mutex.RUnlock()
	}
}

// Guard runs fn with the write lock held
func (m *OptionalRWMutex) Guard(fn func()) {
	m.Lock()
	defer m.Unlock()

	fn()
}

// ReadGuard runs fn with the read lock held
func (m *OptionalRWMutex) ReadGuard(fn func()) {
	m.RLock()
	defer m.RUnlock()

	fn()
}
