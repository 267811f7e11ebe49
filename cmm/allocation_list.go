package cmm

import (
	"github.com/axsys-go/cmm/cmm/internal/utils"
	"github.com/axsys-go/cmm/cmmutils"
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// allocationList tracks every live allocation made or attached through one Allocator
type allocationList struct {
	mutex utils.OptionalRWMutex

	count              int
	allocationListHead *allocation
	allocationListTail *allocation
}

func (l *allocationList) Init(useMutex bool) {
	l.mutex = utils.OptionalRWMutex{UseMutex: useMutex}
}

func (l *allocationList) Validate() error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	declaredCount := l.count
	actualCount := 0

	for alloc := l.allocationListHead; alloc != nil; alloc = alloc.nextAlloc {
		actualCount++

		if alloc.size <= 0 {
			return errors.Errorf("allocation 0x%x has invalid size %d", alloc.phys, alloc.size)
		}
	}

	if declaredCount != actualCount {
		return errors.Errorf("the listed number of allocations in the list (%d) does not match the actual number of allocations (%d)", declaredCount, actualCount)
	}

	return nil
}

func (l *allocationList) AddStatistics(stats *cmmutils.Statistics) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for alloc := l.allocationListHead; alloc != nil; alloc = alloc.nextAlloc {
		stats.BlockCount++
		stats.BlockBytes += alloc.size
	}
}

func (l *allocationList) BuildStatsString(writer *jwriter.Writer) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	s := writer.Array()
	defer s.End()

	for alloc := l.allocationListHead; alloc != nil; alloc = alloc.nextAlloc {
		o := s.Object()
		alloc.printParameters(&o)
		o.End()
	}
}

func (l *allocationList) Count() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.count
}

func (l *allocationList) Register(alloc *allocation) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.pushAllocation(alloc)
}

func (l *allocationList) Unregister(alloc *allocation) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.removeAllocation(alloc)
}

func (l *allocationList) removeAllocation(alloc *allocation) {
	prev := alloc.prevAlloc
	next := alloc.nextAlloc

	if prev != nil {
		prev.nextAlloc = next
	} else {
		l.allocationListHead = next
	}

	if next != nil {
		next.prevAlloc = prev
	} else {
		l.allocationListTail = prev
	}

	alloc.nextAlloc = nil
	alloc.prevAlloc = nil

	l.count--
}

func (l *allocationList) pushAllocation(alloc *allocation) {
	if l.count == 0 {
		l.allocationListHead = alloc
		l.allocationListTail = alloc
		l.count = 1
	} else {
		alloc.prevAlloc = l.allocationListTail
		l.allocationListTail.nextAlloc = alloc

		l.allocationListTail = alloc
		l.count++
	}
}
