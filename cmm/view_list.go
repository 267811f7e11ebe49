package cmm

import (
	"fmt"

	"github.com/axsys-go/cmm/cmm/internal/utils"
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// ViewEntry is a snapshot of one registered view
type ViewEntry struct {
	Addr   uintptr
	Offset int
	Size   int
	Mode   CacheMode
	Fast   bool
}

// viewList is the registry of open views on one allocation. Views are linked through their own
// prev/next fields so registering never allocates.
type viewList struct {
	mutex utils.OptionalRWMutex

	// Set once the allocation has dropped its last reference; nothing may register after that
	closed bool
	// Size of the allocation the views belong to
	limit int

	count    int
	viewHead *View
	viewTail *View
}

func (l *viewList) Init(useMutex bool, limit int) {
	l.mutex = utils.OptionalRWMutex{UseMutex: useMutex}
	l.limit = limit
}

func (l *viewList) Validate() error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	actualCount := 0
	for view := l.viewHead; view != nil; view = view.next {
		actualCount++

		if view.offset < 0 || view.offset+view.size > l.limit {
			return errors.Errorf("view at offset %d with size %d does not fit in an allocation of size %d", view.offset, view.size, l.limit)
		}
		if view.next != nil && view.next.prev != view {
			return errors.New("view registry links are inconsistent")
		}
	}

	if l.count != actualCount {
		return errors.Errorf("the listed number of views in the registry (%d) does not match the actual number of views (%d)", l.count, actualCount)
	}

	if l.closed && l.count > 0 {
		return errors.Errorf("a released allocation still has %d registered views", l.count)
	}

	return nil
}

func (l *viewList) Register(view *View) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return errors.New("the allocation has already been released")
	}
	if view.prev != nil || view.next != nil || l.viewHead == view {
		return errors.New("the view is already registered")
	}
	if view.offset < 0 || view.size <= 0 || view.offset+view.size > l.limit {
		return errors.Newf("view at offset %d with size %d does not fit in an allocation of size %d", view.offset, view.size, l.limit)
	}

	l.pushView(view)
	return nil
}

func (l *viewList) Unregister(view *View) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.removeView(view)
}

// Close stops further registrations
func (l *viewList) Close() {
	l.mutex.Guard(func() { l.closed = true })
}

func (l *viewList) Count() int {
	var count int
	l.mutex.ReadGuard(func() { count = l.count })
	return count
}

func (l *viewList) Entries() []ViewEntry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	entries := make([]ViewEntry, 0, l.count)
	for view := l.viewHead; view != nil; view = view.next {
		entries = append(entries, view.entry())
	}
	return entries
}

// Visit calls fn for each registered view while holding the read lock, stopping at the first error
func (l *viewList) Visit(fn func(view *View) error) error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for view := l.viewHead; view != nil; view = view.next {
		err := fn(view)
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *viewList) BuildStatsString(json *jwriter.ObjectState) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	arr := json.Name("Views").Array()
	defer arr.End()

	for view := l.viewHead; view != nil; view = view.next {
		obj := arr.Object()
		obj.Name("Addr").String(fmt.Sprintf("%p", view.data))
		obj.Name("Offset").Int(view.offset)
		obj.Name("Size").Int(view.size)
		obj.Name("Mode").String(view.mode.String())
		obj.Name("Fast").Bool(view.fast)
		obj.End()
	}
}

func (l *viewList) removeView(view *View) {
	prev := view.prev
	next := view.next

	if prev != nil {
		prev.next = next
	} else if l.viewHead == view {
		l.viewHead = next
	} else {
		// Not in this list
		return
	}

	if next != nil {
		next.prev = prev
	} else {
		l.viewTail = prev
	}

	view.next = nil
	view.prev = nil

	l.count--
}

func (l *viewList) pushView(view *View) {
	if l.count == 0 {
		l.viewHead = view
		l.viewTail = view
		l.count = 1
	} else {
		view.prev = l.viewTail
		l.viewTail.next = view

		l.viewTail = view
		l.count++
	}
}
