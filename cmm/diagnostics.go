package cmm

import (
	"fmt"
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Dump describes the buffer as JSON: the allocation, what the platform reports for the physical
// address phys+offset, and every open view
func (b *Buffer) Dump(offset int) string {
	b.allocator.logger.Debug("Buffer::Dump")

	writer := jwriter.NewWriter()
	obj := writer.Object()

	alloc := b.acquire()
	if alloc == nil {
		obj.Name("State").String(BufferIdle.String())
		obj.End()
		return string(writer.Bytes())
	}
	defer func() {
		err := alloc.release()
		if err != nil {
			b.allocator.logger.Warn("Buffer::Dump release failed", "error", err)
		}
	}()

	obj.Name("State").String(alloc.state().String())

	alloc.printParameters(&obj)

	query := alloc.phys + uint64(offset)
	info, err := b.allocator.driver.BlockInfoByPhys(query)

	byPhys := obj.Name("ByPhys").Object()
	byPhys.Name("Phys").String(fmt.Sprintf("0x%x", query))
	if err != nil {
		byPhys.Name("Error").String(err.Error())
	} else {
		byPhys.Name("Virt").String(fmt.Sprintf("%p", info.Virt))
		byPhys.Name("Mode").String(info.Mode.String())
		byPhys.Name("BlockSize").Int(int(info.BlockSize))
	}
	byPhys.End()

	obj.End()
	return string(writer.Bytes())
}

// Dump describes the view as JSON, including what the platform reports for the virtual address
// offset bytes into the window
func (v *View) Dump(offset int) string {
	v.logDebug("View::Dump")

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Valid").Bool(v.Valid())
	if !v.Valid() {
		obj.End()
		return string(writer.Bytes())
	}

	obj.Name("Addr").String(fmt.Sprintf("%p", v.data))
	obj.Name("Phys").String(fmt.Sprintf("0x%x", v.Phys()))
	obj.Name("Offset").Int(v.offset)
	obj.Name("Size").Int(v.size)
	obj.Name("Mode").String(v.mode.String())
	obj.Name("Fast").Bool(v.fast)

	byVirt := obj.Name("ByVirt").Object()
	if offset < 0 || offset >= v.size {
		byVirt.Name("Error").String(fmt.Sprintf("offset 0x%x out of range for view size 0x%x", offset, v.size))
	} else {
		addr := unsafe.Add(v.data, offset)
		byVirt.Name("Virt").String(fmt.Sprintf("%p", addr))

		info, err := v.allocator.driver.BlockInfoByVirt(addr)
		if err != nil {
			byVirt.Name("Error").String(err.Error())
		} else {
			byVirt.Name("Phys").String(fmt.Sprintf("0x%x", info.Phys))
			byVirt.Name("Mode").String(info.Mode.String())
		}
	}
	byVirt.End()

	obj.End()
	return string(writer.Bytes())
}

// Verify cross-checks the buffer's bookkeeping against the platform. An owned block must have
// the recorded size, the allocation must lie inside one partition and every open view must
// resolve to the physical address its offset implies.
func (b *Buffer) Verify() error {
	b.allocator.logger.Debug("Buffer::Verify")

	alloc := b.acquire()
	if alloc == nil {
		return newError(NoAllocation, func() string { return "no allocation to verify" })
	}

	return combine(b.verify(alloc), alloc.release())
}

func (b *Buffer) verify(alloc *allocation) error {
	if alloc.owned {
		info, err := b.allocator.driver.BlockInfoByPhys(alloc.phys)
		if err != nil {
			return wrapError(SystemCallFailed, err, func() string {
				return fmt.Sprintf("block info query for 0x%x failed", alloc.phys)
			})
		}
		if int(info.BlockSize) != alloc.size {
			return newErrorf(Unknown, "block at 0x%x is 0x%x bytes but the allocation records 0x%x", alloc.phys, info.BlockSize, alloc.size)
		}
	}

	parts, err := b.allocator.driver.Partitions()
	if err == nil {
		end := alloc.phys + uint64(alloc.size)
		inRange := false
		for _, part := range parts {
			base := part.Phys
			partEnd := base + uint64(part.SizeKB)*1024
			if alloc.phys >= base && end <= partEnd {
				inRange = true
				break
			}
		}
		if !inRange {
			return newErrorf(OutOfRange, "allocation 0x%x+0x%x lies outside every partition", alloc.phys, alloc.size)
		}
	}

	return alloc.views.Visit(func(view *View) error {
		info, err := b.allocator.driver.BlockInfoByVirt(view.data)
		if err != nil {
			return wrapError(SystemCallFailed, err, func() string {
				return fmt.Sprintf("view at %p does not resolve", view.data)
			})
		}
		if info.Phys < alloc.phys || info.Phys-alloc.phys != uint64(view.offset) {
			return newErrorf(Unknown, "view at offset 0x%x resolves to 0x%x, expected 0x%x", view.offset, info.Phys, alloc.phys+uint64(view.offset))
		}
		if view.offset+view.size > alloc.size {
			return newErrorf(OutOfRange, "view at offset 0x%x with size 0x%x exceeds the allocation", view.offset, view.size)
		}
		return nil
	})
}
