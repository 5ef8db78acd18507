package units

import (
	"image"

	"github.com/clktmr/de/rcq"
)

// Framebuffer is the memory the write-back unit captures an output into.
type Framebuffer struct {
	Addr   uint64
	Stride int
	Size   image.Point
	Format Format
}

// WriteBack captures the blended image of one output into memory. There's a
// single write-back unit per engine, its blocks are in the descriptor queue of
// the output it currently captures.
type WriteBack struct {
	unit
}

const (
	wbCtrl = 0x00

	wbAddrLow  = 0x00
	wbAddrHigh = 0x04
	wbStride   = 0x08
	wbSize     = 0x0c

	wbEnable = 1 << 0
)

func NewWriteBack(alloc rcq.Allocator, base uint64) (*WriteBack, error) {
	reg := base + WriteBackBase
	u, err := newUnit("writeback", alloc, []uint64{reg, reg + 0x100}, []int{0x10, 0x10})
	if err != nil {
		return nil, err
	}
	return &WriteBack{u}, nil
}

// Set starts capturing output src into fb. A nil fb stops capturing.
func (wb *WriteBack) Set(fb *Framebuffer, src int) {
	ctrl, buf := wb.blocks[0], wb.blocks[1]
	if fb == nil {
		ctrl.Store32(wbCtrl, 0)
		return
	}
	low, high := rcq.SplitAddr(fb.Addr)
	buf.Store32(wbAddrLow, low)
	buf.Store32(wbAddrHigh, high)
	buf.Store32(wbStride, uint32(fb.Stride))
	buf.Store32(wbSize, packSize(fb.Size))
	ctrl.Store32(wbCtrl, wbEnable|uint32(src&0xf)<<4|uint32(fb.Format)<<8)
}

// Enabled reports whether the unit is capturing.
func (wb *WriteBack) Enabled() bool {
	return wb.blocks[0].Load32(wbCtrl)&wbEnable != 0
}
