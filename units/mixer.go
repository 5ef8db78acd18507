package units

import (
	"image"
	"image/color"

	"github.com/clktmr/de/rcq"
)

func packSize(p image.Point) uint32 {
	if p.X <= 0 || p.Y <= 0 {
		return 0
	}
	return uint32(p.Y-1)<<16 | uint32(p.X-1)&0xffff
}

func packPos(p image.Point) uint32 {
	return uint32(p.Y)<<16 | uint32(p.X)&0xffff
}

func packARGB(c color.RGBA) uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Top is the top-level unit of a mixer, it enables the mixer and sets the
// output size.
type Top struct {
	unit
}

const (
	topCtrl = 0x00
	topSize = 0x04

	topEnable = 1 << 0
)

func NewTop(alloc rcq.Allocator, base uint64, id int) (*Top, error) {
	u, err := newUnit("top", alloc, []uint64{MixerAddr(base, id) + topOffset}, []int{0x10})
	if err != nil {
		return nil, err
	}
	return &Top{u}, nil
}

// Apply enables the mixer for an output of the given size. A zero size
// disables it.
func (t *Top) Apply(size image.Point) {
	b := t.blocks[0]
	b.Store32(topSize, packSize(size))
	b.Store32(topCtrl, boolBit(size != image.Point{}, topEnable))
}

// Blender composes the channels of an output onto a background colour. Each
// channel is routed to its own pipe.
type Blender struct {
	unit
	pipes int
}

const (
	bldCtrl  = 0x00
	bldBg    = 0x04
	bldSize  = 0x08
	bldRoute = 0x0c
	bldPipe  = 0x10 // per pipe: position, size

	bldPipeStride = 8
)

func NewBlender(alloc rcq.Allocator, base uint64, id, pipes int) (*Blender, error) {
	u, err := newUnit("blender", alloc,
		[]uint64{MixerAddr(base, id) + blenderOffset},
		[]int{bldPipe + pipes*bldPipeStride})
	if err != nil {
		return nil, err
	}
	return &Blender{u, pipes}, nil
}

// Apply sets the output size, background and the placement of each channel.
func (bl *Blender) Apply(size image.Point, bg color.RGBA, chans []*Channel) {
	b := bl.blocks[0]
	var ctrl, route uint32
	for i, ch := range chans[:min(len(chans), bl.pipes)] {
		cfg := ch.Config()
		off := bldPipe + i*bldPipeStride
		if cfg.Enabled {
			ctrl |= 1 << i
			b.Store32(off, packPos(cfg.Dst.Min))
			b.Store32(off+4, packSize(cfg.Dst.Size()))
		}
		route |= uint32(i&0xf) << (4 * i)
	}
	b.Store32(bldBg, packARGB(bg))
	b.Store32(bldSize, packSize(size))
	b.Store32(bldRoute, route)
	b.Store32(bldCtrl, ctrl)
}

// FormatConverter converts the blended RGB output to the pixel encoding of the
// connected encoder.
type FormatConverter struct {
	unit
}

const (
	fmtCtrl   = 0x00
	fmtFormat = 0x04
	fmtDepth  = 0x08

	fmtEnable = 1 << 0
)

func NewFormatConverter(alloc rcq.Allocator, base uint64, id int) (*FormatConverter, error) {
	u, err := newUnit("fmt", alloc, []uint64{MixerAddr(base, id) + formatOffset}, []int{0x10})
	if err != nil {
		return nil, err
	}
	return &FormatConverter{u}, nil
}

// Apply sets the output encoding and the bit depth per component. RGB444 with
// 8 bits bypasses the converter.
func (f *FormatConverter) Apply(format OutputFormat, depth int) {
	b := f.blocks[0]
	b.Store32(fmtFormat, uint32(format))
	b.Store32(fmtDepth, uint32(depth))
	b.Store32(fmtCtrl, boolBit(format != RGB444 || depth != 8, fmtEnable))
}
