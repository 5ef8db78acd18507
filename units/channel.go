package units

import (
	"errors"
	"image"
	"sync"

	"github.com/clktmr/de/freq"
	"github.com/clktmr/de/rcq"
)

var ErrInvalidChannel = errors.New("units: invalid channel configuration")

// ChannelConfig describes the framebuffer a channel scans out and where it
// appears on the output.
type ChannelConfig struct {
	Enabled bool
	Format  Format
	Addr    uint64 // device address of the framebuffer
	Stride  int    // bytes per line

	Src   image.Rectangle // visible part of the framebuffer in pixels
	Dst   image.Rectangle // position on the output
	Alpha uint8           // plane alpha, 0 means opaque
}

// Channel is one input plane of a mixer. It consists of the layer registers
// and a scaler which is enabled when source and destination size differ.
type Channel struct {
	unit
	index int

	mtx sync.Mutex
	cfg ChannelConfig
}

const (
	layerCtrl     = 0x00
	layerSize     = 0x04
	layerAddrLow  = 0x08
	layerAddrHigh = 0x0c
	layerStride   = 0x10
	layerPos      = 0x14

	layerEnable = 1 << 0

	scalerCtrl  = 0x00
	scalerSize  = 0x04
	scalerHStep = 0x08
	scalerVStep = 0x0c

	scalerEnable = 1 << 0
)

func NewChannel(alloc rcq.Allocator, base uint64, id, index int) (*Channel, error) {
	if index >= maxChannels {
		return nil, ErrInvalidChannel
	}
	reg := MixerAddr(base, id) + channelOffset + uint64(index)*channelStride
	u, err := newUnit("channel", alloc, []uint64{reg, reg + scalerOffset}, []int{0x20, 0x10})
	if err != nil {
		return nil, err
	}
	return &Channel{unit: u, index: index}, nil
}

func (c *Channel) Index() int { return c.index }

// Config returns the current configuration.
func (c *Channel) Config() ChannelConfig {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.cfg
}

// Set validates and stores cfg. The shadow registers are written by the next
// Serialize.
func (c *Channel) Set(cfg ChannelConfig) error {
	if cfg.Enabled {
		if cfg.Format.BytesPerPixel() == 0 || cfg.Src.Empty() || cfg.Dst.Empty() ||
			cfg.Src.Min.X < 0 || cfg.Src.Min.Y < 0 || cfg.Dst.Min.X < 0 || cfg.Dst.Min.Y < 0 ||
			cfg.Stride < cfg.Src.Max.X*cfg.Format.BytesPerPixel() {
			return ErrInvalidChannel
		}
	}
	c.mtx.Lock()
	c.cfg = cfg
	c.mtx.Unlock()
	return nil
}

// Serialize writes the current configuration to the shadow registers. Only
// registers whose value changes mark their block dirty.
func (c *Channel) Serialize() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	cfg := c.cfg
	layer, scaler := c.blocks[0], c.blocks[1]
	if !cfg.Enabled {
		layer.Store32(layerCtrl, 0)
		scaler.Store32(scalerCtrl, 0)
		return
	}

	addr := cfg.Addr + uint64(cfg.Src.Min.Y*cfg.Stride+cfg.Src.Min.X*cfg.Format.BytesPerPixel())
	low, high := rcq.SplitAddr(addr)
	layer.Store32(layerSize, packSize(cfg.Src.Size()))
	layer.Store32(layerAddrLow, low)
	layer.Store32(layerAddrHigh, high)
	layer.Store32(layerStride, uint32(cfg.Stride))
	layer.Store32(layerPos, packPos(cfg.Dst.Min))
	layer.Store32(layerCtrl, layerEnable|uint32(cfg.Format)<<8|uint32(cfg.Alpha)<<16)

	src, dst := cfg.Src.Size(), cfg.Dst.Size()
	if src == dst {
		scaler.Store32(scalerCtrl, 0)
		return
	}
	scaler.Store32(scalerSize, packSize(dst))
	scaler.Store32(scalerHStep, uint32(src.X<<16/dst.X))
	scaler.Store32(scalerVStep, uint32(src.Y<<16/dst.Y))
	scaler.Store32(scalerCtrl, scalerEnable)
}

// Scale returns the scaling done by the channel. The second return value is
// false if the channel is disabled.
func (c *Channel) Scale() (freq.Scale, bool) {
	cfg := c.Config()
	if !cfg.Enabled {
		return freq.Scale{}, false
	}
	return freq.Scale{Src: cfg.Src.Size(), Dst: cfg.Dst.Size()}, true
}
