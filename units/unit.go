// Package units contains the hardware units of the display engine which own
// register blocks: blender, channels, colour pipeline, backend and write-back.
//
// A unit translates its configuration into writes to the shadow of its
// register blocks. Writes that change the shadow mark the block dirty, the
// commit engine takes care of getting dirty blocks into the hardware.
package units

import (
	"github.com/clktmr/de/hw"
	"github.com/clktmr/de/rcq"
)

// Unit is a hardware unit contributing register blocks to an output's
// descriptor queue.
type Unit interface {
	Name() string
	Blocks() []*rcq.Block

	// RoutineJob reports whether the unit needs Routine to be called after
	// a successful commit.
	RoutineJob() bool

	// Routine does deferred work after a commit. It may read back hardware
	// state from w. It's never called from interrupt context.
	Routine(w hw.Window)
}

// Register map relative to the engine base. The units of output i are at
// MixerBase + i*MixerStride.
const (
	WriteBackBase = 0x0001_0000
	MixerBase     = 0x0010_0000
	MixerStride   = 0x0004_0000

	topOffset       = 0x0000
	blenderOffset   = 0x1000
	formatOffset    = 0x2000
	cscOffset       = 0x3000
	enhanceOffset   = 0x3400
	gammaOffset     = 0x4000
	backendOffset   = 0x5000
	channelOffset   = 0x8000
	channelStride   = 0x1000
	scalerOffset    = 0x0800
	maxChannels     = (MixerStride - channelOffset) / channelStride
	windowSizeSlack = 0x1000
)

// MixerAddr returns the device address of the units of output id.
func MixerAddr(base uint64, id int) uint64 {
	return base + MixerBase + uint64(id)*MixerStride
}

// WindowSize returns the size of the register window needed for outputs
// outputs.
func WindowSize(outputs int) uint32 {
	return MixerBase + uint32(outputs)*MixerStride + windowSizeSlack
}

type unit struct {
	name   string
	blocks []*rcq.Block
}

// newUnit allocates one block per size, each starting at the given register
// address.
func newUnit(name string, alloc rcq.Allocator, regs []uint64, sizes []int) (unit, error) {
	u := unit{name: name}
	for i, reg := range regs {
		b, err := rcq.NewBlock(alloc, reg, sizes[i])
		if err != nil {
			return u, err
		}
		u.blocks = append(u.blocks, b)
	}
	return u, nil
}

func (u *unit) Name() string         { return u.name }
func (u *unit) Blocks() []*rcq.Block { return u.blocks }
func (u *unit) RoutineJob() bool     { return false }
func (u *unit) Routine(hw.Window)    {}

func boolBit(v bool, bit uint32) uint32 {
	if v {
		return bit
	}
	return 0
}
