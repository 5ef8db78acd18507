// Package sim simulates the register interface of the display engine.
//
// The simulated device walks the descriptor queue of an output like the real
// hardware does: on vertical blanking every dirty block is copied from its
// shadow into the register window. Double buffered registers are latched at
// vertical blanking as well. The beam position and vertical blanking are
// driven by the user, either explicitly or with Run.
package sim

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clktmr/de/hw"
	"github.com/clktmr/de/output"
	"github.com/clktmr/de/rcq"
	"github.com/clktmr/de/regmap"
	"github.com/clktmr/de/units"
)

// Device is a simulated display engine.
type Device struct {
	Regs *hw.Mem
	Mem  *hw.HostMemory

	// Immediate applies a queue update as soon as it's requested instead of
	// at the next vertical blanking.
	Immediate atomic.Bool

	// Stall keeps requested queue updates from ever being applied.
	Stall atomic.Bool

	mtx     sync.Mutex
	outputs []*simOutput
	handler atomic.Pointer[func(id int)]

	applied atomic.Uint64
	faults  atomic.Uint64
}

type simOutput struct {
	id        int
	off       uint32
	requested bool
	request   uint32 // control value of the last update request
	irq       atomic.Uint32
	status    atomic.Uint32
}

// New returns a device with the given number of outputs. Descriptor tables
// and shadows are resolved in mem.
func New(outputs int, mem *hw.HostMemory) *Device {
	d := &Device{Regs: hw.NewMem(units.WindowSize(outputs)), Mem: mem}
	d.Regs.Poke(regmap.Version, 0x0003_0500)
	for i := range outputs {
		o := &simOutput{id: i, off: regmap.Output(i)}
		d.outputs = append(d.outputs, o)
		d.Regs.OnStore(o.off+regmap.RCQCtrl, func(v uint32) { d.rcqCtrl(o, v) })
		d.Regs.OnStore(o.off+regmap.IRQStatus, func(v uint32) {
			d.mtx.Lock()
			d.update(o.off+regmap.IRQStatus, &o.irq, 0, v)
			d.mtx.Unlock()
		})
		d.Regs.OnStore(o.off+regmap.RCQStatus, func(v uint32) {
			d.mtx.Lock()
			d.update(o.off+regmap.RCQStatus, &o.status, 0, v&regmap.RCQFinished)
			d.mtx.Unlock()
		})
	}
	return d
}

// update sets and clears bits of a status register and mirrors it into the
// register window. Must be called with d.mtx held.
func (d *Device) update(off uint32, reg *atomic.Uint32, set, clear uint32) {
	v := reg.Load()&^clear | set
	reg.Store(v)
	d.Regs.Poke(off, v)
}

// SetInterruptHandler installs fn to be called for every raised interrupt of
// an enabled source.
func (d *Device) SetInterruptHandler(fn func(id int)) {
	d.handler.Store(&fn)
}

func (d *Device) raise(o *simOutput) {
	if fn := d.handler.Load(); fn != nil {
		if o.irq.Load()&d.Regs.Load32(o.off+regmap.IRQEnable) != 0 {
			(*fn)(o.id)
		}
	}
}

func (d *Device) rcqCtrl(o *simOutput, v uint32) {
	if v&regmap.RCQUpdate == 0 {
		return
	}
	d.mtx.Lock()
	o.requested = true
	o.request = v
	d.update(o.off+regmap.RCQStatus, &o.status, regmap.RCQBusy, 0)
	raised := false
	if d.Immediate.Load() {
		raised = d.apply(o)
	}
	d.mtx.Unlock()
	if raised {
		d.raise(o)
	}
}

// apply walks the descriptor queue of o if an update was requested. Reports
// whether an interrupt was raised. Must be called with d.mtx held.
func (d *Device) apply(o *simOutput) bool {
	if !o.requested || d.Stall.Load() {
		return false
	}
	head := uint64(d.Regs.Load32(o.off+regmap.RCQHeadHigh))<<32 | uint64(d.Regs.Load32(o.off+regmap.RCQHeadLow))
	n := int(d.Regs.Load32(o.off + regmap.RCQLen))
	for i := range n {
		raw, err := d.Mem.Bytes(head+uint64(i*rcq.DescriptorSize), rcq.DescriptorSize)
		if err != nil {
			d.faults.Add(1)
			break
		}
		desc := rcq.ReadDescriptor(raw)
		if !desc.Dirty || desc.Len == 0 {
			continue
		}
		shadow, err := d.Mem.Bytes(desc.Addr(), int(desc.Len))
		if err != nil || desc.RegOffset+desc.Len > d.Regs.Size() {
			d.faults.Add(1)
			continue
		}
		for j := 0; j+4 <= len(shadow); j += 4 {
			d.Regs.Poke(desc.RegOffset+uint32(j), binary.LittleEndian.Uint32(shadow[j:]))
		}
		d.applied.Add(1)
	}
	o.requested = false
	d.Regs.Poke(o.off+regmap.RCQCtrl, 0)
	d.update(o.off+regmap.RCQStatus, &o.status, regmap.RCQFinished, regmap.RCQBusy)
	d.update(o.off+regmap.IRQStatus, &o.irq, regmap.IRQRCQFinished, 0)
	return true
}

// VBlank simulates the start of vertical blanking on output id. Requested
// queue updates are applied and double buffered registers are latched.
func (d *Device) VBlank(id int) {
	o := d.outputs[id]
	d.mtx.Lock()
	d.apply(o)
	d.Regs.Poke(o.off+regmap.DBufCtrl, d.Regs.Load32(o.off+regmap.DBufCtrl)&^regmap.DBufReady)
	d.Regs.Poke(o.off+regmap.Line, 0)
	d.update(o.off+regmap.IRQStatus, &o.irq, regmap.IRQVBlank, 0)
	d.mtx.Unlock()
	d.raise(o)
}

// SetLine sets the current scanout line of output id.
func (d *Device) SetLine(id, line int) {
	d.Regs.Poke(d.outputs[id].off+regmap.Line, uint32(line))
}

// Pending reports whether a queue update of output id waits for vblank.
func (d *Device) Pending(id int) bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.outputs[id].requested
}

// LastRequest returns the queue control value which requested the last update
// of output id.
func (d *Device) LastRequest(id int) uint32 {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.outputs[id].request
}

// Applied returns the number of blocks copied by the queue so far.
func (d *Device) Applied() uint64 { return d.applied.Load() }

// Faults returns the number of descriptors which couldn't be resolved.
func (d *Device) Faults() uint64 { return d.faults.Load() }

// Run advances the beam of output id according to t until ctx is done.
// Vertical blanking starts whenever the beam wraps around.
func (d *Device) Run(ctx context.Context, id int, t output.Timing) error {
	frame := t.FrameDuration()
	line := t.LineDuration()
	if frame <= 0 || line <= 0 {
		return nil
	}
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	start := time.Now()
	frames := int64(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			elapsed := now.Sub(start)
			if n := int64(elapsed / frame); n > frames {
				frames = n
				d.VBlank(id)
			}
			d.SetLine(id, int(elapsed%frame/line))
		}
	}
}
