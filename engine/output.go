package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clktmr/de/hw"
	"github.com/clktmr/de/output"
	"github.com/clktmr/de/rcq"
	"github.com/clktmr/de/regmap"
	"github.com/clktmr/de/units"
)

// CommitState is the progress of the last commit of an output.
type CommitState int32

const (
	Idle CommitState = iota
	Requested
	WaitingForHardware
	Committed
	TimedOut
)

func (s CommitState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case WaitingForHardware:
		return "waiting"
	case Committed:
		return "committed"
	case TimedOut:
		return "timed out"
	}
	return fmt.Sprintf("CommitState(%d)", int32(s))
}

// Output is an enabled output of the engine together with its units.
type Output struct {
	State *output.State

	cfg  OutputConfig
	crtc Crtc
	regs outputRegs

	top      *units.Top
	blender  *units.Blender
	format   *units.FormatConverter
	color    *units.Color
	backend  *units.Backend
	channels []*units.Channel
	units    []units.Unit
	table    *rcq.Table

	mtx       sync.Mutex // serializes flushes
	commit    atomic.Int32
	stopTimer func() bool

	vblank      hw.Cond
	dbufPending atomic.Bool
}

type outputRegs struct {
	headLow, headHigh, len hw.U32
	rcqCtrl, rcqStatus     hw.U32
	dbufCtrl               hw.U32
	line                   hw.U32
	irqStatus, irqEnable   hw.U32
}

func newOutputRegs(w hw.Window, id int) outputRegs {
	base := regmap.Output(id)
	return outputRegs{
		headLow:   hw.Reg(w, base+regmap.RCQHeadLow),
		headHigh:  hw.Reg(w, base+regmap.RCQHeadHigh),
		len:       hw.Reg(w, base+regmap.RCQLen),
		rcqCtrl:   hw.Reg(w, base+regmap.RCQCtrl),
		rcqStatus: hw.Reg(w, base+regmap.RCQStatus),
		dbufCtrl:  hw.Reg(w, base+regmap.DBufCtrl),
		line:      hw.Reg(w, base+regmap.Line),
		irqStatus: hw.Reg(w, base+regmap.IRQStatus),
		irqEnable: hw.Reg(w, base+regmap.IRQEnable),
	}
}

// regCrtc reads the beam position from the line register of the output.
type regCrtc struct{ line hw.U32 }

func (c regCrtc) Line() int         { return int(c.line.Load()) }
func (c regCrtc) SendPendingEvent() {}

// newOutput allocates the units of an output and builds its descriptor table.
func (e *Engine) newOutput(oc OutputConfig) (*Output, error) {
	id, base, alloc := oc.ID, e.cfg.Base, e.alloc
	o := &Output{
		State: output.New(id, oc.Timing),
		cfg:   oc,
		crtc:  oc.Crtc,
		regs:  newOutputRegs(e.win, id),
	}
	if o.crtc == nil {
		o.crtc = regCrtc{o.regs.line}
	}

	var err error
	var lists [][]*rcq.Block
	add := func(u units.Unit) {
		o.units = append(o.units, u)
		lists = append(lists, u.Blocks())
	}

	if o.blender, err = units.NewBlender(alloc, base, id, e.prof.Channels); err != nil {
		return nil, err
	}
	add(o.blender)
	if e.prof.Top {
		if o.top, err = units.NewTop(alloc, base, id); err != nil {
			return nil, err
		}
		add(o.top)
	}
	if e.prof.Backend {
		if o.backend, err = units.NewBackend(alloc, base, id); err != nil {
			return nil, err
		}
		add(o.backend)
	}
	if o.color, err = units.NewColor(alloc, base, id); err != nil {
		return nil, err
	}
	add(o.color)
	if e.prof.Format {
		if o.format, err = units.NewFormatConverter(alloc, base, id); err != nil {
			return nil, err
		}
		add(o.format)
	}
	if e.wb != nil && oc.WriteBack {
		lists = append(lists, e.wb.Blocks())
	}
	for i := range e.prof.Channels {
		ch, err := units.NewChannel(alloc, base, id, i)
		if err != nil {
			return nil, err
		}
		o.channels = append(o.channels, ch)
		add(ch)
	}

	if o.top != nil {
		o.top.Apply(oc.Size)
	}
	if o.format != nil {
		o.format.Apply(oc.Format, oc.Depth)
	}
	o.blender.Apply(oc.Size, oc.Background, o.channels)

	if o.table, err = rcq.Build(base, alloc, lists...); err != nil {
		return nil, err
	}
	return o, nil
}

// CommitState returns the state of the last commit.
func (o *Output) CommitState() CommitState { return CommitState(o.commit.Load()) }

func (o *Output) setCommitState(s CommitState) { o.commit.Store(int32(s)) }

// Table returns the descriptor table of the output.
func (o *Output) Table() *rcq.Table { return o.table }

// Channels returns the number of channels of the output.
func (o *Output) Channels() int { return len(o.channels) }

// Color returns the colour pipeline of the output.
func (o *Output) Color() *units.Color { return o.color }

// vblankNotify runs in interrupt context.
func (o *Output) vblankNotify() {
	o.State.VSync()
	if o.dbufPending.Load() && o.regs.dbufCtrl.LoadBits(regmap.DBufReady) == 0 {
		o.dbufPending.Store(false)
	}
	o.vblank.Signal()
}

// vblankTimeout is the longest time to wait for a single vertical blanking.
func (o *Output) vblankTimeout() time.Duration {
	if d := 2 * o.State.Timing().FrameDuration(); d > 0 {
		return max(d, 20*time.Millisecond)
	}
	return 100 * time.Millisecond
}
