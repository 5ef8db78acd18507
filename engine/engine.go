// Package engine commits register state of the display engine atomically.
//
// Every output owns a set of hardware units whose register blocks are
// collected into a descriptor table when the output is enabled. AtomicFlush
// pushes all blocks dirtied since the last commit into the hardware with one
// of the strategies of the hardware revision, and waits for the hardware to
// acknowledge the update.
//
// Interrupts are forwarded with Interrupt. It only touches atomics and never
// blocks, so it's safe to call from any context.
package engine

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"sync"
	"sync/atomic"

	"github.com/clktmr/de/debug"
	"github.com/clktmr/de/hw"
	"github.com/clktmr/de/output"
	"github.com/clktmr/de/rcq"
	"github.com/clktmr/de/regmap"
	"github.com/clktmr/de/units"
)

var (
	ErrDisabled = errors.New("engine: output disabled")
	ErrTimeout  = errors.New("engine: commit timeout")
	ErrNoOutput = errors.New("engine: no such output")
	ErrBusy     = errors.New("engine: output already enabled")
)

// Crtc is the timing generator driving an output.
type Crtc interface {
	// Line returns the line currently scanned out.
	Line() int

	// SendPendingEvent signals completion of a commit to whoever waits for
	// it, e.g. a page flip event.
	SendPendingEvent()
}

// OutputConfig describes an output at the time it's enabled.
type OutputConfig struct {
	ID         int
	Timing     output.Timing
	Size       image.Point
	Background color.RGBA

	Format units.OutputFormat
	Depth  int // bits per component, defaults to 8

	// WriteBack adds the write-back unit to the output's descriptor table,
	// which is required to capture the output.
	WriteBack bool

	// Crtc defaults to reading the line register of the output.
	Crtc Crtc
}

// Engine is one display engine instance with its outputs.
type Engine struct {
	prof  Profile
	cfg   Config
	log   *log.Logger
	win   hw.Window
	mem   hw.Coherent
	alloc rcq.Allocator

	ctrl   hw.U32
	clkDiv hw.U32

	mtx     sync.Mutex // serializes enabling, disabling and write-back attach
	outputs []atomic.Pointer[Output]

	wb      *units.WriteBack
	wbOwner atomic.Int32

	clkMtx sync.Mutex
	work   *workQueue
}

// New returns an engine for a hardware revision described by prof. The
// registers are accessed through win, descriptor tables and shadows are
// allocated from mem.
func New(prof Profile, cfg Config, win hw.Window, mem hw.Coherent) (*Engine, error) {
	def := DefaultConfig(cfg.Base)
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.VBlankRetries <= 0 {
		cfg.VBlankRetries = def.VBlankRetries
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = afterFunc
	}
	if cfg.Log == nil {
		cfg.Log = log.Default()
	}

	alloc, err := rcq.NewAllocator(mem, prof.Strategy == DescriptorQueue)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		prof:    prof,
		cfg:     cfg,
		log:     cfg.Log,
		win:     win,
		mem:     mem,
		alloc:   alloc,
		ctrl:    hw.Reg(win, regmap.Ctrl),
		clkDiv:  hw.Reg(win, regmap.ClkDiv),
		outputs: make([]atomic.Pointer[Output], prof.Outputs),
		work:    newWorkQueue(),
	}
	e.wbOwner.Store(-1)
	if prof.WriteBack {
		if e.wb, err = units.NewWriteBack(alloc, cfg.Base); err != nil {
			return nil, fmt.Errorf("engine: write-back: %w", err)
		}
	}
	return e, nil
}

// Profile returns the hardware revision of the engine.
func (e *Engine) Profile() Profile { return e.prof }

// Output returns output id if it's enabled.
func (e *Engine) Output(id int) (*Output, error) {
	if id < 0 || id >= len(e.outputs) {
		return nil, ErrNoOutput
	}
	o := e.outputs[id].Load()
	if o == nil {
		return nil, ErrDisabled
	}
	return o, nil
}

// Enable brings up an output: allocates the register blocks of its units,
// builds its descriptor table and programs the hardware to use it.
func (e *Engine) Enable(oc OutputConfig) error {
	if oc.ID < 0 || oc.ID >= len(e.outputs) {
		return ErrNoOutput
	}
	if oc.Depth == 0 {
		oc.Depth = 8
	}

	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.outputs[oc.ID].Load() != nil {
		return ErrBusy
	}

	o, err := e.newOutput(oc)
	if err != nil {
		return fmt.Errorf("engine: enable output %d: %w", oc.ID, err)
	}

	irq := uint32(regmap.IRQVBlank)
	if e.prof.Strategy == DescriptorQueue {
		low, high := rcq.SplitAddr(o.table.Phys)
		o.regs.headLow.Store(low)
		o.regs.headHigh.Store(high)
		o.regs.len.Store(uint32(o.table.Len()))
		irq |= regmap.IRQRCQFinished
	}
	o.regs.irqStatus.Store(o.regs.irqStatus.Load())
	o.regs.irqEnable.Store(irq)
	e.ctrl.SetBits(regmap.CtrlEnable)

	o.State.SetEnabled(true)
	e.outputs[oc.ID].Store(o)
	e.log.Printf("engine: output %d enabled, %dx%d, %d register blocks", oc.ID, oc.Size.X, oc.Size.Y, o.table.Count)
	return nil
}

// Disable tears down output id. A flush in progress is completed first.
func (e *Engine) Disable(id int) error {
	o, err := e.Output(id)
	if err != nil {
		return err
	}

	e.mtx.Lock()
	defer e.mtx.Unlock()
	o.mtx.Lock()
	defer o.mtx.Unlock()

	o.State.SetEnabled(false)
	if o.stopTimer != nil {
		o.stopTimer()
		o.stopTimer = nil
	}
	o.regs.irqEnable.Store(0)
	if e.prof.Strategy == DescriptorQueue {
		o.regs.len.Store(0)
	}
	if e.wbOwner.CompareAndSwap(int32(id), -1) {
		e.wb.Set(nil, id)
		e.writeBlocks(e.wb.Blocks())
	}
	e.outputs[id].Store(nil)
	o.table.Release(e.alloc)

	enabled := false
	for i := range e.outputs {
		enabled = enabled || e.outputs[i].Load() != nil
	}
	if !enabled {
		e.ctrl.ClearBits(regmap.CtrlEnable)
	}
	e.log.Printf("engine: output %d disabled", id)
	return nil
}

// Close disables all outputs, waits for deferred work and releases the
// memory of the engine.
func (e *Engine) Close() error {
	for i := range e.outputs {
		if e.outputs[i].Load() != nil {
			debug.AssertErrNil(e.Disable(i))
		}
	}
	e.work.Drain()
	if a, ok := e.alloc.(*rcq.Arena); ok {
		a.Release()
	}
	return nil
}

// ChannelUpdate configures channel ch of output id. The change takes effect
// with the next flush.
func (e *Engine) ChannelUpdate(id, ch int, cfg units.ChannelConfig) error {
	o, err := e.Output(id)
	if err != nil {
		return err
	}
	if ch < 0 || ch >= len(o.channels) {
		return fmt.Errorf("engine: output %d: %w", id, units.ErrInvalidChannel)
	}
	return o.channels[ch].Set(cfg)
}

// Interrupt handles the interrupt of output id. It acknowledges all pending
// interrupt sources.
func (e *Engine) Interrupt(id int) {
	if id < 0 || id >= len(e.outputs) {
		return
	}
	o := e.outputs[id].Load()
	if o == nil {
		return
	}
	status := o.regs.irqStatus.Load()
	o.regs.irqStatus.Store(status)
	if status&regmap.IRQRCQFinished != 0 {
		o.State.SetUpdateFinished(true)
	}
	if status&regmap.IRQVBlank != 0 {
		o.vblankNotify()
	}
}

// VBlank notifies output id about the start of vertical blanking, for
// platforms where it isn't signalled by Interrupt.
func (e *Engine) VBlank(id int) {
	if id < 0 || id >= len(e.outputs) {
		return
	}
	if o := e.outputs[id].Load(); o != nil {
		o.vblankNotify()
	}
}

// QueryBusy reports whether a commit of output id hasn't reached the hardware
// yet.
func (e *Engine) QueryBusy(id int) bool {
	o, err := e.Output(id)
	if err != nil {
		return false
	}
	if o.CommitState() == WaitingForHardware {
		return true
	}
	switch e.prof.Strategy {
	case DescriptorQueue:
		return o.regs.rcqStatus.LoadBits(regmap.RCQBusy) != 0
	case DoubleBuffer:
		return o.regs.dbufCtrl.LoadBits(regmap.DBufReady) != 0
	}
	return false
}
