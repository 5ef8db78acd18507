package engine

import (
	"time"

	"github.com/clktmr/de/freq"
	"github.com/clktmr/de/hw"
	"github.com/clktmr/de/rcq"
	"github.com/clktmr/de/regmap"
	"github.com/clktmr/de/units"
)

// BackendConfig is the backend state passed to AtomicFlush.
type BackendConfig struct {
	Blob []byte
}

// Immediate passed as backend configuration to AtomicFlush writes all dirty
// registers directly without waiting for the hardware. It's meant for
// contexts which must not block, like panic handlers and state dumps.
var Immediate = &BackendConfig{}

// AtomicFlush commits all register changes of output id to the hardware. The
// optional backend and color configuration are applied first. Channels are
// always serialized from their current configuration.
//
// If the hardware doesn't acknowledge the commit in time, ErrTimeout is
// returned and all changes stay pending for the next flush.
func (e *Engine) AtomicFlush(id int, backend *BackendConfig, color *units.ColorConfig) error {
	o, err := e.Output(id)
	if err != nil {
		e.log.Printf("engine: flush output %d: %v", id, err)
		return err
	}

	o.mtx.Lock()
	defer o.mtx.Unlock()
	if !o.State.Enabled() {
		e.log.Printf("engine: flush output %d: %v", id, ErrDisabled)
		return ErrDisabled
	}

	immediate := backend == Immediate
	if backend != nil && !immediate && o.backend != nil {
		if err := o.backend.Apply(backend.Blob); err != nil {
			return err
		}
	}
	if color != nil {
		if err := o.color.Apply(color); err != nil {
			return err
		}
	}
	for _, ch := range o.channels {
		ch.Serialize()
	}
	o.blender.Apply(o.cfg.Size, o.cfg.Background, o.channels)
	o.setCommitState(Requested)
	snap := o.table.Snapshot()

	if immediate {
		e.writeBlocks(snap.Blocks())
		e.commitDone(o, snap)
		return nil
	}

	switch e.prof.Strategy {
	case DescriptorQueue:
		e.requestQueue(o)
	case DoubleBuffer:
		e.writeBlocks(snap.Blocks())
		o.regs.dbufCtrl.Store(regmap.DBufReady)
		o.dbufPending.Store(true)
	case Readback:
		e.writeBlocks(snap.Blocks())
	}
	o.State.Committed()

	o.setCommitState(WaitingForHardware)
	if err := e.wait(o); err != nil {
		if o.stopTimer != nil {
			o.stopTimer()
			o.stopTimer = nil
		}
		o.setCommitState(TimedOut)
		e.log.Printf("engine: flush output %d: %v, %d blocks pending", id, err, len(o.table.DirtyBlocks()))
		return err
	}
	e.commitDone(o, snap)
	o.crtc.SendPendingEvent()
	e.deferWork(o)
	return nil
}

// writeBlocks copies blocks bound to the table of the flushing output directly
// into the registers.
func (e *Engine) writeBlocks(blocks []*rcq.Block) {
	for _, b := range blocks {
		hw.WriteIO(e.win, uint32(b.Reg-e.cfg.Base), b.Shadow)
	}
}

// commitDone settles the blocks which were dirty when the commit was
// requested. Blocks marked while the hardware worked stay pending.
func (e *Engine) commitDone(o *Output, snap rcq.Snapshot) {
	snap.Settle()
	o.setCommitState(Committed)
}

// requestQueue asks the hardware to walk the descriptor table of o at the next
// vertical blanking.
func (e *Engine) requestQueue(o *Output) {
	o.regs.rcqStatus.Store(regmap.RCQFinished)
	o.State.SetUpdateFinished(false)
	if e.prof.AutoFreq {
		e.scaleClock()
	}
	o.regs.rcqCtrl.Store(regmap.RCQFallback)

	if e.prof.WaitSafeLine {
		t := o.State.Timing()
		if lines := SafeLineDelay(o.crtc.Line(), t.VTotal); lines > 0 {
			ctrl := o.regs.rcqCtrl
			o.stopTimer = e.cfg.AfterFunc(time.Duration(lines)*t.LineDuration(), func() {
				ctrl.SetBits(regmap.RCQUpdate)
			})
			return
		}
	}
	o.regs.rcqCtrl.SetBits(regmap.RCQUpdate)
}

// finished reports whether the hardware walked the queue. The interrupt
// handler usually sets the flag, the status register covers interrupts which
// got lost.
func (o *Output) finished() bool {
	if o.State.UpdateFinished() {
		return true
	}
	if o.regs.rcqStatus.LoadBits(regmap.RCQFinished) != 0 {
		o.regs.rcqStatus.Store(regmap.RCQFinished)
		o.State.SetUpdateFinished(true)
		return true
	}
	return false
}

func (e *Engine) wait(o *Output) error {
	switch e.prof.Strategy {
	case DescriptorQueue:
		deadline := time.Now().Add(e.cfg.PollTimeout)
		for !o.finished() {
			if time.Now().After(deadline) {
				return ErrTimeout
			}
			time.Sleep(e.cfg.PollInterval)
		}
		o.stopTimer = nil

	case DoubleBuffer:
		timeout := o.vblankTimeout()
		for range e.cfg.VBlankRetries {
			next := o.vblank.Next()
			if !o.dbufPending.Load() {
				return nil
			}
			hw.WaitChan(next, timeout)
		}
		if o.dbufPending.Load() {
			return ErrTimeout
		}
	}
	return nil
}

// scaleClock sets the engine clock to the lowest rate that satisfies the
// scaling load of all enabled outputs.
func (e *Engine) scaleClock() {
	e.clkMtx.Lock()
	defer e.clkMtx.Unlock()

	var pixclk uint64
	var scales []freq.Scale
	for i := range e.outputs {
		o := e.outputs[i].Load()
		if o == nil || !o.State.Enabled() {
			continue
		}
		pixclk = max(pixclk, uint64(o.State.Timing().PixelClock)*1000)
		for _, ch := range o.channels {
			if s, ok := ch.Scale(); ok {
				scales = append(scales, s)
			}
		}
	}
	if pixclk == 0 {
		return
	}
	m, n := freq.Divider(freq.Target(pixclk, e.prof.MaxRate, scales), e.prof.ClockRate)
	e.clkDiv.Store(regmap.ClkDivValue(m, n))
}

// ClockRate returns the current engine clock in Hz.
func (e *Engine) ClockRate() uint64 {
	m, n := regmap.ClkDivFields(e.clkDiv.Load())
	return freq.Rate(e.prof.ClockRate, m, n)
}
