// Package output keeps the per output bookkeeping of the display engine.
//
// All counters and flags are atomics. They are updated from interrupt context
// (vertical blank) and read from the commit path and diagnostics.
package output

import (
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Timing describes the scan-out of one frame.
type Timing struct {
	PixelClock uint32 // in kHz
	HTotal     int    // pixels per line including blanking
	VTotal     int    // lines per frame including blanking
}

// LineDuration returns the time the beam needs for one line.
func (t Timing) LineDuration() time.Duration {
	if t.PixelClock == 0 {
		return 0
	}
	return time.Duration(uint64(t.HTotal) * 1_000_000 / uint64(t.PixelClock))
}

// FrameDuration returns the time of one frame including blanking.
func (t Timing) FrameDuration() time.Duration {
	return t.LineDuration() * time.Duration(t.VTotal)
}

// State is the bookkeeping of one output, created when the output is attached.
type State struct {
	ID int

	enabled         atomic.Bool
	updateFinished  atomic.Bool
	pendingWork     atomic.Bool
	vsyncCount      atomic.Uint64
	lastCommitVSync atomic.Uint64
	timing          atomic.Pointer[Timing]
}

func New(id int, t Timing) *State {
	s := &State{ID: id}
	s.timing.Store(&t)
	return s
}

func (s *State) SetEnabled(v bool) { s.enabled.Store(v) }
func (s *State) Enabled() bool     { return s.enabled.Load() }

func (s *State) Timing() Timing     { return *s.timing.Load() }
func (s *State) SetTiming(t Timing) { s.timing.Store(&t) }

// VSync counts a vertical blank. It's called from interrupt context.
//
//go:nosplit
func (s *State) VSync() uint64 { return s.vsyncCount.Add(1) }

func (s *State) VSyncCount() uint64 { return s.vsyncCount.Load() }

// Committed records the current vsync count as the one of the last commit.
func (s *State) Committed() uint64 {
	n := s.vsyncCount.Load()
	s.lastCommitVSync.Store(n)
	return n
}

func (s *State) LastCommitVSync() uint64 { return s.lastCommitVSync.Load() }

func (s *State) SetUpdateFinished(v bool) { s.updateFinished.Store(v) }
func (s *State) UpdateFinished() bool     { return s.updateFinished.Load() }

func (s *State) SetPendingWork(v bool) { s.pendingWork.Store(v) }
func (s *State) PendingWork() bool     { return s.pendingWork.Load() }

// TakePendingWork clears the pending work flag and returns its old value.
func (s *State) TakePendingWork() bool { return s.pendingWork.Swap(false) }

var printer = message.NewPrinter(language.English)

// Printer returns the printer used for diagnostic output.
func Printer() *message.Printer { return printer }

// Dump writes a human readable summary of s to w.
func (s *State) Dump(w io.Writer) error {
	t := s.Timing()
	_, err := printer.Fprintf(w,
		"output %d: enabled=%t pixclk=%d kHz htotal=%d vtotal=%d\n"+
			"  vsync=%d last_commit=%d update_finished=%t pending_work=%t\n",
		s.ID, s.Enabled(), t.PixelClock, t.HTotal, t.VTotal,
		s.VSyncCount(), s.LastCommitVSync(), s.UpdateFinished(), s.PendingWork())
	return err
}
