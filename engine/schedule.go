package engine

// SafeLineDelay returns the number of lines to wait from line until the beam
// is inside the safe window [total/4, 3*total/4] of a frame with total lines.
// Past the window the delay wraps into the next frame.
func SafeLineDelay(line, total int) int {
	minLine, maxLine := total/4, total*3/4
	switch {
	case line < minLine:
		return minLine - line
	case line > maxLine:
		return total - line + minLine
	}
	return 0
}

// Reading back hardware state is only safe while the beam is in these lines.
const (
	readbackMinLine = 20
	readbackMaxLine = 128
)

// deferWork queues the deferred work of all units of o which need it. Work
// skipped because of the beam position stays pending for the next commit.
func (e *Engine) deferWork(o *Output) {
	needed := false
	for _, u := range o.units {
		needed = needed || u.RoutineJob()
	}
	if !needed {
		return
	}
	o.State.SetPendingWork(true)

	if e.prof.SkipReadbackNearActive {
		if line := o.crtc.Line(); line < readbackMinLine || line >= readbackMaxLine {
			return
		}
	}
	e.work.Enqueue(e.runDeferred)
}

// runDeferred does the pending work of all outputs.
func (e *Engine) runDeferred() {
	for i := range e.outputs {
		if o := e.outputs[i].Load(); o != nil {
			o.runDeferred(e)
		}
	}
}

func (o *Output) runDeferred(e *Engine) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if !o.State.Enabled() || !o.State.TakePendingWork() {
		return
	}
	for _, u := range o.units {
		if u.RoutineJob() {
			u.Routine(e.win)
		}
	}
}

// DrainWork waits until all queued deferred work is done.
func (e *Engine) DrainWork() { e.work.Drain() }
