package engine

import (
	"io"

	"github.com/clktmr/de/output"
	"github.com/clktmr/de/rcq"
)

// DumpState writes a human readable summary of the engine and all enabled
// outputs to w. It never blocks on the hardware or a flush in progress.
func (e *Engine) DumpState(w io.Writer) error {
	p := output.Printer()
	_, err := p.Fprintf(w, "engine: profile=%s strategy=%v clock=%d Hz writeback=%d\n",
		e.prof.Name, e.prof.Strategy, e.ClockRate(), e.WriteBackOwner())
	if err != nil {
		return err
	}

	if e.mtx.TryLock() {
		a, ok := e.alloc.(*rcq.Arena)
		if ok {
			_, err = p.Fprintf(w, "arena: used=%d of %d bytes\n", a.Used(), a.Capacity())
		}
		e.mtx.Unlock()
		if err != nil {
			return err
		}
	}

	for i := range e.outputs {
		o := e.outputs[i].Load()
		if o == nil {
			continue
		}
		if err := o.State.Dump(w); err != nil {
			return err
		}
		t := o.table
		_, err := p.Fprintf(w, "  commit=%v busy=%t blocks=%d descriptors=%d dirty=%d crc=%#02x\n",
			o.CommitState(), e.QueryBusy(i), t.Count, t.Len(), t.Dirty(), t.Checksum())
		if err != nil {
			return err
		}
	}
	return nil
}
