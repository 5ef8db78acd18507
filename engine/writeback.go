package engine

import (
	"errors"
	"fmt"

	"github.com/clktmr/de/rcq"
	"github.com/clktmr/de/units"
)

var ErrNoWriteBack = errors.New("engine: no write-back unit")

// WriteBack starts capturing output id into fb with the next flush of the
// output. A nil fb stops capturing if output id is the one captured.
//
// The write-back unit is shared by all outputs, attaching it to an output
// detaches it from the previous one.
func (e *Engine) WriteBack(id int, fb *units.Framebuffer) error {
	if e.wb == nil {
		return ErrNoWriteBack
	}
	o, err := e.Output(id)
	if err != nil {
		return err
	}

	e.mtx.Lock()
	defer e.mtx.Unlock()

	// The previous owner must not commit while the blocks move. Outputs are
	// locked in id order.
	locked := []*Output{o}
	if prev := e.wbOwner.Load(); prev >= 0 && int(prev) != id {
		if p := e.outputs[prev].Load(); p != nil {
			locked = append(locked, p)
			if prev < int32(id) {
				locked[0], locked[1] = p, o
			}
		}
	}
	for _, l := range locked {
		l.mtx.Lock()
		defer l.mtx.Unlock()
	}

	if fb == nil {
		if e.wbOwner.Load() == int32(id) {
			e.wb.Set(nil, id)
			e.wbOwner.Store(-1)
		}
		return nil
	}

	if e.wbOwner.Load() != int32(id) {
		if err := rcq.Rebind(e.wb.Blocks(), o.table); err != nil {
			e.log.Printf("engine: output %d: write-back: %v", id, err)
			return fmt.Errorf("engine: output %d: write-back: %w", id, err)
		}
		if prev := e.wbOwner.Swap(int32(id)); prev >= 0 {
			e.log.Printf("engine: write-back moved from output %d to %d", prev, id)
		}
	}
	e.wb.Set(fb, id)
	return nil
}

// WriteBackOwner returns the output currently captured by the write-back unit,
// or -1.
func (e *Engine) WriteBackOwner() int { return int(e.wbOwner.Load()) }
