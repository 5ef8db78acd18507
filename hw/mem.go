package hw

import (
	"sync"
	"sync/atomic"

	"github.com/clktmr/de/debug"
)

// Mem is a Window backed by ordinary memory. It stands in for the register
// space of simulated hardware. Stores from the driver side can be observed
// with OnStore, the simulated hardware itself uses Poke which bypasses hooks
// and accounting.
//
// Mem is safe for concurrent use.
type Mem struct {
	words  []atomic.Uint32
	stores atomic.Uint64

	mtx   sync.RWMutex
	hooks map[uint32]func(v uint32)
}

func NewMem(size uint32) *Mem {
	return &Mem{
		words: make([]atomic.Uint32, AlignUp(size, 4)>>2),
		hooks: make(map[uint32]func(uint32)),
	}
}

func (m *Mem) Size() uint32 { return uint32(len(m.words)) << 2 }

func (m *Mem) Load32(off uint32) uint32 {
	debug.Assert(IsAligned(off, 4), "hw: unaligned load")
	return m.words[off>>2].Load()
}

func (m *Mem) Store32(off uint32, v uint32) {
	debug.Assert(IsAligned(off, 4), "hw: unaligned store")
	m.words[off>>2].Store(v)
	m.stores.Add(1)

	m.mtx.RLock()
	hook := m.hooks[off]
	m.mtx.RUnlock()
	if hook != nil {
		hook(v)
	}
}

// Poke stores v without calling hooks or counting the store.
func (m *Mem) Poke(off uint32, v uint32) {
	m.words[off>>2].Store(v)
}

// OnStore registers fn to be called after every Store32 to off. Passing a nil
// fn removes the hook.
func (m *Mem) OnStore(off uint32, fn func(v uint32)) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if fn == nil {
		delete(m.hooks, off)
		return
	}
	m.hooks[off] = fn
}

// Stores returns the number of Store32 calls since creation.
func (m *Mem) Stores() uint64 { return m.stores.Load() }
