package units

import (
	"fmt"

	"github.com/clktmr/de/rcq"
)

// BackendSize is the size of the backend register blob.
const BackendSize = 0x100

// Backend holds the opaque post-processing state of an output. Its registers
// are programmed from a blob prepared by the caller.
type Backend struct {
	unit
}

func NewBackend(alloc rcq.Allocator, base uint64, id int) (*Backend, error) {
	u, err := newUnit("backend", alloc, []uint64{MixerAddr(base, id) + backendOffset}, []int{BackendSize})
	if err != nil {
		return nil, err
	}
	return &Backend{u}, nil
}

// Apply copies blob to the start of the backend registers. The remaining
// registers are left unchanged.
func (b *Backend) Apply(blob []byte) error {
	if len(blob) > BackendSize {
		return fmt.Errorf("units: backend blob of %d bytes exceeds %d", len(blob), BackendSize)
	}
	b.blocks[0].Write(0, blob)
	return nil
}
