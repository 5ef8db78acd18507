package rcq

import (
	"sync/atomic"

	"github.com/clktmr/de/hw"
)

// DescriptorSize is the size of one descriptor in device memory.
const DescriptorSize = 16

// A descriptor consists of four 32 bit words in host byte order, which is
// little endian on every supported platform:
//
//	0: device address of the shadow, bits 0..31
//	1: device address of the shadow, bits 32..63
//	2: length in bytes (bits 0..23), dirty (bit 31)
//	3: register offset relative to the engine base
const (
	wordLow = iota
	wordHigh
	wordCtrl
	wordOffset
	descWords
)

const (
	ctrlLenMask uint32 = 0x00ff_ffff
	ctrlDirty   uint32 = 1 << 31
)

// Descriptor is the decoded form of a queue entry as read by the hardware.
type Descriptor struct {
	LowAddr   uint32
	HighAddr  uint32
	Len       uint32
	Dirty     bool
	RegOffset uint32
}

// SplitAddr splits a device address into the two address words.
func SplitAddr(addr uint64) (low, high uint32) {
	return uint32(addr), uint32(addr >> 32)
}

// Addr reassembles the device address of the shadow.
func (d Descriptor) Addr() uint64 {
	return uint64(d.HighAddr)<<32 | uint64(d.LowAddr)
}

func decodeDescriptor(w []uint32) Descriptor {
	return Descriptor{
		LowAddr:   w[wordLow],
		HighAddr:  w[wordHigh],
		Len:       w[wordCtrl] & ctrlLenMask,
		Dirty:     w[wordCtrl]&ctrlDirty != 0,
		RegOffset: w[wordOffset],
	}
}

// ReadDescriptor decodes the descriptor at the start of p, which must be 4 byte
// aligned. The words are loaded atomically, like the hardware does.
func ReadDescriptor(p []byte) Descriptor {
	w := hw.Words(p[:DescriptorSize])
	var v [descWords]uint32
	for i := range v {
		v[i] = atomic.LoadUint32(&w[i])
	}
	return decodeDescriptor(v[:])
}
