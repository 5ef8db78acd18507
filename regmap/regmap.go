// Package regmap describes the core registers of the display engine which are
// written directly by the CPU. Offsets are relative to the engine base.
package regmap

// Global registers.
const (
	Ctrl    = 0x0000
	ClkDiv  = 0x0004 // m in bits 0..3, n in bits 8..11
	Version = 0x0008
)

// Per output registers, relative to Output(id).
const (
	RCQHeadLow  = 0x00 // device address of the descriptor table
	RCQHeadHigh = 0x04
	RCQLen      = 0x08 // number of descriptors
	RCQCtrl     = 0x0c
	RCQStatus   = 0x10
	DBufCtrl    = 0x14
	Line        = 0x18 // current scanout line, read only
	IRQStatus   = 0x1c // write 1 to clear
	IRQEnable   = 0x20
)

const (
	CtrlEnable = 1 << 0

	RCQUpdate   = 1 << 0 // apply the queue at the next vblank
	RCQFallback = 1 << 1 // readback based update if the queue misses the vblank

	RCQFinished = 1 << 0 // write 1 to clear
	RCQBusy     = 1 << 1

	DBufReady = 1 << 0 // latch the registers at the next vblank

	IRQVBlank      = 1 << 0
	IRQRCQFinished = 1 << 1
)

const (
	outputBase   = 0x0100
	outputStride = 0x40
)

// Output returns the offset of the registers of output id.
func Output(id int) uint32 {
	return outputBase + uint32(id)*outputStride
}

// ClkDivValue packs a clock divider pair.
func ClkDivValue(m, n uint32) uint32 {
	return m&0xf | (n&0xf)<<8
}

// ClkDivFields unpacks a clock divider register.
func ClkDivFields(v uint32) (m, n uint32) {
	return v & 0xf, v >> 8 & 0xf
}
