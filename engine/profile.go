package engine

import (
	"fmt"
	"log"
	"slices"
	"time"
)

// Strategy selects how register updates reach the hardware.
type Strategy uint8

const (
	// DescriptorQueue lets the hardware copy all dirty register blocks
	// during vertical blanking, driven by the descriptor table.
	DescriptorQueue Strategy = iota

	// DoubleBuffer writes the registers directly and latches them at the
	// next vertical blanking once the ready bit is set.
	DoubleBuffer

	// Readback writes the registers directly, the hardware reads them back
	// whenever it needs them. There's nothing to wait for.
	Readback
)

func (s Strategy) String() string {
	switch s {
	case DescriptorQueue:
		return "rcq"
	case DoubleBuffer:
		return "dbuf"
	case Readback:
		return "ahb"
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// Profile describes the capabilities and quirks of one hardware revision.
type Profile struct {
	Name     string
	Strategy Strategy

	// WaitSafeLine delays the commit request until the beam is outside the
	// active region, otherwise the hardware might start consuming a
	// partially updated queue.
	WaitSafeLine bool

	// SkipReadbackNearActive suppresses deferred work while the beam is
	// outside [readbackMinLine, readbackMaxLine).
	SkipReadbackNearActive bool

	// AutoFreq reduces the engine clock to what the current scaling load
	// requires before each queue update.
	AutoFreq  bool
	ClockRate uint64 // engine source clock in Hz
	MaxRate   uint64 // highest allowed engine clock in Hz

	Outputs   int
	Channels  int // per output
	Top       bool
	Backend   bool
	Format    bool // format converter present
	WriteBack bool
}

// Profiles contains the known hardware revisions by name.
var Profiles = map[string]Profile{
	"dbuf": {
		Name: "dbuf", Strategy: DoubleBuffer,
		ClockRate: 432_000_000, MaxRate: 432_000_000,
		Outputs: 2, Channels: 4, WriteBack: true,
	},
	"ahb": {
		Name: "ahb", Strategy: Readback,
		ClockRate: 600_000_000, MaxRate: 600_000_000,
		Outputs: 2, Channels: 4, Top: true, Backend: true, WriteBack: true,
	},
	"rcq": {
		Name: "rcq", Strategy: DescriptorQueue,
		ClockRate: 600_000_000, MaxRate: 600_000_000,
		Outputs: 2, Channels: 4, Top: true, Backend: true, Format: true, WriteBack: true,
	},
	"rcq-safe-line": {
		Name: "rcq-safe-line", Strategy: DescriptorQueue,
		WaitSafeLine: true, SkipReadbackNearActive: true, AutoFreq: true,
		ClockRate: 1_200_000_000, MaxRate: 696_000_000,
		Outputs: 2, Channels: 6, Top: true, Backend: true, Format: true, WriteBack: true,
	},
}

// ProfileNames returns the names of all profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Config holds the tunables of an Engine which aren't a property of the
// hardware revision.
type Config struct {
	Base uint64 // device address of the engine registers

	// Bounds of waiting for a queue update to finish.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Number of vertical blankings to wait for the double buffer to latch.
	VBlankRetries int

	// AfterFunc calls f in its own goroutine after d. The returned function
	// stops the timer. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)

	Log *log.Logger
}

// DefaultConfig returns the configuration for an engine at base.
func DefaultConfig(base uint64) Config {
	return Config{
		Base:          base,
		PollInterval:  2 * time.Microsecond,
		PollTimeout:   50 * time.Millisecond,
		VBlankRetries: 10,
	}
}

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
