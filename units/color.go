package units

import (
	"errors"
	"image/color"
	"math"
	"sync/atomic"

	"github.com/clktmr/de/hw"
	"github.com/clktmr/de/rcq"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

// GammaSize is the number of entries in the gamma lookup table.
const GammaSize = 256

var ErrGammaSize = errors.New("units: gamma table must have 256 entries")

// ColorConfig is the colour pipeline state of an output. The zero value
// bypasses all stages.
type ColorConfig struct {
	Gamma  []color.RGBA64 // nil bypasses the lookup table
	Matrix *f64.Aff4      // colour space conversion, nil bypasses; offsets relative to full scale

	// Enhancement in the range 0 to 100, 50 is neutral.
	Enhance                               bool
	Brightness, Contrast, Saturation, Hue int
}

// Color is the colour pipeline of an output: colour space conversion,
// enhancement and gamma correction.
type Color struct {
	unit
	statsOff uint32
	enhance  atomic.Bool
}

const (
	cscCtrl   = 0x00
	cscCoeffs = 0x04

	enhCtrl       = 0x00
	enhBrightness = 0x04
	enhContrast   = 0x08
	enhSaturation = 0x0c
	enhHue        = 0x10
	enhGain       = 0x14
	enhStats      = 0x100 // read only, outside the block

	gammaCtrl    = 0x00
	gammaEntries = 0x04

	colorEnable = 1 << 0

	// Unity gain of the adaptive contrast in 8.8 fixed point.
	gainUnity = 0x100
	gainMax   = 4 * gainUnity
)

func NewColor(alloc rcq.Allocator, base uint64, id int) (*Color, error) {
	mixer := MixerAddr(base, id)
	u, err := newUnit("color", alloc,
		[]uint64{mixer + cscOffset, mixer + enhanceOffset, mixer + gammaOffset},
		[]int{0x40, 0x20, gammaEntries + GammaSize*4})
	if err != nil {
		return nil, err
	}
	c := &Color{unit: u, statsOff: uint32(mixer + enhanceOffset + enhStats - base)}
	c.blocks[1].Store32(enhGain, gainUnity)
	return c, nil
}

// EnhanceStatsAddr returns the device address of the luminance statistics
// register of output id.
func EnhanceStatsAddr(base uint64, id int) uint64 {
	return MixerAddr(base, id) + enhanceOffset + enhStats
}

// Apply writes cfg to the shadow registers.
func (c *Color) Apply(cfg *ColorConfig) error {
	if cfg.Gamma != nil && len(cfg.Gamma) != GammaSize {
		return ErrGammaSize
	}
	csc, enh, gamma := c.blocks[0], c.blocks[1], c.blocks[2]

	if cfg.Matrix != nil {
		for i, v := range cfg.Matrix {
			csc.Store32(cscCoeffs+4*i, cscCoeff(i, v))
		}
	}
	csc.Store32(cscCtrl, boolBit(cfg.Matrix != nil, colorEnable))

	if cfg.Enhance {
		enh.Store32(enhBrightness, clampPercent(cfg.Brightness))
		enh.Store32(enhContrast, clampPercent(cfg.Contrast))
		enh.Store32(enhSaturation, clampPercent(cfg.Saturation))
		enh.Store32(enhHue, clampPercent(cfg.Hue))
	}
	enh.Store32(enhCtrl, boolBit(cfg.Enhance, colorEnable))
	c.enhance.Store(cfg.Enhance)

	for i, e := range cfg.Gamma {
		gamma.Store32(gammaEntries+4*i, uint32(e.R>>6)<<20|uint32(e.G>>6)<<10|uint32(e.B>>6))
	}
	gamma.Store32(gammaCtrl, boolBit(cfg.Gamma != nil, colorEnable))
	return nil
}

// Coefficients are signed 3.12, offsets are added in 10-bit code values with
// 12 fractional bits.
const (
	cscCoeffMin = fixed.Int52_12(-8 << 12)
	cscCoeffMax = fixed.Int52_12(8<<12 - 1)

	cscFullScale = fixed.Int52_12(1023 << 12)
)

func cscCoeff(i int, v float64) uint32 {
	x := fixed.Int52_12(math.Round(v * (1 << 12)))
	if i%4 == 3 {
		x = x.Mul(cscFullScale)
	} else {
		x = min(max(x, cscCoeffMin), cscCoeffMax)
	}
	return uint32(int32(x))
}

func clampPercent(v int) uint32 {
	return uint32(min(max(v, 0), 100))
}

// RoutineJob reports true while enhancement is enabled. The adaptive gain
// depends on the statistics of the previous frame.
func (c *Color) RoutineJob() bool { return c.enhance.Load() }

// Routine reads the average luminance of the last frame and updates the
// adaptive contrast gain.
func (c *Color) Routine(w hw.Window) {
	if !c.enhance.Load() {
		return
	}
	avg := hw.Reg(w, c.statsOff).Load() & 0xff
	gain := uint32(gainUnity)
	if avg > 0 {
		gain = min(gainMax, gainUnity*128/avg)
	}
	c.blocks[1].Store32(enhGain, gain)
}

// Gain returns the adaptive contrast gain in 8.8 fixed point.
func (c *Color) Gain() uint32 { return c.blocks[1].Load32(enhGain) }
