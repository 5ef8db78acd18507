// Package freq derives a reduced engine clock from the current scaling load.
//
// The engine clock is divided by a rational factor (n+1)/(m+1) with 4 bit m
// and n. Running the engine only as fast as the scalers need saves power
// compared to always running at the maximum rate.
package freq

import "image"

// Maximum value of the divider fields.
const maxDiv = 15

// Divider returns the divider pair whose rate source*(n+1)/(m+1) is the
// smallest rate not below target. If target isn't below source, the clock
// stays undivided and (0, 0) is returned.
func Divider(target, source uint64) (m, n uint32) {
	if target >= source {
		return 0, 0
	}

	found := false
	best := uint64(0)
	for mm := uint32(0); mm <= maxDiv; mm++ {
		for nn := uint32(0); nn <= maxDiv; nn++ {
			rate := Rate(source, mm, nn)
			if rate < target {
				continue
			}
			if diff := rate - target; !found || diff < best {
				m, n, best, found = mm, nn, diff, true
			}
		}
	}
	if !found {
		return maxDiv, 0
	}
	return m, n
}

// Rate returns the clock rate resulting from source divided by (m, n).
func Rate(source uint64, m, n uint32) uint64 {
	return source * uint64(n+1) / uint64(m+1)
}

// Scale is the source and destination size of one scaled layer.
type Scale struct {
	Src, Dst image.Point
}

// Target returns the clock rate the engine needs to scan out pixclk pixels per
// second while every layer is scaled as given. Downscaling by a factor
// requires the same factor in processing rate. The result is never below
// pixclk and never above maxRate.
func Target(pixclk, maxRate uint64, scales []Scale) uint64 {
	target := pixclk
	for _, s := range scales {
		if s.Dst.X > 0 && s.Src.X > s.Dst.X {
			target = max(target, pixclk*uint64(s.Src.X)/uint64(s.Dst.X))
		}
		if s.Dst.Y > 0 && s.Src.Y > s.Dst.Y {
			target = max(target, pixclk*uint64(s.Src.Y)/uint64(s.Dst.Y))
		}
	}
	return min(target, maxRate)
}
