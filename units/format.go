package units

import "fmt"

// Format is the pixel format of a framebuffer read by a channel or written by
// the write-back unit.
type Format uint8

const (
	ARGB8888 Format = iota + 1
	XRGB8888
	RGB888
	RGB565
	ARGB1555
)

var formatInfo = [...]struct {
	name string
	bpp  int
}{
	ARGB8888: {"ARGB8888", 4},
	XRGB8888: {"XRGB8888", 4},
	RGB888:   {"RGB888", 3},
	RGB565:   {"RGB565", 2},
	ARGB1555: {"ARGB1555", 2},
}

// BytesPerPixel returns the size of one pixel in memory, or 0 for an unknown
// format.
func (f Format) BytesPerPixel() int {
	if int(f) >= len(formatInfo) {
		return 0
	}
	return formatInfo[f].bpp
}

func (f Format) String() string {
	if int(f) >= len(formatInfo) || formatInfo[f].name == "" {
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
	return formatInfo[f].name
}

// OutputFormat is the pixel encoding produced by the format converter.
type OutputFormat uint8

const (
	RGB444 OutputFormat = iota
	YUV444
	YUV422
	YUV420
)

func (f OutputFormat) String() string {
	switch f {
	case RGB444:
		return "RGB444"
	case YUV444:
		return "YUV444"
	case YUV422:
		return "YUV422"
	case YUV420:
		return "YUV420"
	}
	return fmt.Sprintf("OutputFormat(%d)", uint8(f))
}
