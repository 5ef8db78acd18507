package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clktmr/de/engine"
	"github.com/clktmr/de/hw"
	"github.com/clktmr/de/hw/sim"
	"github.com/clktmr/de/output"
	"github.com/clktmr/de/units"
	"github.com/kballard/go-shellquote"
	"golang.org/x/image/math/f64"
	"golang.org/x/sync/errgroup"
)

type mode struct {
	size   image.Point
	timing output.Timing
}

var modes = map[string]mode{
	"480p60":  {image.Pt(720, 480), output.Timing{PixelClock: 27_000, HTotal: 858, VTotal: 525}},
	"720p60":  {image.Pt(1280, 720), output.Timing{PixelClock: 74_250, HTotal: 1650, VTotal: 750}},
	"1080p60": {image.Pt(1920, 1080), output.Timing{PixelClock: 148_500, HTotal: 2200, VTotal: 1125}},
	"2160p30": {image.Pt(3840, 2160), output.Timing{PixelClock: 297_000, HTotal: 4400, VTotal: 2250}},
}

var matrices = map[string]f64.Aff4{
	"identity": {1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0},
	"bt709": {
		0.2126, 0.7152, 0.0722, 0,
		-0.1146, -0.3854, 0.5, 0.5,
		0.5, -0.4542, -0.0458, 0.5,
	},
}

// session is a simulated engine together with the state the script builds up
// between flushes.
type session struct {
	ctx      context.Context
	e        *engine.Engine
	dev      *sim.Device
	realtime bool
	out      io.Writer

	gens    errgroup.Group
	mtx     sync.Mutex
	stopGen map[int]context.CancelFunc

	color   map[int]*units.ColorConfig
	changed map[int]bool
	backend map[int]*engine.BackendConfig
}

func newSession(ctx context.Context, prof engine.Profile, base uint64, realtime bool, logger *log.Logger, out io.Writer) (*session, error) {
	mem := hw.NewHostMemory(0x4000_0000, 16<<20)
	dev := sim.New(prof.Outputs, mem)
	dev.Immediate.Store(!realtime)

	cfg := engine.DefaultConfig(base)
	cfg.Log = logger
	e, err := engine.New(prof, cfg, dev.Regs, mem)
	if err != nil {
		return nil, err
	}
	dev.SetInterruptHandler(e.Interrupt)

	return &session{
		ctx:      ctx,
		e:        e,
		dev:      dev,
		realtime: realtime,
		out:      out,
		stopGen:  make(map[int]context.CancelFunc),
		color:    make(map[int]*units.ColorConfig),
		changed:  make(map[int]bool),
		backend:  make(map[int]*engine.BackendConfig),
	}, nil
}

// Exec runs all commands read from r. Empty lines and lines starting with #
// are ignored.
func (s *session) Exec(name string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args, err := shellquote.Split(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", name, n, err)
		}
		if err := s.command(args); err != nil {
			return fmt.Errorf("%s:%d: %s: %w", name, n, args[0], err)
		}
	}
	return scanner.Err()
}

func (s *session) command(args []string) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	switch args[0] {
	case "enable":
		return s.enable(args)
	case "disable":
		return s.disable(args)
	case "channel":
		return s.channel(args)
	case "gamma":
		return s.gamma(args)
	case "csc":
		return s.csc(args)
	case "enhance":
		return s.enhance(args)
	case "backend":
		return s.setBackend(args)
	case "flush":
		return s.flush(args)
	case "writeback":
		return s.writeBack(args)
	case "line":
		return s.line(args)
	case "vsync":
		return s.vsync(args)
	case "stall":
		return s.stall(args)
	case "sleep":
		return s.sleep(args)
	case "dump":
		return s.e.DumpState(s.out)
	}
	return errors.New("unknown command")
}

// Close stops all timing generators and tears down the engine.
func (s *session) Close() error {
	s.mtx.Lock()
	for id, stop := range s.stopGen {
		stop()
		delete(s.stopGen, id)
	}
	s.mtx.Unlock()
	err := s.gens.Wait()
	if cerr := s.e.Close(); err == nil {
		err = cerr
	}
	return err
}

func newFlags(name string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	return f
}

func parseArgs(f *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := f.Parse(args[1:]); err != nil {
		return nil, err
	}
	if f.NArg() < n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, f.NArg())
	}
	return f.Args(), nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseRect parses WxH or WxH+X+Y.
func parseRect(s string) (image.Rectangle, error) {
	var w, h, x, y int
	if _, err := fmt.Sscanf(s, "%dx%d+%d+%d", &w, &h, &x, &y); err != nil {
		x, y = 0, 0
		if _, err := fmt.Sscanf(s, "%dx%d", &w, &h); err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid rectangle %q", s)
		}
	}
	return image.Rect(x, y, x+w, y+h), nil
}

func parseFormat(s string) (units.Format, error) {
	for f := units.ARGB8888; f.BytesPerPixel() != 0; f++ {
		if strings.EqualFold(f.String(), s) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown format %q", s)
}

func parseOutputFormat(s string) (units.OutputFormat, error) {
	for f := units.RGB444; f <= units.YUV420; f++ {
		if strings.EqualFold(f.String(), s) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown output format %q", s)
}

func (s *session) enable(args []string) error {
	f := newFlags("enable")
	modeName := f.String("mode", "1080p60", "")
	wb := f.Bool("wb", false, "")
	format := f.String("format", "RGB444", "")
	depth := f.Int("depth", 8, "")
	bg := f.Uint("bg", 0xff000000, "")
	rest, err := parseArgs(f, args, 1)
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}
	m, ok := modes[*modeName]
	if !ok {
		return fmt.Errorf("unknown mode %q", *modeName)
	}
	of, err := parseOutputFormat(*format)
	if err != nil {
		return err
	}

	err = s.e.Enable(engine.OutputConfig{
		ID:         id,
		Timing:     m.timing,
		Size:       m.size,
		Background: color.RGBA{uint8(*bg >> 16), uint8(*bg >> 8), uint8(*bg), uint8(*bg >> 24)},
		Format:     of,
		Depth:      *depth,
		WriteBack:  *wb,
	})
	if err != nil {
		return err
	}
	s.color[id] = &units.ColorConfig{}
	s.changed[id] = false

	if s.realtime {
		ctx, cancel := context.WithCancel(s.ctx)
		s.mtx.Lock()
		s.stopGen[id] = cancel
		s.mtx.Unlock()
		s.gens.Go(func() error {
			if err := s.dev.Run(ctx, id, m.timing); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return nil
}

func (s *session) disable(args []string) error {
	rest, err := parseArgs(newFlags("disable"), args, 1)
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}
	s.mtx.Lock()
	if stop := s.stopGen[id]; stop != nil {
		stop()
		delete(s.stopGen, id)
	}
	s.mtx.Unlock()
	delete(s.color, id)
	delete(s.backend, id)
	return s.e.Disable(id)
}

func (s *session) channel(args []string) error {
	f := newFlags("channel")
	off := f.Bool("off", false, "")
	format := f.String("format", "XRGB8888", "")
	addr := f.Uint64("addr", 0x5000_0000, "")
	stride := f.Int("stride", 0, "")
	src := f.String("src", "1920x1080", "")
	dst := f.String("dst", "", "")
	alpha := f.Uint("alpha", 0, "")
	rest, err := parseArgs(f, args, 2)
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}
	ch, err := parseID(rest[1])
	if err != nil {
		return err
	}
	if *off {
		return s.e.ChannelUpdate(id, ch, units.ChannelConfig{})
	}

	cfg := units.ChannelConfig{Enabled: true, Addr: *addr, Stride: *stride, Alpha: uint8(*alpha)}
	if cfg.Format, err = parseFormat(*format); err != nil {
		return err
	}
	if cfg.Src, err = parseRect(*src); err != nil {
		return err
	}
	cfg.Dst = cfg.Src.Sub(cfg.Src.Min)
	if *dst != "" {
		if cfg.Dst, err = parseRect(*dst); err != nil {
			return err
		}
	}
	if cfg.Stride == 0 {
		cfg.Stride = cfg.Src.Max.X * cfg.Format.BytesPerPixel()
	}
	return s.e.ChannelUpdate(id, ch, cfg)
}

// colorArgs returns the pending colour configuration of the output in args[1]
// and the remaining arguments.
func (s *session) colorArgs(args []string, n int) (int, *units.ColorConfig, []string, error) {
	if len(args) < n+2 {
		return 0, nil, nil, fmt.Errorf("expected %d arguments, got %d", n+1, len(args)-1)
	}
	id, err := parseID(args[1])
	if err != nil {
		return 0, nil, nil, err
	}
	c, ok := s.color[id]
	if !ok {
		return 0, nil, nil, engine.ErrDisabled
	}
	s.changed[id] = true
	return id, c, args[2:], nil
}

func (s *session) gamma(args []string) error {
	_, c, rest, err := s.colorArgs(args, 1)
	if err != nil {
		return err
	}
	if rest[0] == "off" {
		c.Gamma = nil
		return nil
	}
	exp, err := strconv.ParseFloat(rest[0], 64)
	if err != nil || exp <= 0 {
		return fmt.Errorf("invalid gamma %q", rest[0])
	}
	c.Gamma = make([]color.RGBA64, units.GammaSize)
	for i := range c.Gamma {
		v := uint16(math.Round(math.Pow(float64(i)/(units.GammaSize-1), 1/exp) * 0xffff))
		c.Gamma[i] = color.RGBA64{v, v, v, 0xffff}
	}
	return nil
}

func (s *session) csc(args []string) error {
	_, c, rest, err := s.colorArgs(args, 1)
	if err != nil {
		return err
	}
	if rest[0] == "off" {
		c.Matrix = nil
		return nil
	}
	if m, ok := matrices[rest[0]]; ok {
		c.Matrix = &m
		return nil
	}
	var m f64.Aff4
	if len(rest) != len(m) {
		return fmt.Errorf("expected preset or %d coefficients", len(m))
	}
	for i, a := range rest {
		if m[i], err = strconv.ParseFloat(a, 64); err != nil {
			return err
		}
	}
	c.Matrix = &m
	return nil
}

func (s *session) enhance(args []string) error {
	_, c, rest, err := s.colorArgs(args, 1)
	if err != nil {
		return err
	}
	if rest[0] == "off" {
		c.Enhance = false
		return nil
	}
	if len(rest) != 4 {
		return fmt.Errorf("expected brightness, contrast, saturation and hue")
	}
	var v [4]int
	for i, a := range rest {
		if v[i], err = strconv.Atoi(a); err != nil {
			return err
		}
	}
	c.Enhance = true
	c.Brightness, c.Contrast, c.Saturation, c.Hue = v[0], v[1], v[2], v[3]
	return nil
}

func (s *session) setBackend(args []string) error {
	rest, err := parseArgs(newFlags("backend"), args, 2)
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}
	blob, err := parseHex(rest[1])
	if err != nil {
		return err
	}
	s.backend[id] = &engine.BackendConfig{Blob: blob}
	return nil
}

func parseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func (s *session) flush(args []string) error {
	f := newFlags("flush")
	immediate := f.Bool("immediate", false, "")
	rest, err := parseArgs(f, args, 1)
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}

	backend := s.backend[id]
	if *immediate {
		backend = engine.Immediate
	}
	var cc *units.ColorConfig
	if s.changed[id] {
		cc = s.color[id]
	}

	if s.realtime || *immediate || s.e.Profile().Strategy != engine.DoubleBuffer {
		err = s.e.AtomicFlush(id, backend, cc)
	} else {
		// Without a timing generator somebody has to provide vblanks.
		ctx, cancel := context.WithCancel(s.ctx)
		var g errgroup.Group
		g.Go(func() error { return s.pump(ctx, id) })
		err = s.e.AtomicFlush(id, backend, cc)
		cancel()
		g.Wait()
	}

	switch {
	case errors.Is(err, engine.ErrTimeout), errors.Is(err, engine.ErrDisabled):
		fmt.Fprintf(s.out, "flush %d: %v\n", id, err)
		return nil
	case err != nil:
		return err
	}
	delete(s.backend, id)
	s.changed[id] = false
	fmt.Fprintf(s.out, "flush %d: ok\n", id)
	return nil
}

func (s *session) pump(ctx context.Context, id int) error {
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			s.dev.VBlank(id)
		}
	}
}

func (s *session) writeBack(args []string) error {
	f := newFlags("writeback")
	off := f.Bool("off", false, "")
	addr := f.Uint64("addr", 0x6000_0000, "")
	size := f.String("size", "1920x1080", "")
	format := f.String("format", "XRGB8888", "")
	rest, err := parseArgs(f, args, 1)
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}
	if *off {
		return s.e.WriteBack(id, nil)
	}
	r, err := parseRect(*size)
	if err != nil {
		return err
	}
	fb := &units.Framebuffer{Addr: *addr, Size: r.Size()}
	if fb.Format, err = parseFormat(*format); err != nil {
		return err
	}
	fb.Stride = fb.Size.X * fb.Format.BytesPerPixel()
	return s.e.WriteBack(id, fb)
}

func (s *session) line(args []string) error {
	rest, err := parseArgs(newFlags("line"), args, 2)
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(rest[1])
	if err != nil {
		return err
	}
	if _, err := s.e.Output(id); err != nil {
		return err
	}
	s.dev.SetLine(id, n)
	return nil
}

func (s *session) vsync(args []string) error {
	rest, err := parseArgs(newFlags("vsync"), args, 1)
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}
	if _, err := s.e.Output(id); err != nil {
		return err
	}
	count := 1
	if len(rest) > 1 {
		if count, err = strconv.Atoi(rest[1]); err != nil {
			return err
		}
	}
	for range count {
		s.dev.VBlank(id)
	}
	return nil
}

func (s *session) stall(args []string) error {
	rest, err := parseArgs(newFlags("stall"), args, 1)
	if err != nil {
		return err
	}
	switch rest[0] {
	case "on":
		s.dev.Stall.Store(true)
	case "off":
		s.dev.Stall.Store(false)
	default:
		return fmt.Errorf("expected on or off")
	}
	return nil
}

func (s *session) sleep(args []string) error {
	rest, err := parseArgs(newFlags("sleep"), args, 1)
	if err != nil {
		return err
	}
	d, err := time.ParseDuration(rest[0])
	if err != nil {
		return err
	}
	select {
	case <-time.After(d):
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
