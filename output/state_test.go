package output

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestVSync(t *testing.T) {
	s := New(1, Timing{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				s.VSync()
			}
		}()
	}
	wg.Wait()

	if s.VSyncCount() != 8000 {
		t.Fatalf("expected 8000, got %d", s.VSyncCount())
	}
	if s.Committed() != 8000 || s.LastCommitVSync() != 8000 {
		t.Fatalf("expected last commit 8000, got %d", s.LastCommitVSync())
	}
	s.VSync()
	if s.LastCommitVSync() != 8000 {
		t.Fatal("last commit changed by vsync")
	}
}

func TestTiming(t *testing.T) {
	tests := map[string]struct {
		timing      Timing
		line, frame time.Duration
	}{
		"1080p60": {Timing{148500, 2200, 1125}, 14814, 14814 * 1125},
		"720p60":  {Timing{74250, 1650, 750}, 22222, 22222 * 750},
		"unset":   {Timing{}, 0, 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := tc.timing.LineDuration(); got != tc.line {
				t.Fatalf("expected %v, got %v", tc.line, got)
			}
			if got := tc.timing.FrameDuration(); got != tc.frame {
				t.Fatalf("expected %v, got %v", tc.frame, got)
			}
		})
	}
}

func TestPendingWork(t *testing.T) {
	s := New(0, Timing{})
	s.SetPendingWork(true)
	if !s.TakePendingWork() {
		t.Fatal("expected pending work")
	}
	if s.TakePendingWork() || s.PendingWork() {
		t.Fatal("pending work not cleared")
	}
}

func TestDump(t *testing.T) {
	s := New(2, Timing{PixelClock: 148500, HTotal: 2200, VTotal: 1125})
	s.SetEnabled(true)
	for range 1234 {
		s.VSync()
	}

	var sb strings.Builder
	if err := s.Dump(&sb); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"output 2", "enabled=true", "pixclk=148,500 kHz", "vsync=1,234"} {
		if !strings.Contains(sb.String(), want) {
			t.Fatalf("expected %q in %q", want, sb.String())
		}
	}
}
