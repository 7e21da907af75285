// Package capture owns the screenshot side of the pipeline: monitor
// enumeration and selection, the per-monitor state table, and the
// timed capture loop that feeds change detection.
package capture

import (
	"context"
	"image"
	"strconv"

	"github.com/rfontain/glimpse/internal/errors"
)

// Monitor selection modes, stored in the capture_monitor_mode setting.
const (
	MonitorModeAll      = "all"
	MonitorModeDefault  = "default"
	MonitorModeActive   = "active"
	MonitorModeSpecific = "specific"
)

// Monitor describes one attached display.
type Monitor struct {
	ID        int
	Name      string
	X         int
	Y         int
	Width     int
	Height    int
	IsPrimary bool
}

// Contains reports whether the point lies inside the monitor's bounds.
func (m Monitor) Contains(x, y int) bool {
	return x >= m.X && x < m.X+m.Width && y >= m.Y && y < m.Y+m.Height
}

// Frame is one captured monitor image.
type Frame struct {
	MonitorID   int
	MonitorName string
	Image       image.Image
}

// Provider abstracts OS-level screen access. Capture may return a
// partial result when some monitors fail; it returns an error only
// when nothing could be captured.
type Provider interface {
	ListMonitors(ctx context.Context) ([]Monitor, error)
	Capture(ctx context.Context, monitors []Monitor) ([]Frame, error)
	CursorPosition(ctx context.Context) (x, y int, err error)
}

// WindowTitler is implemented by providers that can report the focused
// window's title. Optional; the scheduler probes for it.
type WindowTitler interface {
	ActiveWindowTitle(ctx context.Context) (string, error)
}

// SelectMonitors resolves the configured monitor mode to the set of
// monitors to capture this tick. specificID is only consulted in
// "specific" mode; active mode falls back to the default monitor when
// the pointer cannot be resolved to a monitor.
func SelectMonitors(ctx context.Context, p Provider, mode string, specificID *int) ([]Monitor, error) {
	monitors, err := p.ListMonitors(ctx)
	if err != nil {
		return nil, err
	}
	if len(monitors) == 0 {
		return nil, errors.NewCaptureFailed("no monitors detected")
	}

	switch mode {
	case MonitorModeAll:
		return monitors, nil

	case MonitorModeActive:
		x, y, err := p.CursorPosition(ctx)
		if err == nil {
			for _, m := range monitors {
				if m.Contains(x, y) {
					return []Monitor{m}, nil
				}
			}
		}
		return []Monitor{defaultMonitor(monitors)}, nil

	case MonitorModeSpecific:
		if specificID == nil {
			return nil, errors.NewInvalidRequest("capture_monitor_id is not set")
		}
		for _, m := range monitors {
			if m.ID == *specificID {
				return []Monitor{m}, nil
			}
		}
		return nil, errors.NewNotFound("monitor", strconv.Itoa(*specificID))

	default: // "default" or unset
		return []Monitor{defaultMonitor(monitors)}, nil
	}
}

func defaultMonitor(monitors []Monitor) Monitor {
	for _, m := range monitors {
		if m.IsPrimary {
			return m
		}
	}
	return monitors[0]
}
