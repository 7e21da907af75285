package capture

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/rfontain/glimpse/internal/errors"
)

const (
	grabScreencapture = "screencapture"
	grabGrim          = "grim"
	grabImport        = "import"
	grabGnome         = "gnome-screenshot"
	grabScrot         = "scrot"
)

// ExecProvider captures screens by shelling out to the platform's
// screenshot tooling: screencapture on macOS, grim on Wayland,
// ImageMagick's import on X11, with gnome-screenshot and scrot as
// whole-screen fallbacks. Monitor geometry comes from xrandr where
// available; without it a single unnamed display is assumed. Cursor
// position and window titles come from xdotool (osascript on macOS).
type ExecProvider struct {
	goos        string
	xrandr      string
	xdotool     string
	osascript   string
	grabber     string
	grabberKind string
}

func NewExecProvider() *ExecProvider {
	p := &ExecProvider{goos: runtime.GOOS}
	p.xrandr, _ = exec.LookPath("xrandr")
	p.xdotool, _ = exec.LookPath("xdotool")
	p.osascript, _ = exec.LookPath("osascript")

	if p.goos == "darwin" {
		if path, err := exec.LookPath(grabScreencapture); err == nil {
			p.grabber, p.grabberKind = path, grabScreencapture
			return p
		}
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if path, err := exec.LookPath(grabGrim); err == nil {
			p.grabber, p.grabberKind = path, grabGrim
			return p
		}
	}
	for _, kind := range []string{grabImport, grabGnome, grabScrot} {
		if path, err := exec.LookPath(kind); err == nil {
			p.grabber, p.grabberKind = path, kind
			return p
		}
	}
	if path, err := exec.LookPath(grabGrim); err == nil {
		p.grabber, p.grabberKind = path, grabGrim
	}
	return p
}

// Available reports whether a capture tool was found on this host.
func (p *ExecProvider) Available() bool {
	return p.grabberKind != ""
}

func (p *ExecProvider) ListMonitors(ctx context.Context) ([]Monitor, error) {
	if p.xrandr != "" {
		out, err := exec.CommandContext(ctx, p.xrandr, "--listmonitors").Output()
		if err == nil {
			if monitors := parseXrandrMonitors(string(out)); len(monitors) > 0 {
				return monitors, nil
			}
		}
	}
	// No enumeration source; assume a single primary display
	return []Monitor{{ID: 0, Name: "Display 1", IsPrimary: true}}, nil
}

func (p *ExecProvider) CursorPosition(ctx context.Context) (int, int, error) {
	if p.xdotool == "" {
		return 0, 0, errors.NewCaptureFailed("xdotool not available for cursor lookup")
	}
	out, err := exec.CommandContext(ctx, p.xdotool, "getmouselocation", "--shell").Output()
	if err != nil {
		return 0, 0, errors.NewCaptureFailed("cursor lookup failed: " + err.Error())
	}
	x, y, ok := parseMouseLocation(string(out))
	if !ok {
		return 0, 0, errors.NewCaptureFailed("could not parse cursor position")
	}
	return x, y, nil
}

// ActiveWindowTitle implements WindowTitler.
func (p *ExecProvider) ActiveWindowTitle(ctx context.Context) (string, error) {
	if p.goos == "darwin" && p.osascript != "" {
		out, err := exec.CommandContext(ctx, p.osascript, "-e",
			`tell application "System Events" to get name of first process whose frontmost is true`).Output()
		if err != nil {
			return "", errors.NewCaptureFailed("window title lookup failed: " + err.Error())
		}
		return strings.TrimSpace(string(out)), nil
	}
	if p.xdotool == "" {
		return "", errors.NewCaptureFailed("xdotool not available for window title lookup")
	}
	out, err := exec.CommandContext(ctx, p.xdotool, "getactivewindow", "getwindowname").Output()
	if err != nil {
		return "", errors.NewCaptureFailed("window title lookup failed: " + err.Error())
	}
	return strings.TrimSpace(string(out)), nil
}

func (p *ExecProvider) Capture(ctx context.Context, monitors []Monitor) ([]Frame, error) {
	if len(monitors) == 0 {
		return nil, errors.NewCaptureFailed("no monitors requested")
	}

	switch p.grabberKind {
	case grabScreencapture:
		return p.captureScreencapture(ctx, monitors)
	case grabGrim:
		return p.captureGrim(ctx, monitors)
	case grabImport, grabGnome, grabScrot:
		return p.captureAndCrop(ctx, monitors)
	default:
		return nil, errors.NewCaptureFailed(
			"no screenshot tool found (tried screencapture, grim, import, gnome-screenshot, scrot)")
	}
}

// captureScreencapture shoots each display separately; screencapture
// numbers displays from 1 in enumeration order.
func (p *ExecProvider) captureScreencapture(ctx context.Context, monitors []Monitor) ([]Frame, error) {
	var frames []Frame
	for _, m := range monitors {
		tmp, err := os.CreateTemp("", "glimpse-*.png")
		if err != nil {
			return nil, errors.NewCaptureFailed("temp file: " + err.Error())
		}
		tmp.Close()

		cmd := exec.CommandContext(ctx, p.grabber, "-x", "-D", strconv.Itoa(m.ID+1), tmp.Name())
		if err := cmd.Run(); err != nil {
			log.Printf("capture: monitor %d (%s) failed: %v", m.ID, m.Name, err)
			os.Remove(tmp.Name())
			continue
		}
		img, err := decodePNGFile(tmp.Name())
		os.Remove(tmp.Name())
		if err != nil {
			log.Printf("capture: monitor %d (%s) decode failed: %v", m.ID, m.Name, err)
			continue
		}
		frames = append(frames, Frame{MonitorID: m.ID, MonitorName: m.Name, Image: img})
	}
	if len(frames) == 0 {
		return nil, errors.NewCaptureFailed("all monitor captures failed")
	}
	return frames, nil
}

// captureGrim shoots each Wayland output by name, or the whole desktop
// when the output name is unknown.
func (p *ExecProvider) captureGrim(ctx context.Context, monitors []Monitor) ([]Frame, error) {
	var frames []Frame
	for _, m := range monitors {
		args := []string{"-"}
		if m.Name != "" && m.Name != "Display 1" {
			args = []string{"-o", m.Name, "-"}
		}
		out, err := exec.CommandContext(ctx, p.grabber, args...).Output()
		if err != nil {
			log.Printf("capture: monitor %d (%s) failed: %v", m.ID, m.Name, err)
			continue
		}
		img, err := png.Decode(bytes.NewReader(out))
		if err != nil {
			log.Printf("capture: monitor %d (%s) decode failed: %v", m.ID, m.Name, err)
			continue
		}
		frames = append(frames, Frame{MonitorID: m.ID, MonitorName: m.Name, Image: img})
	}
	if len(frames) == 0 {
		return nil, errors.NewCaptureFailed("all monitor captures failed")
	}
	return frames, nil
}

// captureAndCrop takes one whole-desktop shot and crops each monitor's
// rectangle out of it. Used for tools that cannot target one display.
func (p *ExecProvider) captureAndCrop(ctx context.Context, monitors []Monitor) ([]Frame, error) {
	full, err := p.captureFullScreen(ctx)
	if err != nil {
		return nil, err
	}

	frames := make([]Frame, 0, len(monitors))
	for _, m := range monitors {
		frames = append(frames, Frame{
			MonitorID:   m.ID,
			MonitorName: m.Name,
			Image:       cropMonitor(full, m),
		})
	}
	return frames, nil
}

func (p *ExecProvider) captureFullScreen(ctx context.Context) (image.Image, error) {
	switch p.grabberKind {
	case grabImport:
		out, err := exec.CommandContext(ctx, p.grabber, "-window", "root", "-silent", "png:-").Output()
		if err != nil {
			return nil, errors.NewCaptureFailed("screen capture failed: " + err.Error())
		}
		img, err := png.Decode(bytes.NewReader(out))
		if err != nil {
			return nil, errors.NewCaptureFailed("screenshot decode failed: " + err.Error())
		}
		return img, nil

	default: // gnome-screenshot, scrot: file output only
		tmp, err := os.CreateTemp("", "glimpse-*.png")
		if err != nil {
			return nil, errors.NewCaptureFailed("temp file: " + err.Error())
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		var cmd *exec.Cmd
		if p.grabberKind == grabGnome {
			cmd = exec.CommandContext(ctx, p.grabber, "-f", tmp.Name())
		} else {
			cmd = exec.CommandContext(ctx, p.grabber, "-o", tmp.Name())
		}
		if err := cmd.Run(); err != nil {
			return nil, errors.NewCaptureFailed("screen capture failed: " + err.Error())
		}
		img, err := decodePNGFile(tmp.Name())
		if err != nil {
			return nil, errors.NewCaptureFailed("screenshot decode failed: " + err.Error())
		}
		return img, nil
	}
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropMonitor cuts a monitor's rectangle out of a whole-desktop image.
// Falls back to the full image when geometry is unknown or the crop
// would be empty.
func cropMonitor(img image.Image, m Monitor) image.Image {
	if m.Width <= 0 || m.Height <= 0 {
		return img
	}
	rect := image.Rect(m.X, m.Y, m.X+m.Width, m.Y+m.Height).Intersect(img.Bounds())
	if rect.Empty() {
		return img
	}
	si, ok := img.(subImager)
	if !ok {
		return img
	}
	return si.SubImage(rect)
}

func decodePNGFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(data))
}

// parseXrandrMonitors reads `xrandr --listmonitors` output:
//
//	Monitors: 2
//	 0: +*eDP-1 1920/344x1080/194+0+0  eDP-1
//	 1: +HDMI-1 2560/597x1440/336+1920+0  HDMI-1
func parseXrandrMonitors(out string) []Monitor {
	var monitors []Monitor
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 3 || !strings.HasSuffix(fields[0], ":") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(fields[0], ":"))
		if err != nil {
			continue
		}
		m, ok := parseXrandrGeometry(fields[2])
		if !ok {
			continue
		}
		m.ID = id
		m.IsPrimary = strings.Contains(fields[1], "*")
		m.Name = fields[len(fields)-1]
		monitors = append(monitors, m)
	}
	return monitors
}

// parseXrandrGeometry reads "1920/344x1080/194+1920+0" (pixels/mm on
// each axis, then the offset).
func parseXrandrGeometry(geom string) (Monitor, bool) {
	parts := strings.Split(geom, "+")
	if len(parts) != 3 {
		return Monitor{}, false
	}
	x, errX := strconv.Atoi(parts[1])
	y, errY := strconv.Atoi(parts[2])
	dims := strings.SplitN(parts[0], "x", 2)
	if len(dims) != 2 || errX != nil || errY != nil {
		return Monitor{}, false
	}
	w, errW := strconv.Atoi(strings.SplitN(dims[0], "/", 2)[0])
	h, errH := strconv.Atoi(strings.SplitN(dims[1], "/", 2)[0])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return Monitor{}, false
	}
	return Monitor{X: x, Y: y, Width: w, Height: h}, true
}

// parseMouseLocation reads `xdotool getmouselocation --shell` output
// (X=123 / Y=456 lines).
func parseMouseLocation(out string) (int, int, bool) {
	x, y := 0, 0
	seenX, seenY := false, false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "X="); ok {
			if n, err := strconv.Atoi(v); err == nil {
				x, seenX = n, true
			}
		}
		if v, ok := strings.CutPrefix(line, "Y="); ok {
			if n, err := strconv.Atoi(v); err == nil {
				y, seenY = n, true
			}
		}
	}
	return x, y, seenX && seenY
}
