package capture

import (
	"context"
	"database/sql"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/db"
)

// halfPattern renders a half-white frame; inverting it flips which half
// is lit, a change far past the detection threshold.
func halfPattern(invert bool) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		c := color.RGBA{A: 255}
		if (y < 24) != invert {
			c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
		}
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// newTestScheduler wires a scheduler against a temp store with a fixed
// clock that advances 30 seconds per tick.
func newTestScheduler(t *testing.T, provider Provider, afterTick func(ctx context.Context, saved int)) (*Scheduler, *sql.DB, string, string) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	shotsDir := t.TempDir()
	sched := NewScheduler(database, provider, NewStateTable(), shotsDir, afterTick)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local)
	ticks := 0
	sched.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 30 * time.Second)
	}

	sessionID, err := db.InsertSession(database, "2026-08-25T09:59:00", nil, nil)
	if err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
	return sched, database, shotsDir, sessionID
}

func TestSchedulerTick_FirstCaptureSaves(t *testing.T) {
	p := &fakeProvider{
		monitors: []Monitor{{ID: 0, Name: "TEST-1", Width: 64, Height: 48, IsPrimary: true}},
		frames:   []Frame{{MonitorID: 0, MonitorName: "TEST-1", Image: halfPattern(false)}},
	}
	sched, database, shotsDir, sess := newTestScheduler(t, p, nil)

	if saved := sched.Tick(context.Background(), sess); saved != 1 {
		t.Fatalf("first Tick saved %d, want 1", saved)
	}

	shots, err := db.GetUnanalyzedScreenshots(database, &sess, 0)
	if err != nil {
		t.Fatalf("GetUnanalyzedScreenshots failed: %v", err)
	}
	if len(shots) != 1 {
		t.Fatalf("got %d rows, want 1", len(shots))
	}
	shot := shots[0]
	if shot.CaptureGroup != nil {
		t.Errorf("CaptureGroup = %q, want nil on a single-monitor tick", *shot.CaptureGroup)
	}
	if shot.CapturedAt != "2026-08-25T10:00:30" {
		t.Errorf("CapturedAt = %q, want the tick time", shot.CapturedAt)
	}
	if !strings.HasPrefix(shot.Filepath, "screenshot_") || strings.Contains(shot.Filepath, "_mon") {
		t.Errorf("Filepath = %q, want single-monitor naming", shot.Filepath)
	}
	if _, err := os.Stat(filepath.Join(shotsDir, shot.Filepath)); err != nil {
		t.Errorf("image file missing: %v", err)
	}
}

func TestSchedulerTick_UnchangedFrameSkipped(t *testing.T) {
	p := &fakeProvider{
		monitors: []Monitor{{ID: 0, Name: "TEST-1", Width: 64, Height: 48, IsPrimary: true}},
		frames:   []Frame{{MonitorID: 0, MonitorName: "TEST-1", Image: halfPattern(false)}},
	}
	sched, database, _, sess := newTestScheduler(t, p, nil)

	if saved := sched.Tick(context.Background(), sess); saved != 1 {
		t.Fatalf("first Tick saved %d, want 1", saved)
	}
	if saved := sched.Tick(context.Background(), sess); saved != 0 {
		t.Errorf("identical frame saved %d, want 0", saved)
	}

	// The screen flips: the next tick registers as a change again.
	p.frames = []Frame{{MonitorID: 0, MonitorName: "TEST-1", Image: halfPattern(true)}}
	if saved := sched.Tick(context.Background(), sess); saved != 1 {
		t.Errorf("inverted frame saved %d, want 1", saved)
	}

	shots, err := db.GetUnanalyzedScreenshots(database, &sess, 0)
	if err != nil {
		t.Fatalf("GetUnanalyzedScreenshots failed: %v", err)
	}
	if len(shots) != 2 {
		t.Errorf("got %d rows after three ticks, want 2", len(shots))
	}
}

func TestSchedulerTick_MultiMonitorSharesGroupKey(t *testing.T) {
	p := &fakeProvider{
		monitors: []Monitor{
			{ID: 0, Name: "DP-1", Width: 64, Height: 48, IsPrimary: true},
			{ID: 1, Name: "HDMI-1", Width: 64, Height: 48},
		},
		frames: []Frame{
			{MonitorID: 0, MonitorName: "DP-1", Image: halfPattern(false)},
			{MonitorID: 1, MonitorName: "HDMI-1", Image: halfPattern(true)},
		},
	}
	sched, database, _, sess := newTestScheduler(t, p, nil)
	if err := db.SetSetting(database, activity.SettingCaptureMonitorMode, MonitorModeAll); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	if saved := sched.Tick(context.Background(), sess); saved != 2 {
		t.Fatalf("Tick saved %d, want 2", saved)
	}

	shots, err := db.GetUnanalyzedScreenshots(database, &sess, 0)
	if err != nil {
		t.Fatalf("GetUnanalyzedScreenshots failed: %v", err)
	}
	if len(shots) != 2 {
		t.Fatalf("got %d rows, want 2", len(shots))
	}
	if shots[0].CaptureGroup == nil || shots[1].CaptureGroup == nil {
		t.Fatal("multi-monitor rows must carry a group key")
	}
	if *shots[0].CaptureGroup != *shots[1].CaptureGroup {
		t.Errorf("group keys differ: %q vs %q", *shots[0].CaptureGroup, *shots[1].CaptureGroup)
	}
	if *shots[0].CaptureGroup != "2026-08-25T10:00:30" {
		t.Errorf("group key = %q, want the tick time", *shots[0].CaptureGroup)
	}
	for _, s := range shots {
		if !strings.Contains(s.Filepath, "_mon") {
			t.Errorf("Filepath = %q, want per-monitor naming", s.Filepath)
		}
	}
}

func TestSchedulerTick_CaptureFailure(t *testing.T) {
	// No frames configured: every capture attempt fails.
	p := &fakeProvider{monitors: twoMonitors()}
	sched, database, _, sess := newTestScheduler(t, p, nil)

	if saved := sched.Tick(context.Background(), sess); saved != 0 {
		t.Errorf("failed tick saved %d, want 0", saved)
	}
	shots, err := db.GetUnanalyzedScreenshots(database, &sess, 0)
	if err != nil {
		t.Fatalf("GetUnanalyzedScreenshots failed: %v", err)
	}
	if len(shots) != 0 {
		t.Errorf("got %d rows after a failed tick, want 0", len(shots))
	}
}

type titledProvider struct {
	fakeProvider
	title string
}

func (p *titledProvider) ActiveWindowTitle(context.Context) (string, error) {
	return p.title, nil
}

func TestSchedulerTick_WindowTitle(t *testing.T) {
	p := &titledProvider{
		fakeProvider: fakeProvider{
			monitors: []Monitor{{ID: 0, Name: "TEST-1", Width: 64, Height: 48, IsPrimary: true}},
			frames:   []Frame{{MonitorID: 0, MonitorName: "TEST-1", Image: halfPattern(false)}},
		},
		title: "editor - main.go",
	}
	sched, database, _, sess := newTestScheduler(t, p, nil)

	if saved := sched.Tick(context.Background(), sess); saved != 1 {
		t.Fatalf("Tick saved %d, want 1", saved)
	}
	shots, err := db.GetUnanalyzedScreenshots(database, &sess, 0)
	if err != nil {
		t.Fatalf("GetUnanalyzedScreenshots failed: %v", err)
	}
	if shots[0].WindowTitle == nil || *shots[0].WindowTitle != "editor - main.go" {
		t.Errorf("WindowTitle = %v, want the provider's title", shots[0].WindowTitle)
	}
}

func TestSchedulerInterval(t *testing.T) {
	p := &fakeProvider{}
	sched, database, _, _ := newTestScheduler(t, p, nil)

	if got := sched.interval(); got != DefaultIntervalSecs*time.Second {
		t.Errorf("interval = %v, want default %ds", got, DefaultIntervalSecs)
	}

	if err := db.SetSetting(database, activity.SettingCaptureInterval, "5"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if got := sched.interval(); got != 5*time.Second {
		t.Errorf("interval = %v, want 5s", got)
	}

	// Unparseable and out-of-range values fall back to the default.
	for _, bad := range []string{"soon", "0", "-3"} {
		if err := db.SetSetting(database, activity.SettingCaptureInterval, bad); err != nil {
			t.Fatalf("SetSetting failed: %v", err)
		}
		if got := sched.interval(); got != DefaultIntervalSecs*time.Second {
			t.Errorf("interval(%q) = %v, want default", bad, got)
		}
	}
}

func TestSchedulerRun_AfterTickAndStop(t *testing.T) {
	p := &fakeProvider{
		monitors: []Monitor{{ID: 0, Name: "TEST-1", Width: 64, Height: 48, IsPrimary: true}},
		frames:   []Frame{{MonitorID: 0, MonitorName: "TEST-1", Image: halfPattern(false)}},
	}

	var calls []int
	sched, _, _, sess := newTestScheduler(t, p, func(_ context.Context, saved int) {
		calls = append(calls, saved)
	})

	ctx, cancel := context.WithCancel(context.Background())
	var slept time.Duration
	sched.sleep = func(_ context.Context, d time.Duration) bool {
		slept = d
		cancel()
		return false
	}

	sched.Run(ctx, sess)

	if len(calls) != 1 || calls[0] != 1 {
		t.Errorf("afterTick calls = %v, want one call with 1 save", calls)
	}
	if slept != DefaultIntervalSecs*time.Second {
		t.Errorf("slept %v, want the default interval", slept)
	}
	if p.captures != 1 {
		t.Errorf("captures = %d, want 1 before stop", p.captures)
	}
}
