package capture

import (
	"context"
	"database/sql"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/phash"
)

// DefaultChangeThreshold is the Hamming distance at or above which two
// consecutive fingerprints of the same monitor count as a change. The
// first capture of a monitor in a session is always a change.
const DefaultChangeThreshold = 10

// DefaultIntervalSecs is the tick interval used when the
// capture_interval_secs setting is unset or unparseable.
const DefaultIntervalSecs = 30

// Scheduler runs the capture loop for one session: each tick it
// captures the selected monitors, detects changes against the state
// table, persists changed frames, and hands the tick's save count to
// the afterTick hook. Settings are re-read every tick so mode and
// interval changes apply without a restart.
type Scheduler struct {
	db        *sql.DB
	provider  Provider
	states    *StateTable
	shotsDir  string
	afterTick func(ctx context.Context, saved int)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewScheduler wires a capture loop. afterTick may be nil; when set it
// runs after every tick that saved at least one screenshot.
func NewScheduler(database *sql.DB, provider Provider, states *StateTable, screenshotsDir string, afterTick func(ctx context.Context, saved int)) *Scheduler {
	return &Scheduler{
		db:        database,
		provider:  provider,
		states:    states,
		shotsDir:  screenshotsDir,
		afterTick: afterTick,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Run loops until ctx is canceled. The interval is read fresh before
// each sleep, so setting changes take effect on the next tick.
func (s *Scheduler) Run(ctx context.Context, sessionID string) {
	for {
		if ctx.Err() != nil {
			return
		}
		saved := s.Tick(ctx, sessionID)
		if saved > 0 && s.afterTick != nil {
			s.afterTick(ctx, saved)
		}
		if !s.sleep(ctx, s.interval()) {
			return
		}
	}
}

// Tick captures the selected monitors once and persists every frame
// judged changed. Returns the number of screenshots saved. Capture
// failures skip the tick; they never end the loop.
func (s *Scheduler) Tick(ctx context.Context, sessionID string) int {
	monitors, err := s.selectedMonitors(ctx)
	if err != nil {
		log.Printf("capture: monitor selection failed: %v", err)
		return 0
	}

	frames, err := s.provider.Capture(ctx, monitors)
	if err != nil {
		log.Printf("capture: tick failed: %v", err)
		return 0
	}

	byID := make(map[int]Monitor, len(monitors))
	for _, m := range monitors {
		byID[m.ID] = m
	}

	tickTime := s.now()
	multi := len(frames) > 1
	var groupKey *string
	if multi {
		key := activity.FormatTime(tickTime)
		groupKey = &key
	}

	windowTitle := s.windowTitle(ctx)

	saved := 0
	for _, frame := range frames {
		fp := phash.Hash(frame.Image)

		changed := true
		if last, ok := s.states.Fingerprint(frame.MonitorID); ok {
			changed = phash.Distance(fp, last) >= DefaultChangeThreshold
		}

		if changed {
			if err := s.persistFrame(frame, tickTime, sessionID, groupKey, windowTitle, multi); err != nil {
				log.Printf("capture: persist monitor %d failed: %v", frame.MonitorID, err)
			} else {
				saved++
			}
		}

		// Fingerprint advances every tick, changed or not
		meta, ok := byID[frame.MonitorID]
		if !ok {
			meta = Monitor{ID: frame.MonitorID, Name: frame.MonitorName}
		}
		s.states.UpdateFingerprint(meta, fp)
	}
	return saved
}

func (s *Scheduler) selectedMonitors(ctx context.Context) ([]Monitor, error) {
	mode, err := db.GetSettingOr(s.db, activity.SettingCaptureMonitorMode, MonitorModeDefault)
	if err != nil {
		return nil, err
	}

	var specificID *int
	raw, ok, err := db.GetSetting(s.db, activity.SettingCaptureMonitorID)
	if err != nil {
		return nil, err
	}
	if ok {
		if id, convErr := strconv.Atoi(raw); convErr == nil {
			specificID = &id
		}
	}

	return SelectMonitors(ctx, s.provider, mode, specificID)
}

func (s *Scheduler) interval() time.Duration {
	raw, err := db.GetSettingOr(s.db, activity.SettingCaptureInterval, "")
	if err == nil && raw != "" {
		if secs, convErr := strconv.Atoi(raw); convErr == nil && secs >= 1 {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultIntervalSecs * time.Second
}

func (s *Scheduler) windowTitle(ctx context.Context) *string {
	wt, ok := s.provider.(WindowTitler)
	if !ok {
		return nil
	}
	title, err := wt.ActiveWindowTitle(ctx)
	if err != nil || title == "" {
		return nil
	}
	return &title
}

// persistFrame writes the PNG under the screenshots root and inserts
// the row with a path relative to that root. A failed insert removes
// the file again so disk and store stay consistent.
func (s *Scheduler) persistFrame(frame Frame, tickTime time.Time, sessionID string, groupKey, windowTitle *string, multi bool) error {
	filename := screenshotFilename(tickTime, frame.MonitorID, multi)
	path := filepath.Join(s.shotsDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame.Image); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	_, err = db.InsertScreenshot(s.db, &activity.Screenshot{
		Filepath:     filename,
		CapturedAt:   activity.FormatTime(tickTime),
		WindowTitle:  windowTitle,
		MonitorID:    frame.MonitorID,
		SessionID:    &sessionID,
		CaptureGroup: groupKey,
	})
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func screenshotFilename(t time.Time, monitorID int, multi bool) string {
	ts := t.Format(activity.FileTimeLayout)
	if multi {
		return fmt.Sprintf("screenshot_%s_mon%d.png", ts, monitorID)
	}
	return "screenshot_" + ts + ".png"
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
