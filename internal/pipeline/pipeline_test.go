package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/analysis"
	"github.com/rfontain/glimpse/internal/capture"
	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
)

// fakeScreen is a capture provider that renders an alternating test
// pattern, so every tick registers as a change.
type fakeScreen struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeScreen) ListMonitors(context.Context) ([]capture.Monitor, error) {
	return []capture.Monitor{{ID: 0, Name: "TEST-1", Width: 64, Height: 48, IsPrimary: true}}, nil
}

func (f *fakeScreen) Capture(_ context.Context, _ []capture.Monitor) ([]capture.Frame, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return []capture.Frame{{MonitorID: 0, MonitorName: "TEST-1", Image: testPattern(n)}}, nil
}

func (f *fakeScreen) CursorPosition(context.Context) (int, int, error) { return 0, 0, nil }

// testPattern flips which half of the image is white on every call, a
// change far past the detection threshold.
func testPattern(n int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		c := color.RGBA{A: 255}
		if (y < 24) == (n%2 == 1) {
			c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
		}
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// stubAnalyzer answers instantly and records every request.
type stubAnalyzer struct {
	mu       sync.Mutex
	requests []analysis.Request
}

func (s *stubAnalyzer) Name() string { return "stub" }

func (s *stubAnalyzer) Analyze(_ context.Context, req analysis.Request) (*analysis.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	n := len(s.requests)
	s.mu.Unlock()
	return &analysis.Result{
		TaskTitle:       fmt.Sprintf("Task %d", n),
		TaskDescription: "working",
		Category:        "coding",
		Reasoning:       "test pattern",
		IsNewTask:       n == 1,
	}, nil
}

func (s *stubAnalyzer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubAnalyzer) snapshot() []analysis.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]analysis.Request(nil), s.requests...)
}

func newTestController(t *testing.T) (*Controller, *sql.DB, *stubAnalyzer, string) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	shotsDir := t.TempDir()
	stub := &stubAnalyzer{}
	ctrl := NewController(database, config.DefaultConfig(), &fakeScreen{}, shotsDir)
	ctrl.Orchestrator().ProviderFor = func(string) (analysis.Provider, error) { return stub, nil }

	// One-second ticks keep the loop tests fast.
	require.NoError(t, db.SetSetting(database, activity.SettingCaptureInterval, "1"))
	return ctrl, database, stub, shotsDir
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctrl, database, stub, shotsDir := newTestController(t)

	desc := "writing unit tests"
	id, err := ctrl.StartSession(&desc, nil)
	require.NoError(t, err)
	require.True(t, ctrl.Capturing())

	_, err = ctrl.StartSession(nil, nil)
	require.True(t, errors.Is(err, errors.ErrConflict), "second start should conflict, got %v", err)

	waitFor(t, 15*time.Second, func() bool {
		shots, err := db.GetUnanalyzedScreenshots(database, &id, 0)
		require.NoError(t, err)
		return len(shots) >= 3
	})

	stoppedID, analyzed, err := ctrl.StopSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, stoppedID)
	require.GreaterOrEqual(t, analyzed, 3)
	require.False(t, ctrl.Capturing())

	session, err := db.GetSession(database, id)
	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)
	require.Zero(t, session.UnanalyzedCount)

	// Default batch mode never fired mid-capture, so the sweep did all
	// the work and the session description reached the provider.
	requests := stub.snapshot()
	require.Len(t, requests, analyzed)
	require.NotNil(t, requests[0].SessionDesc)
	require.Equal(t, desc, *requests[0].SessionDesc)

	// One new task, every later group linked as a continuation.
	tasks, err := db.GetTasksForSession(database, id)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "Task 1", tasks[0].Title)

	entries, err := os.ReadDir(shotsDir)
	require.NoError(t, err)
	require.Equal(t, session.ScreenshotCount, len(entries))
}

func TestRealtimeModeAnalyzesDuringCapture(t *testing.T) {
	ctrl, database, stub, _ := newTestController(t)
	require.NoError(t, db.SetSetting(database, activity.SettingAnalysisMode, "realtime"))

	_, err := ctrl.StartSession(nil, nil)
	require.NoError(t, err)

	// The first saved screenshot should trigger a pass on its own,
	// before any stop-time sweep.
	waitFor(t, 15*time.Second, func() bool { return stub.count() >= 1 })

	id, _, err := ctrl.StopSession(context.Background())
	require.NoError(t, err)

	remaining, err := db.GetUnanalyzedScreenshots(database, &id, 0)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestStopWithoutSession(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)
	_, _, err := ctrl.StopSession(context.Background())
	require.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)
}

func TestStartConflictsWithStaleOpenSession(t *testing.T) {
	ctrl, database, _, _ := newTestController(t)

	// Simulate a crashed run: an open session row with no loop attached.
	_, err := db.InsertSession(database, "2026-08-25T08:00:00", nil, nil)
	require.NoError(t, err)

	_, err = ctrl.StartSession(nil, nil)
	require.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)
}

func TestCancelAnalysisWhenIdle(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)
	require.False(t, ctrl.CancelAnalysis())
}

func TestAnalyzeNothingPending(t *testing.T) {
	ctrl, _, stub, _ := newTestController(t)

	count, err := ctrl.Analyze(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, stub.count())
}

func TestAnalyzeUnknownSession(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)

	bogus := "01JZZZZZZZZZZZZZZZZZZZZZZZ"
	_, err := ctrl.Analyze(context.Background(), &bogus, 0)
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestStatusIdle(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)

	st := ctrl.Status()
	require.False(t, st.Capturing)
	require.Nil(t, st.SessionID)
	require.False(t, st.Analyzing)
	require.Nil(t, st.AnalyzingSession)
}
