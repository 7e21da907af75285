package analysis

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/capture"
	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
	"github.com/rfontain/glimpse/internal/phash"
)

// fakeProvider records every request and answers from a script.
type fakeProvider struct {
	mu       sync.Mutex
	requests []Request
	analyze  func(call int, req Request) (*Result, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Analyze(_ context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	f.mu.Unlock()
	return f.analyze(call, req)
}

func newTestOrchestrator(t *testing.T, provider Provider) (*Orchestrator, *sql.DB, *capture.StateTable) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	states := capture.NewStateTable()
	orch := NewOrchestrator(database, config.DefaultConfig(), states, t.TempDir())
	orch.ProviderFor = func(string) (Provider, error) { return provider, nil }
	return orch, database, states
}

func seedSession(t *testing.T, database *sql.DB) string {
	t.Helper()
	id, err := db.InsertSession(database, "2026-08-25T09:00:00", nil, nil)
	require.NoError(t, err)
	return id
}

func seedShot(t *testing.T, database *sql.DB, sessionID, group string, monitorID int, capturedAt string) activity.Screenshot {
	t.Helper()
	s := &activity.Screenshot{
		Filepath:   "screenshot_" + capturedAt + ".png",
		CapturedAt: capturedAt,
		MonitorID:  monitorID,
		SessionID:  &sessionID,
	}
	if group != "" {
		s.CaptureGroup = &group
	}
	id, err := db.InsertScreenshot(database, s)
	require.NoError(t, err)
	s.ID = id
	return *s
}

func result(title string, isNew bool) *Result {
	return &Result{
		TaskTitle:       title,
		TaskDescription: "desc of " + title,
		Category:        "coding",
		Reasoning:       "because",
		IsNewTask:       isNew,
	}
}

func TestRunEmptyInput(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeProvider{})
	count, err := orch.Run(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRunNewTaskThenContinuation(t *testing.T) {
	provider := &fakeProvider{analyze: func(call int, _ Request) (*Result, error) {
		return result("Write tests", call == 1), nil
	}}
	orch, database, _ := newTestOrchestrator(t, provider)
	sid := seedSession(t, database)

	shots := []activity.Screenshot{
		seedShot(t, database, sid, "2026-08-25T10:00:00", 0, "2026-08-25T10:00:00"),
		seedShot(t, database, sid, "2026-08-25T10:00:30", 0, "2026-08-25T10:00:30"),
	}

	count, err := orch.Run(context.Background(), shots, &sid, nil)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// One task: group 1 created it, group 2 linked to it as a
	// continuation.
	tasks, err := db.GetRecentTasks(database, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "Write tests", tasks[0].Title)
	require.Equal(t, "2026-08-25T10:00:00", tasks[0].StartedAt)

	remaining, err := db.GetUnanalyzedScreenshots(database, &sid, 0)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestRunCancellationBetweenGroups(t *testing.T) {
	var orch *Orchestrator
	provider := &fakeProvider{analyze: func(call int, _ Request) (*Result, error) {
		// Cancel while the first call is still in flight: it
		// completes, the remaining groups do not start.
		require.True(t, orch.Cancel())
		return result("First", true), nil
	}}
	var database *sql.DB
	orch, database, _ = newTestOrchestrator(t, provider)
	sid := seedSession(t, database)

	shots := []activity.Screenshot{
		seedShot(t, database, sid, "2026-08-25T10:00:00", 0, "2026-08-25T10:00:00"),
		seedShot(t, database, sid, "2026-08-25T10:00:30", 0, "2026-08-25T10:00:30"),
		seedShot(t, database, sid, "2026-08-25T10:01:00", 0, "2026-08-25T10:01:00"),
	}

	count, err := orch.Run(context.Background(), shots, &sid, nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, provider.requests, 1)

	// Groups 2 and 3 stay unanalyzed, eligible for a later pass.
	remaining, err := db.GetUnanalyzedScreenshots(database, &sid, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	require.False(t, orch.Analyzing())
}

func TestRunProviderFailureSkipsGroup(t *testing.T) {
	provider := &fakeProvider{analyze: func(call int, _ Request) (*Result, error) {
		if call == 1 {
			return nil, errors.NewProviderFailed("fake", "no luck")
		}
		return result("Second", true), nil
	}}
	orch, database, _ := newTestOrchestrator(t, provider)
	sid := seedSession(t, database)

	first := seedShot(t, database, sid, "2026-08-25T10:00:00", 0, "2026-08-25T10:00:00")
	seedShot(t, database, sid, "2026-08-25T10:00:30", 0, "2026-08-25T10:00:30")

	shots, err := db.GetUnanalyzedScreenshots(database, &sid, 0)
	require.NoError(t, err)

	count, err := orch.Run(context.Background(), shots, &sid, nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	remaining, err := db.GetUnanalyzedScreenshots(database, &sid, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, first.ID, remaining[0].ID)
}

func TestRunContextWindowEviction(t *testing.T) {
	provider := &fakeProvider{analyze: func(call int, _ Request) (*Result, error) {
		titles := []string{"One", "Two", "Three"}
		return result(titles[call-1], true), nil
	}}
	orch, database, _ := newTestOrchestrator(t, provider)
	sid := seedSession(t, database)

	shots := []activity.Screenshot{
		seedShot(t, database, sid, "2026-08-25T10:00:00", 0, "2026-08-25T10:00:00"),
		seedShot(t, database, sid, "2026-08-25T10:00:30", 0, "2026-08-25T10:00:30"),
		seedShot(t, database, sid, "2026-08-25T10:01:00", 0, "2026-08-25T10:01:00"),
	}

	count, err := orch.Run(context.Background(), shots, &sid, nil)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Len(t, provider.requests, 3)

	require.Empty(t, provider.requests[0].Context)
	require.Equal(t, []string{"One: desc of One"}, provider.requests[1].Context)
	// Capacity 2, most recent first: "One" is evicted on the third call's push.
	require.Equal(t, []string{"Two: desc of Two", "One: desc of One"}, provider.requests[2].Context)
}

func TestRunSeedsContextFromSessionTasks(t *testing.T) {
	provider := &fakeProvider{analyze: func(call int, _ Request) (*Result, error) {
		return result("New", true), nil
	}}
	orch, database, _ := newTestOrchestrator(t, provider)
	sid := seedSession(t, database)

	// Two already-analyzed groups give the session its task history.
	for i, title := range []string{"Old", "Recent"} {
		at := []string{"2026-08-25T09:10:00", "2026-08-25T09:20:00"}[i]
		shot := seedShot(t, database, sid, at, 0, at)
		desc := "desc of " + title
		taskID, err := db.InsertTask(database, &activity.Task{Title: title, Description: &desc, StartedAt: at})
		require.NoError(t, err)
		require.NoError(t, db.LinkTaskScreenshots(database, taskID, []string{shot.ID}))
	}

	shot := seedShot(t, database, sid, "2026-08-25T10:00:00", 0, "2026-08-25T10:00:00")
	count, err := orch.Run(context.Background(), []activity.Screenshot{shot}, &sid, nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.Equal(t, []string{"Recent: desc of Recent", "Old: desc of Old"}, provider.requests[0].Context)
}

func TestRunSummaryFanOutByName(t *testing.T) {
	provider := &fakeProvider{analyze: func(call int, _ Request) (*Result, error) {
		res := result("Task", true)
		res.MonitorSummaries = map[string]string{"DISPLAY": "spreadsheet open"}
		return res, nil
	}}
	orch, database, states := newTestOrchestrator(t, provider)
	sid := seedSession(t, database)

	// Two monitors share a display name; the name-keyed summary update
	// fans out to both.
	states.UpdateFingerprint(capture.Monitor{ID: 0, Name: "DISPLAY", Width: 1920, Height: 1080}, phash.Fingerprint{})
	states.UpdateFingerprint(capture.Monitor{ID: 1, Name: "DISPLAY", Width: 1920, Height: 1080}, phash.Fingerprint{})

	shot := seedShot(t, database, sid, "2026-08-25T10:00:00", 0, "2026-08-25T10:00:00")
	count, err := orch.Run(context.Background(), []activity.Screenshot{shot}, &sid, nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	snap := states.Snapshot()
	require.Equal(t, "spreadsheet open", snap[0].Summary)
	require.Equal(t, "spreadsheet open", snap[1].Summary)
}

func TestRunBuildsMultiMonitorRequest(t *testing.T) {
	provider := &fakeProvider{analyze: func(call int, _ Request) (*Result, error) {
		return result("Task", true), nil
	}}
	orch, database, states := newTestOrchestrator(t, provider)
	sid := seedSession(t, database)

	states.UpdateFingerprint(capture.Monitor{ID: 0, Name: "DP-1", Width: 2560, Height: 1440, IsPrimary: true}, phash.Fingerprint{})
	states.UpdateFingerprint(capture.Monitor{ID: 1, Name: "HDMI-1", Width: 1920, Height: 1080}, phash.Fingerprint{})
	states.UpdateSummaryByName("HDMI-1", "documentation")

	shot := seedShot(t, database, sid, "2026-08-25T10:00:00", 0, "2026-08-25T10:00:00")
	desc := "billing refactor"
	_, err := orch.Run(context.Background(), []activity.Screenshot{shot}, &sid, &desc)
	require.NoError(t, err)

	req := provider.requests[0]
	require.Len(t, req.Images, 1)
	require.Equal(t, "DP-1", req.Images[0].MonitorName)
	require.Equal(t, 2560, req.Images[0].Width)
	require.True(t, req.Images[0].Primary)
	require.Equal(t, []UnchangedMonitor{{Name: "HDMI-1", Summary: "documentation"}}, req.Unchanged)
	require.True(t, req.Multi())
	require.Equal(t, "billing refactor", *req.SessionDesc)
	require.Equal(t, ImageModeDownscale, req.ImageMode)
}

func TestRunUnknownProviderSetting(t *testing.T) {
	orch, database, _ := newTestOrchestrator(t, &fakeProvider{})
	orch.ProviderFor = func(name string) (Provider, error) { return NewProvider(name, config.DefaultConfig()) }
	require.NoError(t, db.SetSetting(database, activity.SettingAIProvider, "bogus"))

	sid := seedSession(t, database)
	shot := seedShot(t, database, sid, "2026-08-25T10:00:00", 0, "2026-08-25T10:00:00")

	_, err := orch.Run(context.Background(), []activity.Screenshot{shot}, &sid, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
