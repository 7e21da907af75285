// Package pipeline ties capture and analysis together: it owns the
// session lifecycle, decides after each tick whether an analysis pass
// should fire, and runs the catch-up sweep when a session ends.
package pipeline

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/analysis"
	"github.com/rfontain/glimpse/internal/capture"
	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
)

// Controller coordinates one capture loop and the analysis passes it
// triggers. All methods are safe for concurrent use.
type Controller struct {
	db       *sql.DB
	cfg      *config.Config
	provider capture.Provider
	states   *capture.StateTable
	orch     *analysis.Orchestrator
	shotsDir string

	savedCount atomic.Int64

	mu        sync.Mutex
	capturing bool
	session   string
	desc      *string
	stop      context.CancelFunc
	done      chan struct{}

	// passes tracks triggered analysis goroutines so StopSession can
	// wait them out before the final sweep.
	passes sync.WaitGroup
}

// Status is a point-in-time snapshot of the pipeline.
type Status struct {
	Capturing        bool    `json:"capturing"`
	SessionID        *string `json:"session_id,omitempty"`
	SavedCount       int64   `json:"saved_count"`
	Analyzing        bool    `json:"analyzing"`
	AnalyzingSession *string `json:"analyzing_session,omitempty"`
}

func NewController(database *sql.DB, cfg *config.Config, provider capture.Provider, screenshotsDir string) *Controller {
	states := capture.NewStateTable()
	return &Controller{
		db:       database,
		cfg:      cfg,
		provider: provider,
		states:   states,
		orch:     analysis.NewOrchestrator(database, cfg, states, screenshotsDir),
		shotsDir: screenshotsDir,
	}
}

// Orchestrator exposes the analysis orchestrator for manual triggers
// and cancellation.
func (c *Controller) Orchestrator() *analysis.Orchestrator { return c.orch }

// StartSession opens a session row and starts the capture loop on its
// own goroutine. It conflicts when this process is already capturing
// and when an open session row exists, even one left behind by a
// crashed run; the caller has to delete the stale session first.
func (c *Controller) StartSession(description, title *string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return "", errors.NewConflict("a capture session is already running: " + c.session)
	}
	if open, err := db.GetOpenSession(c.db); err == nil {
		return "", errors.NewConflict("a capture session is already open: " + open.ID)
	} else if !errors.Is(err, errors.ErrNotFound) {
		return "", err
	}

	id, err := db.InsertSession(c.db, activity.FormatTime(time.Now()), description, title)
	if err != nil {
		return "", err
	}

	c.states.Clear()
	c.savedCount.Store(0)

	// The loop runs on a background context; it must outlive the
	// caller and stops only through StopSession.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sched := capture.NewScheduler(c.db, c.provider, c.states, c.shotsDir, c.afterTick)
	go func() {
		defer close(done)
		sched.Run(ctx, id)
	}()

	c.capturing = true
	c.session = id
	c.desc = description
	c.stop = cancel
	c.done = done

	log.Printf("capture: session %s started", id)
	return id, nil
}

// StopSession stops the capture loop, ends the session row, and runs
// an unbounded analysis sweep over whatever the session left
// unanalyzed. The sweep waits for in-flight triggered passes first so
// it only sees the groups they did not take. Returns the session id
// and the number of groups the sweep analyzed.
func (c *Controller) StopSession(ctx context.Context) (string, int, error) {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return "", 0, errors.NewConflict("no capture session is running")
	}
	id, desc, stop, done := c.session, c.desc, c.stop, c.done
	c.capturing = false
	c.session = ""
	c.desc = nil
	c.stop = nil
	c.done = nil
	c.mu.Unlock()

	stop()
	<-done
	c.passes.Wait()

	if err := db.EndSession(c.db, id, activity.FormatTime(time.Now())); err != nil {
		return id, 0, err
	}
	log.Printf("capture: session %s stopped after %d screenshots", id, c.savedCount.Load())

	analyzed, err := c.analyzeSession(ctx, id, desc, 0)
	return id, analyzed, err
}

// Capturing reports whether a capture loop is running in this process.
func (c *Controller) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Session returns the running session id, if any.
func (c *Controller) Session() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.capturing
}

// Status snapshots capture and analysis state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{Capturing: c.capturing}
	if c.capturing {
		id := c.session
		st.SessionID = &id
		st.SavedCount = c.savedCount.Load()
	}
	c.mu.Unlock()

	st.Analyzing = c.orch.Analyzing()
	if sid := c.orch.AnalyzingSession(); sid != "" {
		st.AnalyzingSession = &sid
	}
	return st
}

// CancelAnalysis requests cancellation of the in-flight analysis pass.
// Returns false when none is running.
func (c *Controller) CancelAnalysis() bool { return c.orch.Cancel() }

// Analyze runs a manual analysis pass, optionally scoped to one
// session. limit 0 means no limit. Returns the number of capture
// groups analyzed.
func (c *Controller) Analyze(ctx context.Context, sessionID *string, limit int) (int, error) {
	var desc *string
	if sessionID != nil {
		session, err := db.GetSession(c.db, *sessionID)
		if err != nil {
			return 0, err
		}
		desc = session.Description
	}

	shots, err := db.GetUnanalyzedScreenshots(c.db, sessionID, limit)
	if err != nil {
		return 0, err
	}
	if len(shots) == 0 {
		return 0, nil
	}
	return c.orch.Run(ctx, shots, sessionID, desc)
}

// afterTick is the scheduler hook: it accumulates the session's save
// count and fires an analysis pass when the configured mode says so.
// The tick context is not used; a triggered pass must survive the
// capture loop shutting down mid-pass.
func (c *Controller) afterTick(_ context.Context, saved int) {
	total := c.savedCount.Add(int64(saved))

	c.mu.Lock()
	id, desc, running := c.session, c.desc, c.capturing
	c.mu.Unlock()
	if !running {
		return
	}

	mode, err := db.GetSettingOr(c.db, activity.SettingAnalysisMode, activity.DefaultSettings[activity.SettingAnalysisMode])
	if err != nil {
		log.Printf("analysis: read analysis_mode: %v", err)
		return
	}
	raw, err := db.GetSettingOr(c.db, activity.SettingBatchSize, activity.DefaultSettings[activity.SettingBatchSize])
	if err != nil {
		log.Printf("analysis: read batch_size: %v", err)
		return
	}
	batchSize := analysis.ClampBatchSize(raw)

	if !analysis.ShouldAnalyze(mode, c.orch.Analyzing(), int(total), batchSize) {
		return
	}
	limit := analysis.PassLimit(mode, batchSize)

	c.passes.Add(1)
	go func() {
		defer c.passes.Done()
		if _, err := c.analyzeSession(context.Background(), id, desc, limit); err != nil {
			log.Printf("analysis: triggered pass for session %s failed: %v", id, err)
		}
	}()
}

func (c *Controller) analyzeSession(ctx context.Context, sessionID string, desc *string, limit int) (int, error) {
	shots, err := db.GetUnanalyzedScreenshots(c.db, &sessionID, limit)
	if err != nil {
		return 0, err
	}
	if len(shots) == 0 {
		return 0, nil
	}
	return c.orch.Run(ctx, shots, &sessionID, desc)
}
