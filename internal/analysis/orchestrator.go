package analysis

import (
	"context"
	"database/sql"
	"log"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/capture"
	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
)

// contextWindow is the number of recent task lines carried between
// capture groups within a pass and seeded from the session's history.
const contextWindow = 2

// Orchestrator turns unanalyzed screenshots into tasks, one capture
// group at a time. The analyzing flag is advisory single-flight;
// cancellation is cooperative and takes effect between groups, never
// mid-provider-call.
type Orchestrator struct {
	db       *sql.DB
	cfg      *config.Config
	states   *capture.StateTable
	shotsDir string

	// ProviderFor resolves the ai_provider setting value to an
	// adapter. Replaceable so tests can stub the provider.
	ProviderFor func(name string) (Provider, error)

	analyzing atomic.Bool
	cancel    atomic.Bool
	session   atomic.Value // string; "" when idle or unscoped
}

func NewOrchestrator(database *sql.DB, cfg *config.Config, states *capture.StateTable, screenshotsDir string) *Orchestrator {
	o := &Orchestrator{
		db:       database,
		cfg:      cfg,
		states:   states,
		shotsDir: screenshotsDir,
	}
	o.ProviderFor = func(name string) (Provider, error) { return NewProvider(name, cfg) }
	o.session.Store("")
	return o
}

// Analyzing reports whether a pass is in flight.
func (o *Orchestrator) Analyzing() bool { return o.analyzing.Load() }

// AnalyzingSession returns the session scope of the in-flight pass,
// "" when idle or unscoped.
func (o *Orchestrator) AnalyzingSession() string {
	s, _ := o.session.Load().(string)
	return s
}

// Cancel requests cooperative cancellation of the in-flight pass. The
// current provider call completes first; remaining groups stay
// unanalyzed. Reports whether a pass was running.
func (o *Orchestrator) Cancel() bool {
	if !o.analyzing.Load() {
		return false
	}
	o.cancel.Store(true)
	return true
}

// Run analyzes the given screenshots as capture groups in ascending
// group order and returns the number of groups analyzed. sessionID
// scopes context seeding and the reported status; when nil it is
// inherited from the first screenshot. A canceled pass returns its
// partial count with no error. Per-group provider failures are logged
// and skipped; those groups stay unanalyzed for a later pass.
func (o *Orchestrator) Run(ctx context.Context, shots []activity.Screenshot, sessionID, sessionDesc *string) (int, error) {
	if len(shots) == 0 {
		return 0, nil
	}
	if sessionID == nil {
		sessionID = shots[0].SessionID
	}

	provider, imageMode, err := o.setup()
	if err != nil {
		return 0, err
	}

	o.analyzing.Store(true)
	o.cancel.Store(false)
	if sessionID != nil {
		o.session.Store(*sessionID)
	}
	defer func() {
		o.analyzing.Store(false)
		o.session.Store("")
	}()

	contexts, err := o.seedContexts(sessionID)
	if err != nil {
		return 0, err
	}

	groups := activity.GroupByCaptureGroup(shots)
	analyzed := 0
	for _, group := range groups {
		if o.cancel.Load() {
			log.Printf("analysis: canceled after %d of %d groups", analyzed, len(groups))
			break
		}

		res, err := provider.Analyze(ctx, o.buildRequest(group, contexts, sessionDesc, imageMode))
		if err != nil {
			log.Printf("analysis: group %s: %v", groupLabel(group), err)
			continue
		}

		if err := o.record(group, res); err != nil {
			log.Printf("analysis: record group %s: %v", groupLabel(group), err)
			continue
		}

		contexts = pushContext(contexts, contextLine(res.TaskTitle, &res.TaskDescription))
		analyzed++
	}
	return analyzed, nil
}

// setup resolves the provider and image mode from current settings,
// before the pass is marked in flight.
func (o *Orchestrator) setup() (Provider, string, error) {
	name, err := db.GetSettingOr(o.db, activity.SettingAIProvider, activity.DefaultSettings[activity.SettingAIProvider])
	if err != nil {
		return nil, "", err
	}
	mode, err := db.GetSettingOr(o.db, activity.SettingImageMode, ImageModeDownscale)
	if err != nil {
		return nil, "", err
	}
	provider, err := o.ProviderFor(name)
	if err != nil {
		return nil, "", err
	}
	return provider, mode, nil
}

// seedContexts loads the most recent tasks already linked to the
// session, newest first, formatted as "title: description".
func (o *Orchestrator) seedContexts(sessionID *string) ([]string, error) {
	if sessionID == nil {
		return nil, nil
	}
	tasks, err := db.GetRecentTasksForSession(o.db, *sessionID, contextWindow)
	if err != nil {
		return nil, err
	}
	contexts := make([]string, 0, len(tasks))
	for _, t := range tasks {
		contexts = append(contexts, contextLine(t.Title, t.Description))
	}
	return contexts, nil
}

// buildRequest assembles the provider request for one group: this
// group's screenshots as changed images, every other state-table
// monitor with a non-empty summary as unchanged context.
func (o *Orchestrator) buildRequest(group activity.CaptureGroup, contexts []string, sessionDesc *string, imageMode string) Request {
	states := o.states.Snapshot()

	images := make([]ChangedImage, 0, len(group.Screenshots))
	inGroup := make(map[int]bool, len(group.Screenshots))
	for _, shot := range group.Screenshots {
		inGroup[shot.MonitorID] = true
		img := ChangedImage{
			MonitorName: o.states.Name(shot.MonitorID),
			Path:        filepath.Join(o.shotsDir, shot.Filepath),
		}
		if st, ok := states[shot.MonitorID]; ok {
			img.Width = st.Width
			img.Height = st.Height
			img.Primary = st.IsPrimary
		}
		images = append(images, img)
	}

	ids := make([]int, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var unchanged []UnchangedMonitor
	for _, id := range ids {
		st := states[id]
		if inGroup[id] || st.Summary == "" {
			continue
		}
		unchanged = append(unchanged, UnchangedMonitor{Name: o.states.Name(id), Summary: st.Summary})
	}

	return Request{
		Images:      images,
		Unchanged:   unchanged,
		Context:     contexts,
		SessionDesc: sessionDesc,
		ImageMode:   imageMode,
	}
}

// record persists one verdict: a new task row, or links to the most
// recently created task for a continuation, then the name-keyed
// summary fan-out.
func (o *Orchestrator) record(group activity.CaptureGroup, res *Result) error {
	ids := make([]string, len(group.Screenshots))
	for i, s := range group.Screenshots {
		ids[i] = s.ID
	}

	var taskID string
	if !res.IsNewTask {
		recent, err := db.GetMostRecentTask(o.db)
		switch {
		case err == nil:
			taskID = recent.ID
		case errors.Is(err, errors.ErrNotFound):
			// continuation with nothing to continue; fall through
		default:
			return err
		}
	}

	if taskID == "" {
		task := &activity.Task{
			Title:     res.TaskTitle,
			StartedAt: group.EarliestCapture(),
		}
		if res.TaskDescription != "" {
			task.Description = &res.TaskDescription
		}
		if res.Category != "" {
			task.Category = &res.Category
		}
		if res.Reasoning != "" {
			task.Reasoning = &res.Reasoning
		}
		id, err := db.InsertTask(o.db, task)
		if err != nil {
			return err
		}
		taskID = id
	}

	if err := db.LinkTaskScreenshots(o.db, taskID, ids); err != nil {
		return err
	}

	for name, summary := range res.MonitorSummaries {
		o.states.UpdateSummaryByName(name, summary)
	}
	return nil
}

// pushContext prepends a line, evicting the oldest past the window.
func pushContext(contexts []string, line string) []string {
	contexts = append([]string{line}, contexts...)
	if len(contexts) > contextWindow {
		contexts = contexts[:contextWindow]
	}
	return contexts
}

func contextLine(title string, desc *string) string {
	d := ""
	if desc != nil {
		d = *desc
	}
	return title + ": " + d
}

func groupLabel(g activity.CaptureGroup) string {
	if g.Key != "" {
		return g.Key
	}
	if len(g.Screenshots) > 0 {
		return g.Screenshots[0].ID
	}
	return "(empty)"
}
