package capture

import (
	"fmt"
	"sync"

	"github.com/rfontain/glimpse/internal/phash"
)

// MonitorState is the volatile per-monitor record: what the monitor
// looked like last tick and what the analyzer last said about it.
// Not persisted; rebuilt from scratch every session.
type MonitorState struct {
	Name        string
	Width       int
	Height      int
	IsPrimary   bool
	Fingerprint phash.Fingerprint
	HasCapture  bool
	Summary     string
}

// StateTable maps monitor ids to their volatile state. One mutex
// guards the whole table; it is held only for field updates, never
// across capture or provider calls.
type StateTable struct {
	mu       sync.Mutex
	monitors map[int]*MonitorState
}

func NewStateTable() *StateTable {
	return &StateTable{monitors: make(map[int]*MonitorState)}
}

// Clear wipes all monitor state. Called once per session start.
func (t *StateTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.monitors = make(map[int]*MonitorState)
}

// Fingerprint returns the last fingerprint for a monitor id and
// whether that monitor has been captured before this session.
func (t *StateTable) Fingerprint(id int) (phash.Fingerprint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.monitors[id]
	if !ok || !s.HasCapture {
		return phash.Fingerprint{}, false
	}
	return s.Fingerprint, true
}

// UpdateFingerprint records a monitor's latest fingerprint, creating
// the entry on first sight. Runs on every tick, changed or not, so
// unchanged monitors still track gradual drift from their last frame.
func (t *StateTable) UpdateFingerprint(m Monitor, fp phash.Fingerprint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.monitors[m.ID]
	if !ok {
		s = &MonitorState{}
		t.monitors[m.ID] = s
	}
	s.Name = m.Name
	s.Width = m.Width
	s.Height = m.Height
	s.IsPrimary = m.IsPrimary
	s.Fingerprint = fp
	s.HasCapture = true
}

// UpdateSummaryByName sets the summary for every monitor whose display
// name matches. Analysis results key summaries by name, not id, so
// duplicate names fan out to all matching entries. Returns the number
// of entries updated.
func (t *StateTable) UpdateSummaryByName(name, summary string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	updated := 0
	for _, s := range t.monitors {
		if s.Name == name {
			s.Summary = summary
			updated++
		}
	}
	return updated
}

// Name returns the display name recorded for a monitor id, falling
// back to a synthesized one for ids never seen this session.
func (t *StateTable) Name(id int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.monitors[id]; ok && s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("Monitor %d", id)
}

// Snapshot returns a copy of the table keyed by monitor id. Callers
// get values, so reads after the snapshot cannot race with updates.
func (t *StateTable) Snapshot() map[int]MonitorState {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := make(map[int]MonitorState, len(t.monitors))
	for id, s := range t.monitors {
		snap[id] = *s
	}
	return snap
}
