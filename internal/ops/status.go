package ops

import (
	"database/sql"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
	"github.com/rfontain/glimpse/internal/pipeline"
)

// StatusOutput contains the result of the Status operation.
type StatusOutput struct {
	Version          string                   `json:"version"`
	Capturing        bool                     `json:"capturing"`
	SessionID        *string                  `json:"session_id,omitempty"`
	SavedCount       int64                    `json:"saved_count"`
	Analyzing        bool                     `json:"analyzing"`
	AnalyzingSession *string                  `json:"analyzing_session,omitempty"`
	OpenSession      *activity.CaptureSession `json:"open_session,omitempty"`
	Totals           StatusTotals             `json:"totals"`
}

// StatusTotals are whole-store row counts.
type StatusTotals struct {
	Sessions    int `json:"sessions"`
	Screenshots int `json:"screenshots"`
	Tasks       int `json:"tasks"`
	Unanalyzed  int `json:"unanalyzed"`
}

// Status reports pipeline state and store totals. The open session is
// included even when this process is not the one capturing into it.
func Status(ctrl *pipeline.Controller, database *sql.DB, version string) (*StatusOutput, error) {
	st := ctrl.Status()
	out := &StatusOutput{
		Version:          version,
		Capturing:        st.Capturing,
		SessionID:        st.SessionID,
		SavedCount:       st.SavedCount,
		Analyzing:        st.Analyzing,
		AnalyzingSession: st.AnalyzingSession,
	}

	open, err := db.GetOpenSession(database)
	if err == nil {
		out.OpenSession = open
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	if out.Totals.Sessions, err = db.CountSessions(database); err != nil {
		return nil, err
	}
	if out.Totals.Screenshots, err = db.CountScreenshots(database); err != nil {
		return nil, err
	}
	if out.Totals.Tasks, err = db.CountTasks(database); err != nil {
		return nil, err
	}
	if out.Totals.Unanalyzed, err = db.CountUnanalyzedScreenshots(database, nil); err != nil {
		return nil, err
	}
	return out, nil
}
