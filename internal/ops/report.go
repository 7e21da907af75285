package ops

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
)

// ReportInput contains parameters for the Report operation.
type ReportInput struct {
	SessionID string
	OutFile   string // optional, default: <exportsDir>/report_<session>.md
}

// ReportOutput contains the result of the Report operation.
type ReportOutput struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Bytes     int    `json:"bytes"`
	Markdown  string `json:"markdown"`
}

// Report renders a session's markdown report, writes it to disk, and
// returns it. Tasks appear in the order they were inferred.
func Report(database *sql.DB, exportsDir string, input ReportInput) (*ReportOutput, error) {
	id := strings.TrimSpace(input.SessionID)
	if id == "" {
		return nil, errors.NewInvalidRequest("session id is required")
	}

	session, err := db.GetSession(database, id)
	if err != nil {
		return nil, err
	}
	tasks, err := db.GetTasksForSession(database, id)
	if err != nil {
		return nil, err
	}

	markdown := activity.BuildReport(session, tasks)

	path := strings.TrimSpace(input.OutFile)
	if path == "" {
		path = filepath.Join(exportsDir, fmt.Sprintf("report_%s.md", id))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create report directory: %w", err))
	}
	if err := os.WriteFile(path, []byte(markdown), 0600); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("write report: %w", err))
	}

	return &ReportOutput{
		SessionID: id,
		Path:      path,
		Bytes:     len(markdown),
		Markdown:  markdown,
	}, nil
}
