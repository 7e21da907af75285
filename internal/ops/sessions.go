package ops

import (
	"database/sql"
	"strings"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
)

// SessionsListInput contains parameters for the SessionsList operation.
type SessionsListInput struct {
	Completed bool
}

// SessionsListOutput contains the result of the SessionsList operation.
type SessionsListOutput struct {
	Sessions []activity.CaptureSession `json:"sessions"`
	Count    int                       `json:"count"`
}

// SessionsList lists capture sessions, newest first. Completed selects
// ended sessions; otherwise open ones are returned.
func SessionsList(database *sql.DB, input SessionsListInput) (*SessionsListOutput, error) {
	sessions, err := db.ListSessions(database, input.Completed)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []activity.CaptureSession{}
	}
	return &SessionsListOutput{Sessions: sessions, Count: len(sessions)}, nil
}

// SessionGetInput contains parameters for the SessionGet operation.
type SessionGetInput struct {
	ID              string
	WithScreenshots bool
}

// SessionGetOutput contains the result of the SessionGet operation.
type SessionGetOutput struct {
	Session     *activity.CaptureSession `json:"session"`
	Tasks       []activity.Task          `json:"tasks"`
	Screenshots []activity.Screenshot    `json:"screenshots,omitempty"`
}

// SessionGet fetches one session with its tasks, oldest task first,
// and optionally its screenshots.
func SessionGet(database *sql.DB, input SessionGetInput) (*SessionGetOutput, error) {
	id := strings.TrimSpace(input.ID)
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
	if tasks == nil {
		tasks = []activity.Task{}
	}

	out := &SessionGetOutput{Session: session, Tasks: tasks}
	if input.WithScreenshots {
		shots, err := db.GetScreenshotsBySession(database, id)
		if err != nil {
			return nil, err
		}
		out.Screenshots = shots
	}
	return out, nil
}

// SessionDeleteInput contains parameters for the SessionDelete operation.
type SessionDeleteInput struct {
	ID string
}

// SessionDeleteOutput contains the result of the SessionDelete operation.
type SessionDeleteOutput struct {
	Deleted      bool   `json:"deleted"`
	ID           string `json:"id"`
	FilesRemoved int    `json:"files_removed"`
}

// SessionDelete removes a session, its screenshots (rows and files),
// and any task orphaned by the removal. Callers stop an active capture
// loop before deleting the session it writes to.
func SessionDelete(database *sql.DB, screenshotsDir string, input SessionDeleteInput) (*SessionDeleteOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("session id is required")
	}

	paths, err := db.DeleteSession(database, id)
	if err != nil {
		return nil, err
	}

	return &SessionDeleteOutput{
		Deleted:      true,
		ID:           id,
		FilesRemoved: removeScreenshotFiles(screenshotsDir, paths),
	}, nil
}
