package ops

import (
	"database/sql"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/db"
)

// PendingListInput contains parameters for the PendingList operation.
type PendingListInput struct {
	SessionID *string // optional scope
}

// PendingListOutput contains the result of the PendingList operation.
type PendingListOutput struct {
	Screenshots []activity.Screenshot `json:"screenshots"`
	Count       int                   `json:"count"`
}

// PendingList lists unanalyzed screenshots, oldest first.
func PendingList(database *sql.DB, input PendingListInput) (*PendingListOutput, error) {
	shots, err := db.GetUnanalyzedScreenshots(database, input.SessionID, 0)
	if err != nil {
		return nil, err
	}
	if shots == nil {
		shots = []activity.Screenshot{}
	}
	return &PendingListOutput{Screenshots: shots, Count: len(shots)}, nil
}

// PendingClearInput contains parameters for the PendingClear operation.
type PendingClearInput struct {
	SessionID *string // optional scope
}

// PendingClearOutput contains the result of the PendingClear operation.
type PendingClearOutput struct {
	Deleted      int `json:"deleted"`
	FilesRemoved int `json:"files_removed"`
}

// PendingClear discards unanalyzed screenshots, rows and image files
// both. Analyzed screenshots are never touched.
func PendingClear(database *sql.DB, screenshotsDir string, input PendingClearInput) (*PendingClearOutput, error) {
	paths, err := db.DeleteUnanalyzedScreenshots(database, input.SessionID)
	if err != nil {
		return nil, err
	}
	return &PendingClearOutput{
		Deleted:      len(paths),
		FilesRemoved: removeScreenshotFiles(screenshotsDir, paths),
	}, nil
}
