package ops

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/db"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func stringPtr(s string) *string {
	return &s
}

func seedSession(t *testing.T, database *sql.DB, startedAt string) string {
	t.Helper()
	id, err := db.InsertSession(database, startedAt, nil, nil)
	if err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
	return id
}

// seedShot inserts a screenshot row and writes a dummy image file for
// it under shotsDir, so the delete paths have something to unlink.
func seedShot(t *testing.T, database *sql.DB, shotsDir, sessionID, capturedAt string) activity.Screenshot {
	t.Helper()
	s := &activity.Screenshot{
		Filepath:   "screenshot_" + capturedAt + ".png",
		CapturedAt: capturedAt,
		SessionID:  &sessionID,
	}
	if _, err := db.InsertScreenshot(database, s); err != nil {
		t.Fatalf("InsertScreenshot failed: %v", err)
	}
	if shotsDir != "" {
		if err := os.WriteFile(filepath.Join(shotsDir, s.Filepath), []byte("png"), 0o644); err != nil {
			t.Fatalf("write image file failed: %v", err)
		}
	}
	return *s
}

func seedTask(t *testing.T, database *sql.DB, title string, shotIDs ...string) string {
	t.Helper()
	id, err := db.InsertTask(database, &activity.Task{Title: title, StartedAt: "2026-08-25T10:00:00"})
	if err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}
	if len(shotIDs) > 0 {
		if err := db.LinkTaskScreenshots(database, id, shotIDs); err != nil {
			t.Fatalf("LinkTaskScreenshots failed: %v", err)
		}
	}
	return id
}
