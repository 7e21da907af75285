package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rfontain/glimpse/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/glimpse.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.glimpse.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Captured images and exported reports live next to the database
	for _, sub := range []string{"screenshots", "exports"} {
		dir := filepath.Join(baseDir, sub)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
		_ = os.Chmod(dir, 0700)
	}

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "glimpse.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS screenshots (
		  id            TEXT PRIMARY KEY,
		  filepath      TEXT NOT NULL,
		  captured_at   TEXT NOT NULL,
		  window_title  TEXT,
		  monitor_id    INTEGER NOT NULL DEFAULT 0,
		  session_id    TEXT,
		  capture_group TEXT
		);

		CREATE TABLE IF NOT EXISTS tasks (
		  id          TEXT PRIMARY KEY,
		  title       TEXT NOT NULL,
		  description TEXT,
		  category    TEXT,
		  started_at  TEXT NOT NULL,
		  ended_at    TEXT,
		  reasoning   TEXT,
		  verified    INTEGER NOT NULL DEFAULT 0,
		  metadata    TEXT
		);

		CREATE TABLE IF NOT EXISTS task_screenshots (
		  task_id       TEXT NOT NULL,
		  screenshot_id TEXT NOT NULL,
		  PRIMARY KEY (task_id, screenshot_id)
		);

		CREATE TABLE IF NOT EXISTS capture_sessions (
		  id          TEXT PRIMARY KEY,
		  started_at  TEXT NOT NULL,
		  ended_at    TEXT,
		  description TEXT,
		  title       TEXT
		);

		CREATE TABLE IF NOT EXISTS settings (
		  key   TEXT PRIMARY KEY,
		  value TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_screenshots_session
		ON screenshots(session_id);

		CREATE INDEX IF NOT EXISTS idx_screenshots_capture_group
		ON screenshots(capture_group)
		WHERE capture_group IS NOT NULL;

		CREATE INDEX IF NOT EXISTS idx_task_screenshots_screenshot
		ON task_screenshots(screenshot_id);

		CREATE INDEX IF NOT EXISTS idx_sessions_open
		ON capture_sessions(started_at DESC)
		WHERE ended_at IS NULL;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
