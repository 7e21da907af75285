package db

import (
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/errors"
)

// newID generates a ULID. Ids are assigned here so every row gets one
// regardless of which caller inserts it; monotonic entropy keeps
// lexicographic id order equal to creation order within a process,
// which the "most recently created task" queries rely on.
func newID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// ---- screenshots ----

// InsertScreenshot stores a new screenshot row and returns its assigned id.
func InsertScreenshot(db *sql.DB, s *activity.Screenshot) (string, error) {
	id, err := newID()
	if err != nil {
		return "", errors.NewInternal(err)
	}

	query := `
		INSERT INTO screenshots (id, filepath, captured_at, window_title, monitor_id, session_id, capture_group)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.Exec(query,
		id, s.Filepath, s.CapturedAt, toNullString(s.WindowTitle),
		s.MonitorID, toNullString(s.SessionID), toNullString(s.CaptureGroup),
	)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	s.ID = id
	return id, nil
}

// GetScreenshot retrieves a screenshot by id.
func GetScreenshot(db *sql.DB, id string) (*activity.Screenshot, error) {
	row := db.QueryRow(`
		SELECT id, filepath, captured_at, window_title, monitor_id, session_id, capture_group
		FROM screenshots WHERE id = ?
	`, id)

	s, err := scanScreenshot(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("screenshot", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// GetUnanalyzedScreenshots returns screenshots with no task link, oldest
// first. A nil sessionID means all sessions; limit <= 0 means no limit.
// "Unanalyzed" is defined purely by link absence, so a screenshot whose
// analysis failed is naturally picked up by a later pass.
func GetUnanalyzedScreenshots(db *sql.DB, sessionID *string, limit int) ([]activity.Screenshot, error) {
	query := `
		SELECT s.id, s.filepath, s.captured_at, s.window_title, s.monitor_id, s.session_id, s.capture_group
		FROM screenshots s
		WHERE NOT EXISTS (SELECT 1 FROM task_screenshots ts WHERE ts.screenshot_id = s.id)
	`
	args := []any{}
	if sessionID != nil {
		query += " AND s.session_id = ?"
		args = append(args, *sessionID)
	}
	query += " ORDER BY s.captured_at ASC, s.id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	return collectScreenshots(rows)
}

// GetScreenshotsBySession returns every screenshot in a session, oldest first.
func GetScreenshotsBySession(db *sql.DB, sessionID string) ([]activity.Screenshot, error) {
	rows, err := db.Query(`
		SELECT id, filepath, captured_at, window_title, monitor_id, session_id, capture_group
		FROM screenshots WHERE session_id = ?
		ORDER BY captured_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	return collectScreenshots(rows)
}

// DeleteUnanalyzedScreenshots removes unanalyzed screenshot rows
// (optionally scoped to a session) and returns the relative filepaths
// of the deleted rows so the caller can unlink the image files.
func DeleteUnanalyzedScreenshots(db *sql.DB, sessionID *string) ([]string, error) {
	shots, err := GetUnanalyzedScreenshots(db, sessionID, 0)
	if err != nil {
		return nil, err
	}
	if len(shots) == 0 {
		return nil, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback()

	paths := make([]string, 0, len(shots))
	for _, s := range shots {
		if _, err := tx.Exec(`DELETE FROM screenshots WHERE id = ?`, s.ID); err != nil {
			return nil, errors.NewInternal(err)
		}
		paths = append(paths, s.Filepath)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return paths, nil
}

func scanScreenshot(row *sql.Row) (*activity.Screenshot, error) {
	var s activity.Screenshot
	var windowTitle, sessionID, captureGroup sql.NullString
	err := row.Scan(&s.ID, &s.Filepath, &s.CapturedAt, &windowTitle, &s.MonitorID, &sessionID, &captureGroup)
	if err != nil {
		return nil, err
	}
	s.WindowTitle = fromNullString(windowTitle)
	s.SessionID = fromNullString(sessionID)
	s.CaptureGroup = fromNullString(captureGroup)
	return &s, nil
}

func collectScreenshots(rows *sql.Rows) ([]activity.Screenshot, error) {
	var shots []activity.Screenshot
	for rows.Next() {
		var s activity.Screenshot
		var windowTitle, sessionID, captureGroup sql.NullString
		if err := rows.Scan(&s.ID, &s.Filepath, &s.CapturedAt, &windowTitle, &s.MonitorID, &sessionID, &captureGroup); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.WindowTitle = fromNullString(windowTitle)
		s.SessionID = fromNullString(sessionID)
		s.CaptureGroup = fromNullString(captureGroup)
		shots = append(shots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return shots, nil
}

// ---- tasks ----

const taskColumns = "id, title, description, category, started_at, ended_at, reasoning, verified, metadata"

// InsertTask stores a new task row and returns its assigned id.
func InsertTask(db *sql.DB, t *activity.Task) (string, error) {
	id, err := newID()
	if err != nil {
		return "", errors.NewInternal(err)
	}

	query := `
		INSERT INTO tasks (id, title, description, category, started_at, ended_at, reasoning, verified, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.Exec(query,
		id, t.Title, toNullString(t.Description), toNullString(t.Category),
		t.StartedAt, toNullString(t.EndedAt), toNullString(t.Reasoning),
		boolToInt(t.Verified), toNullString(t.Metadata),
	)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	t.ID = id
	return id, nil
}

// GetTask retrieves a task by id.
func GetTask(db *sql.DB, id string) (*activity.Task, error) {
	row := db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("task", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// GetMostRecentTask returns the most recently created task.
// ULID ids sort by creation time, so id order is creation order.
func GetMostRecentTask(db *sql.DB) (*activity.Task, error) {
	row := db.QueryRow(`SELECT ` + taskColumns + ` FROM tasks ORDER BY id DESC LIMIT 1`)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("task", "latest")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// GetRecentTasks returns the newest tasks first, up to limit.
func GetRecentTasks(db *sql.DB, limit int) ([]activity.Task, error) {
	rows, err := db.Query(`SELECT `+taskColumns+` FROM tasks ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// GetRecentTasksForSession returns the newest tasks linked to a
// session's screenshots, up to limit. Feeds the rolling prompt context.
func GetRecentTasksForSession(db *sql.DB, sessionID string, limit int) ([]activity.Task, error) {
	query := `
		SELECT DISTINCT t.id, t.title, t.description, t.category, t.started_at,
			t.ended_at, t.reasoning, t.verified, t.metadata
		FROM tasks t
		JOIN task_screenshots ts ON ts.task_id = t.id
		JOIN screenshots s ON s.id = ts.screenshot_id
		WHERE s.session_id = ?
		ORDER BY t.id DESC
		LIMIT ?
	`
	rows, err := db.Query(query, sessionID, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// GetTasksForSession returns all tasks linked to a session's
// screenshots in creation order (oldest first), for reports.
func GetTasksForSession(db *sql.DB, sessionID string) ([]activity.Task, error) {
	query := `
		SELECT DISTINCT t.id, t.title, t.description, t.category, t.started_at,
			t.ended_at, t.reasoning, t.verified, t.metadata
		FROM tasks t
		JOIN task_screenshots ts ON ts.task_id = t.id
		JOIN screenshots s ON s.id = ts.screenshot_id
		WHERE s.session_id = ?
		ORDER BY t.id ASC
	`
	rows, err := db.Query(query, sessionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// TaskUpdate carries the mutable task fields; nil leaves a field unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Category    *string
	EndedAt     *string
	Verified    *bool
}

// UpdateTask applies user edits to a task.
func UpdateTask(db *sql.DB, id string, upd TaskUpdate) error {
	sets := []string{}
	args := []any{}

	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *upd.Category)
	}
	if upd.EndedAt != nil {
		sets = append(sets, "ended_at = ?")
		args = append(args, *upd.EndedAt)
	}
	if upd.Verified != nil {
		sets = append(sets, "verified = ?")
		args = append(args, boolToInt(*upd.Verified))
	}
	if len(sets) == 0 {
		return errors.NewInvalidRequest("no fields to update")
	}

	args = append(args, id)
	result, err := db.Exec(`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return errors.NewInternal(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if affected == 0 {
		return errors.NewNotFound("task", id)
	}
	return nil
}

// DeleteTask removes a task and its screenshot links. The screenshots
// themselves survive and become unanalyzed again.
func DeleteTask(db *sql.DB, id string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_screenshots WHERE task_id = ?`, id); err != nil {
		return errors.NewInternal(err)
	}

	result, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if affected == 0 {
		return errors.NewNotFound("task", id)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LinkTaskScreenshots associates every screenshot id with the task.
// Re-linking an existing pair is a no-op.
func LinkTaskScreenshots(db *sql.DB, taskID string, screenshotIDs []string) error {
	if len(screenshotIDs) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	for _, sid := range screenshotIDs {
		_, err := tx.Exec(
			`INSERT INTO task_screenshots (task_id, screenshot_id) VALUES (?, ?)`,
			taskID, sid,
		)
		if isUniqueConstraintError(err) {
			continue // already linked
		}
		if err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func scanTask(row *sql.Row) (*activity.Task, error) {
	var t activity.Task
	var description, category, endedAt, reasoning, metadata sql.NullString
	var verified int
	err := row.Scan(&t.ID, &t.Title, &description, &category, &t.StartedAt, &endedAt, &reasoning, &verified, &metadata)
	if err != nil {
		return nil, err
	}
	t.Description = fromNullString(description)
	t.Category = fromNullString(category)
	t.EndedAt = fromNullString(endedAt)
	t.Reasoning = fromNullString(reasoning)
	t.Metadata = fromNullString(metadata)
	t.Verified = verified != 0
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]activity.Task, error) {
	var tasks []activity.Task
	for rows.Next() {
		var t activity.Task
		var description, category, endedAt, reasoning, metadata sql.NullString
		var verified int
		if err := rows.Scan(&t.ID, &t.Title, &description, &category, &t.StartedAt, &endedAt, &reasoning, &verified, &metadata); err != nil {
			return nil, errors.NewInternal(err)
		}
		t.Description = fromNullString(description)
		t.Category = fromNullString(category)
		t.EndedAt = fromNullString(endedAt)
		t.Reasoning = fromNullString(reasoning)
		t.Metadata = fromNullString(metadata)
		t.Verified = verified != 0
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return tasks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---- capture sessions ----

const sessionColumns = `
	s.id, s.started_at, s.ended_at, s.description, s.title,
	(SELECT COUNT(*) FROM screenshots sc WHERE sc.session_id = s.id) AS screenshot_count,
	(SELECT COUNT(*) FROM screenshots sc WHERE sc.session_id = s.id
		AND NOT EXISTS (SELECT 1 FROM task_screenshots ts WHERE ts.screenshot_id = sc.id)) AS unanalyzed_count
`

// InsertSession creates a capture session row and returns its assigned id.
func InsertSession(db *sql.DB, startedAt string, description, title *string) (string, error) {
	id, err := newID()
	if err != nil {
		return "", errors.NewInternal(err)
	}

	_, err = db.Exec(`
		INSERT INTO capture_sessions (id, started_at, ended_at, description, title)
		VALUES (?, ?, NULL, ?, ?)
	`, id, startedAt, toNullString(description), toNullString(title))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return id, nil
}

// GetSession retrieves a session with derived screenshot counts.
func GetSession(db *sql.DB, id string) (*activity.CaptureSession, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM capture_sessions s WHERE s.id = ?`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return session, nil
}

// GetOpenSession returns the open (ended_at IS NULL) session.
// At most one should exist; the newest wins if state was corrupted.
func GetOpenSession(db *sql.DB) (*activity.CaptureSession, error) {
	row := db.QueryRow(`
		SELECT ` + sessionColumns + `
		FROM capture_sessions s
		WHERE s.ended_at IS NULL
		ORDER BY s.started_at DESC, s.id DESC
		LIMIT 1
	`)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session", "open")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return session, nil
}

// EndSession closes a session by stamping ended_at.
func EndSession(db *sql.DB, id, endedAt string) error {
	result, err := db.Exec(`UPDATE capture_sessions SET ended_at = ? WHERE id = ?`, endedAt, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if affected == 0 {
		return errors.NewNotFound("session", id)
	}
	return nil
}

// ListSessions returns sessions newest first. completed=false lists
// open (pending) sessions, completed=true lists ended ones.
func ListSessions(db *sql.DB, completed bool) ([]activity.CaptureSession, error) {
	cond := "s.ended_at IS NULL"
	if completed {
		cond = "s.ended_at IS NOT NULL"
	}

	rows, err := db.Query(`
		SELECT ` + sessionColumns + `
		FROM capture_sessions s
		WHERE ` + cond + `
		ORDER BY s.started_at DESC, s.id DESC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var sessions []activity.CaptureSession
	for rows.Next() {
		var s activity.CaptureSession
		var endedAt, description, title sql.NullString
		if err := rows.Scan(&s.ID, &s.StartedAt, &endedAt, &description, &title, &s.ScreenshotCount, &s.UnanalyzedCount); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.EndedAt = fromNullString(endedAt)
		s.Description = fromNullString(description)
		s.Title = fromNullString(title)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return sessions, nil
}

// DeleteSession removes a session, its screenshots, their task links,
// and any task left with no links at all (orphan cleanup). Tasks that
// still link to screenshots of other sessions survive. Returns the
// relative filepaths of the deleted screenshots so the caller can
// unlink the image files from disk.
func DeleteSession(db *sql.DB, id string) ([]string, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM capture_sessions WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	rows, err := tx.Query(`SELECT filepath FROM screenshots WHERE session_id = ?`, id)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, errors.NewInternal(err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.NewInternal(err)
	}
	rows.Close()

	if _, err := tx.Exec(`
		DELETE FROM task_screenshots
		WHERE screenshot_id IN (SELECT id FROM screenshots WHERE session_id = ?)
	`, id); err != nil {
		return nil, errors.NewInternal(err)
	}

	// Orphan cleanup: tasks whose only links pointed into this session
	if _, err := tx.Exec(`
		DELETE FROM tasks
		WHERE id NOT IN (SELECT DISTINCT task_id FROM task_screenshots)
	`); err != nil {
		return nil, errors.NewInternal(err)
	}

	if _, err := tx.Exec(`DELETE FROM screenshots WHERE session_id = ?`, id); err != nil {
		return nil, errors.NewInternal(err)
	}

	if _, err := tx.Exec(`DELETE FROM capture_sessions WHERE id = ?`, id); err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return paths, nil
}

func scanSession(row *sql.Row) (*activity.CaptureSession, error) {
	var s activity.CaptureSession
	var endedAt, description, title sql.NullString
	err := row.Scan(&s.ID, &s.StartedAt, &endedAt, &description, &title, &s.ScreenshotCount, &s.UnanalyzedCount)
	if err != nil {
		return nil, err
	}
	s.EndedAt = fromNullString(endedAt)
	s.Description = fromNullString(description)
	s.Title = fromNullString(title)
	return &s, nil
}

// ---- settings ----

// GetSetting returns a setting value and whether the key exists.
func GetSetting(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// GetSettingOr returns a setting value, falling back to def when unset.
func GetSettingOr(db *sql.DB, key, def string) (string, error) {
	value, ok, err := GetSetting(db, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return value, nil
}

// SetSetting upserts a setting value.
func SetSetting(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// AllSettings returns every stored setting.
func AllSettings(db *sql.DB) (map[string]string, error) {
	rows, err := db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.NewInternal(err)
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return settings, nil
}

// ---- counts ----

func countRow(db *sql.DB, query string, args ...any) (int, error) {
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// CountSessions returns the total number of capture sessions.
func CountSessions(db *sql.DB) (int, error) {
	return countRow(db, `SELECT COUNT(*) FROM capture_sessions`)
}

// CountScreenshots returns the total number of screenshot rows.
func CountScreenshots(db *sql.DB) (int, error) {
	return countRow(db, `SELECT COUNT(*) FROM screenshots`)
}

// CountTasks returns the total number of tasks.
func CountTasks(db *sql.DB) (int, error) {
	return countRow(db, `SELECT COUNT(*) FROM tasks`)
}

// CountUnanalyzedScreenshots counts screenshots with no task link,
// optionally scoped to a session.
func CountUnanalyzedScreenshots(db *sql.DB, sessionID *string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM screenshots s
		WHERE NOT EXISTS (SELECT 1 FROM task_screenshots ts WHERE ts.screenshot_id = s.id)
	`
	args := []any{}
	if sessionID != nil {
		query += " AND s.session_id = ?"
		args = append(args, *sessionID)
	}
	return countRow(db, query, args...)
}
