package activity

import (
	"strings"
	"time"
)

// Timestamps are naive local wall-clock strings at second precision.
// TimeLayout is the store format; FileTimeLayout is the filesystem-safe
// variant used in screenshot filenames (colons replaced).
const (
	TimeLayout     = "2006-01-02T15:04:05"
	FileTimeLayout = "2006-01-02T15-04-05"
)

// FormatTime renders t in the store timestamp format.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// ParseTime parses a store timestamp. The zone is the local one; stored
// timestamps carry no zone information.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.Local)
}

// Screenshot is one captured image reference. Rows are immutable after
// insert except for their task-link associations.
type Screenshot struct {
	ID           string  `json:"id"`
	Filepath     string  `json:"filepath"` // relative to the screenshots root
	CapturedAt   string  `json:"captured_at"`
	WindowTitle  *string `json:"window_title,omitempty"`
	MonitorID    int     `json:"monitor_id"`
	SessionID    *string `json:"session_id,omitempty"`
	CaptureGroup *string `json:"capture_group,omitempty"`
}

// Task is an inferred unit of user activity, linked many-to-many to the
// screenshots that produced it.
type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	StartedAt   string  `json:"started_at"`
	EndedAt     *string `json:"ended_at,omitempty"`
	Reasoning   *string `json:"reasoning,omitempty"`
	Verified    bool    `json:"verified"`
	Metadata    *string `json:"metadata,omitempty"`
}

// CaptureSession is one continuous capture run. ScreenshotCount and
// UnanalyzedCount are derived by the store, not persisted.
type CaptureSession struct {
	ID              string  `json:"id"`
	StartedAt       string  `json:"started_at"`
	EndedAt         *string `json:"ended_at,omitempty"`
	Description     *string `json:"description,omitempty"`
	Title           *string `json:"title,omitempty"`
	ScreenshotCount int     `json:"screenshot_count"`
	UnanalyzedCount int     `json:"unanalyzed_count"`
}

// Open reports whether the session has not been ended yet.
func (s *CaptureSession) Open() bool {
	return s.EndedAt == nil
}

// Categories a task may carry. Anything else from a provider is
// normalized to "other".
var Categories = []string{"coding", "browsing", "writing", "communication", "design", "other"}

// NormalizeCategory lowercases and validates a category string.
// Empty input stays empty (category is optional); unknown values
// collapse to "other".
func NormalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	for _, c := range Categories {
		if s == c {
			return c
		}
	}
	return "other"
}
