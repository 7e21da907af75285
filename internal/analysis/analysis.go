// Package analysis infers tasks from captured screenshots: it builds
// vision requests for capture groups, calls the configured provider,
// and records the verdicts as tasks linked to their screenshots.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/errors"
)

// Provider names accepted in the ai_provider setting.
const (
	ProviderClaude = "claude"
	ProviderOllama = "ollama"
)

// Result is a provider's verdict for one capture group.
type Result struct {
	TaskTitle        string            `json:"task_title"`
	TaskDescription  string            `json:"task_description"`
	Category         string            `json:"category"`
	Reasoning        string            `json:"reasoning"`
	IsNewTask        bool              `json:"is_new_task"`
	MonitorSummaries map[string]string `json:"monitor_summaries,omitempty"`
}

// ChangedImage is one changed monitor whose screenshot is attached to
// the request. Width/height/primary are zero when the monitor was
// never seen by the state table.
type ChangedImage struct {
	MonitorName string
	Path        string // absolute path of the stored image
	Width       int
	Height      int
	Primary     bool
}

// UnchangedMonitor carries the cached one-line summary of a monitor
// that did not change this tick.
type UnchangedMonitor struct {
	Name    string
	Summary string
}

// Request is one capture group prepared for provider analysis.
// Context lines are most-recent-first.
type Request struct {
	Images      []ChangedImage
	Unchanged   []UnchangedMonitor
	Context     []string
	SessionDesc *string
	ImageMode   string
}

// Multi reports whether the request needs the multi-monitor prompt:
// more than one changed image, or any unchanged-monitor context.
func (r Request) Multi() bool {
	return len(r.Images) > 1 || len(r.Unchanged) > 0
}

// TotalMonitors is the monitor count quoted in the multi prompt.
func (r Request) TotalMonitors() int {
	return len(r.Images) + len(r.Unchanged)
}

// monitorNames lists display names in prompt order: changed monitors
// first, then unchanged.
func (r Request) monitorNames() []string {
	names := make([]string, 0, r.TotalMonitors())
	for _, img := range r.Images {
		names = append(names, img.MonitorName)
	}
	for _, um := range r.Unchanged {
		names = append(names, um.Name)
	}
	return names
}

// Provider analyzes one capture group. Implementations preprocess the
// attached images per the request's image mode.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// NewProvider resolves an ai_provider setting value to an adapter.
func NewProvider(name string, cfg *config.Config) (Provider, error) {
	switch name {
	case ProviderClaude, "":
		return NewAnthropicProvider(cfg)
	case ProviderOllama:
		return NewOllamaProvider(cfg), nil
	default:
		return nil, errors.NewInvalidRequest("unknown ai_provider: " + name)
	}
}

// ParseResult decodes a provider response body into a Result,
// tolerating a markdown code fence around the JSON. The category is
// normalized; unknown values collapse to "other".
func ParseResult(text string) (*Result, error) {
	cleaned := stripCodeFences(text)
	var res Result
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	res.Category = activity.NormalizeCategory(res.Category)
	return &res, nil
}
