package ops

import (
	"testing"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/errors"
)

func TestSettingsSet_Validation(t *testing.T) {
	tests := []struct {
		key   string
		value string
		ok    bool
	}{
		{activity.SettingAIProvider, "claude", true},
		{activity.SettingAIProvider, "ollama", true},
		{activity.SettingAIProvider, "gpt", false},
		{activity.SettingAnalysisMode, "realtime", true},
		{activity.SettingAnalysisMode, "batch", true},
		{activity.SettingAnalysisMode, "eager", false},
		{activity.SettingImageMode, "downscale", true},
		{activity.SettingImageMode, "full", true},
		{activity.SettingImageMode, "raw", false},
		{activity.SettingBatchSize, "1", true},
		{activity.SettingBatchSize, "100", true},
		{activity.SettingBatchSize, "0", false},
		{activity.SettingBatchSize, "101", false},
		{activity.SettingBatchSize, "ten", false},
		{activity.SettingCaptureMonitorMode, "all", true},
		{activity.SettingCaptureMonitorMode, "default", true},
		{activity.SettingCaptureMonitorMode, "active", true},
		{activity.SettingCaptureMonitorMode, "specific", true},
		{activity.SettingCaptureMonitorMode, "none", false},
		{activity.SettingCaptureMonitorID, "0", true},
		{activity.SettingCaptureMonitorID, "2", true},
		{activity.SettingCaptureMonitorID, "-1", false},
		{activity.SettingCaptureMonitorID, "first", false},
		{activity.SettingCaptureInterval, "1", true},
		{activity.SettingCaptureInterval, "300", true},
		{activity.SettingCaptureInterval, "0", false},
		{activity.SettingCaptureInterval, "-5", false},
		{"polling_rate", "5", false},
		{"", "5", false},
		{activity.SettingAIProvider, "", false},
	}

	for _, tt := range tests {
		database := newTestDB(t)
		_, err := SettingsSet(database, SettingsSetInput{Key: tt.key, Value: tt.value})
		if tt.ok && err != nil {
			t.Errorf("SettingsSet(%q, %q) failed: %v", tt.key, tt.value, err)
		}
		if !tt.ok {
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("SettingsSet(%q, %q) = %v, want invalid request", tt.key, tt.value, err)
			}
		}
	}
}

func TestSettingsSet_NormalizesKeyAndValue(t *testing.T) {
	database := newTestDB(t)

	out, err := SettingsSet(database, SettingsSetInput{Key: "  AI_Provider ", Value: " ollama "})
	if err != nil {
		t.Fatalf("SettingsSet failed: %v", err)
	}
	if out.Key != activity.SettingAIProvider || out.Value != "ollama" {
		t.Errorf("output = %+v, want normalized key and trimmed value", out)
	}
}

func TestSettingsGet_DefaultFallback(t *testing.T) {
	database := newTestDB(t)

	out, err := SettingsGet(database, SettingsGetInput{Key: activity.SettingBatchSize})
	if err != nil {
		t.Fatalf("SettingsGet failed: %v", err)
	}
	if out.Value != "10" || !out.Default {
		t.Errorf("output = %+v, want default 10", out)
	}
}

func TestSettingsGet_StoredOverridesDefault(t *testing.T) {
	database := newTestDB(t)

	if _, err := SettingsSet(database, SettingsSetInput{Key: activity.SettingBatchSize, Value: "25"}); err != nil {
		t.Fatalf("SettingsSet failed: %v", err)
	}
	out, err := SettingsGet(database, SettingsGetInput{Key: activity.SettingBatchSize})
	if err != nil {
		t.Fatalf("SettingsGet failed: %v", err)
	}
	if out.Value != "25" || out.Default {
		t.Errorf("output = %+v, want stored 25", out)
	}
}

func TestSettingsGet_NoDefault(t *testing.T) {
	database := newTestDB(t)

	// capture_monitor_id has no default; unset means not found.
	_, err := SettingsGet(database, SettingsGetInput{Key: activity.SettingCaptureMonitorID})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}

	if _, err := SettingsSet(database, SettingsSetInput{Key: activity.SettingCaptureMonitorID, Value: "1"}); err != nil {
		t.Fatalf("SettingsSet failed: %v", err)
	}
	out, err := SettingsGet(database, SettingsGetInput{Key: activity.SettingCaptureMonitorID})
	if err != nil {
		t.Fatalf("SettingsGet failed: %v", err)
	}
	if out.Value != "1" || out.Default {
		t.Errorf("output = %+v, want stored 1", out)
	}
}

func TestSettingsGet_UnknownKey(t *testing.T) {
	database := newTestDB(t)

	if _, err := SettingsGet(database, SettingsGetInput{Key: "theme"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("unknown key should be invalid, got: %v", err)
	}
}

func TestSettingsList_OverlaysStored(t *testing.T) {
	database := newTestDB(t)

	if _, err := SettingsSet(database, SettingsSetInput{Key: activity.SettingAIProvider, Value: "ollama"}); err != nil {
		t.Fatalf("SettingsSet failed: %v", err)
	}

	out, err := SettingsList(database)
	if err != nil {
		t.Fatalf("SettingsList failed: %v", err)
	}
	if out.Settings[activity.SettingAIProvider] != "ollama" {
		t.Errorf("ai_provider = %q, want stored ollama", out.Settings[activity.SettingAIProvider])
	}
	if out.Settings[activity.SettingAnalysisMode] != "batch" {
		t.Errorf("analysis_mode = %q, want default batch", out.Settings[activity.SettingAnalysisMode])
	}
	if _, ok := out.Settings[activity.SettingCaptureMonitorID]; ok {
		t.Error("capture_monitor_id should be absent until stored")
	}
}
