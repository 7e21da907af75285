package ops

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/analysis"
	"github.com/rfontain/glimpse/internal/capture"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
)

// SettingsGetInput contains parameters for the SettingsGet operation.
type SettingsGetInput struct {
	Key string
}

// SettingsGetOutput contains the result of the SettingsGet operation.
type SettingsGetOutput struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Default bool   `json:"default"`
}

// SettingsGet reads one setting, falling back to its default when
// nothing is stored. A key with no stored value and no default
// (capture_monitor_id) is not found.
func SettingsGet(database *sql.DB, input SettingsGetInput) (*SettingsGetOutput, error) {
	key, err := normalizeSettingKey(input.Key)
	if err != nil {
		return nil, err
	}

	value, ok, err := db.GetSetting(database, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return &SettingsGetOutput{Key: key, Value: value}, nil
	}
	if def, hasDefault := activity.DefaultSettings[key]; hasDefault {
		return &SettingsGetOutput{Key: key, Value: def, Default: true}, nil
	}
	return nil, errors.NewNotFound("setting", key)
}

// SettingsSetInput contains parameters for the SettingsSet operation.
type SettingsSetInput struct {
	Key   string
	Value string
}

// SettingsSetOutput contains the result of the SettingsSet operation.
type SettingsSetOutput struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingsSet validates and stores a setting. The capture loop and the
// analysis trigger re-read settings every tick, so changes apply
// without a restart.
func SettingsSet(database *sql.DB, input SettingsSetInput) (*SettingsSetOutput, error) {
	key, err := normalizeSettingKey(input.Key)
	if err != nil {
		return nil, err
	}
	value := strings.TrimSpace(input.Value)
	if err := validateSetting(key, value); err != nil {
		return nil, err
	}
	if err := db.SetSetting(database, key, value); err != nil {
		return nil, err
	}
	return &SettingsSetOutput{Key: key, Value: value}, nil
}

// SettingsListOutput contains the result of the SettingsList operation.
type SettingsListOutput struct {
	Settings map[string]string `json:"settings"`
}

// SettingsList returns the effective settings: defaults overlaid with
// stored values.
func SettingsList(database *sql.DB) (*SettingsListOutput, error) {
	stored, err := db.AllSettings(database)
	if err != nil {
		return nil, err
	}

	settings := make(map[string]string, len(activity.DefaultSettings)+len(stored))
	for k, v := range activity.DefaultSettings {
		settings[k] = v
	}
	for k, v := range stored {
		settings[k] = v
	}
	return &SettingsListOutput{Settings: settings}, nil
}

var settingKeys = map[string]bool{
	activity.SettingAIProvider:         true,
	activity.SettingAnalysisMode:       true,
	activity.SettingBatchSize:          true,
	activity.SettingImageMode:          true,
	activity.SettingCaptureMonitorMode: true,
	activity.SettingCaptureMonitorID:   true,
	activity.SettingCaptureInterval:    true,
}

func normalizeSettingKey(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", errors.NewInvalidRequest("setting key is required")
	}
	if !settingKeys[key] {
		return "", errors.NewInvalidRequest("unknown setting key: " + key)
	}
	return key, nil
}

// validateSetting rejects values the pipeline could not act on.
// Writes are strict even where reads are lenient: batch_size is
// clamped when read back, but storing an out-of-range value is still
// an error.
func validateSetting(key, value string) error {
	if value == "" {
		return errors.NewInvalidRequest("setting value is required")
	}

	oneOf := func(options ...string) error {
		for _, o := range options {
			if value == o {
				return nil
			}
		}
		return errors.NewInvalidRequest(fmt.Sprintf("%s must be one of: %s", key, strings.Join(options, ", ")))
	}

	switch key {
	case activity.SettingAIProvider:
		return oneOf(analysis.ProviderClaude, analysis.ProviderOllama)
	case activity.SettingAnalysisMode:
		return oneOf(analysis.ModeRealtime, analysis.ModeBatch)
	case activity.SettingImageMode:
		return oneOf(analysis.ImageModeDownscale, analysis.ImageModeFull)
	case activity.SettingCaptureMonitorMode:
		return oneOf(capture.MonitorModeAll, capture.MonitorModeDefault, capture.MonitorModeActive, capture.MonitorModeSpecific)
	case activity.SettingBatchSize:
		n, err := strconv.Atoi(value)
		if err != nil || n < analysis.MinBatchSize || n > analysis.MaxBatchSize {
			return errors.NewInvalidRequest(fmt.Sprintf("%s must be an integer between %d and %d", key, analysis.MinBatchSize, analysis.MaxBatchSize))
		}
	case activity.SettingCaptureMonitorID:
		if n, err := strconv.Atoi(value); err != nil || n < 0 {
			return errors.NewInvalidRequest(key + " must be a non-negative integer")
		}
	case activity.SettingCaptureInterval:
		if n, err := strconv.Atoi(value); err != nil || n < 1 {
			return errors.NewInvalidRequest(key + " must be a positive integer of seconds")
		}
	}
	return nil
}
