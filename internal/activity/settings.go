package activity

// Settings keys consumed by the capture and analysis pipeline. All values
// are stored as strings in the settings table; consumers parse as needed.
const (
	SettingAIProvider         = "ai_provider"          // claude | ollama
	SettingAnalysisMode       = "analysis_mode"        // realtime | batch
	SettingBatchSize          = "batch_size"           // int, clamped to [1,100]
	SettingImageMode          = "image_mode"           // downscale | full
	SettingCaptureMonitorMode = "capture_monitor_mode" // all | default | active | specific
	SettingCaptureMonitorID   = "capture_monitor_id"   // int, required for mode "specific"
	SettingCaptureInterval    = "capture_interval_secs"
)

// DefaultSettings maps each key to its default value. capture_monitor_id
// has no default; mode "specific" without it is a configuration error.
var DefaultSettings = map[string]string{
	SettingAIProvider:         "claude",
	SettingAnalysisMode:       "batch",
	SettingBatchSize:          "10",
	SettingImageMode:          "downscale",
	SettingCaptureMonitorMode: "default",
	SettingCaptureInterval:    "30",
}
