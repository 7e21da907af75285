package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Names, argument shapes, and descriptions are the
// contract with MCP clients; changing them breaks saved client
// configurations.

var statusToolDef = mcp.NewTool("glimpse_status",
	mcp.WithDescription("Report capture and analysis state plus store totals: whether a session is recording, screenshots saved so far, whether an analysis pass is running, and counts of sessions, screenshots, tasks, and unanalyzed screenshots."),
)

var sessionsListToolDef = mcp.NewTool("glimpse_sessions_list",
	mcp.WithDescription("List capture sessions with screenshot and unanalyzed counts. Open sessions by default; set completed for finished ones."),
	mcp.WithBoolean("completed",
		mcp.Description("List completed sessions instead of open ones"),
	),
)

var sessionGetToolDef = mcp.NewTool("glimpse_session_get",
	mcp.WithDescription("Fetch one capture session with its inferred tasks, oldest task first."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Session ID"),
	),
	mcp.WithBoolean("with_screenshots",
		mcp.Description("Include the session's screenshot rows"),
	),
)

var tasksListToolDef = mcp.NewTool("glimpse_tasks_list",
	mcp.WithDescription("List inferred tasks, most recent first."),
	mcp.WithString("session_id",
		mcp.Description("Only tasks linked to this session"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum tasks to return (default 20, max 100)"),
	),
)

var reportToolDef = mcp.NewTool("glimpse_report",
	mcp.WithDescription("Render a session's markdown activity report and write it to the exports directory. Returns the markdown and the file path."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session ID"),
	),
)

var analyzeToolDef = mcp.NewTool("glimpse_analyze",
	mcp.WithDescription("Run a catch-up analysis pass over unanalyzed screenshots, inferring tasks one capture group at a time. Returns groups analyzed and screenshots still pending."),
	mcp.WithString("session_id",
		mcp.Description("Restrict the pass to one session"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Capture groups to analyze; 0 analyzes everything pending"),
	),
)

var settingsGetToolDef = mcp.NewTool("glimpse_settings_get",
	mcp.WithDescription("Read one setting, falling back to its default when unset."),
	mcp.WithString("key",
		mcp.Required(),
		mcp.Description("Setting key"),
		mcp.Enum("ai_provider", "analysis_mode", "batch_size", "image_mode", "capture_monitor_mode", "capture_monitor_id", "capture_interval_secs"),
	),
)

var settingsSetToolDef = mcp.NewTool("glimpse_settings_set",
	mcp.WithDescription("Validate and store a setting. The capture loop picks changes up on its next tick."),
	mcp.WithString("key",
		mcp.Required(),
		mcp.Description("Setting key"),
		mcp.Enum("ai_provider", "analysis_mode", "batch_size", "image_mode", "capture_monitor_mode", "capture_monitor_id", "capture_interval_secs"),
	),
	mcp.WithString("value",
		mcp.Required(),
		mcp.Description("New value; validated per key"),
	),
)
