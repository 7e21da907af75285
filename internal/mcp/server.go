// Package mcp exposes glimpse over the Model Context Protocol on
// stdio: status, session and task queries, reports, catch-up
// analysis, and settings.
package mcp

import (
	"database/sql"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/pipeline"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"glimpse_status": {
		def:     statusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStatus },
	},
	"glimpse_sessions_list": {
		def:     sessionsListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionsList },
	},
	"glimpse_session_get": {
		def:     sessionGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionGet },
	},
	"glimpse_tasks_list": {
		def:     tasksListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTasksList },
	},
	"glimpse_report": {
		def:     reportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReport },
	},
	"glimpse_analyze": {
		def:     analyzeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnalyze },
	},
	"glimpse_settings_get": {
		def:     settingsGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSettingsGet },
	},
	"glimpse_settings_set": {
		def:     settingsSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSettingsSet },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns the unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with glimpse tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(database *sql.DB, cfg *config.Config, ctrl *pipeline.Controller, exportsDir, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"glimpse",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(database, ctrl, exportsDir, version)

	for _, name := range ValidateDisabledTools(cfg.DisabledTools) {
		log.Printf("mcp: unknown disabled tool %q", name)
	}
	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server on stdio transport.
func Run(database *sql.DB, cfg *config.Config, ctrl *pipeline.Controller, exportsDir, version string) error {
	s := NewServer(database, cfg, ctrl, exportsDir, version)
	return server.ServeStdio(s)
}
