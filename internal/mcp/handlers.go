package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rfontain/glimpse/internal/errors"
	"github.com/rfontain/glimpse/internal/ops"
	"github.com/rfontain/glimpse/internal/pipeline"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db         *sql.DB
	ctrl       *pipeline.Controller
	exportsDir string
	version    string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(database *sql.DB, ctrl *pipeline.Controller, exportsDir, version string) *Handlers {
	return &Handlers{db: database, ctrl: ctrl, exportsDir: exportsDir, version: version}
}

// Request types for each tool

// SessionsListRequest represents the arguments for sessions_list.
type SessionsListRequest struct {
	Completed bool `json:"completed,omitempty"`
}

// SessionGetRequest represents the arguments for session_get.
type SessionGetRequest struct {
	ID              string `json:"id"`
	WithScreenshots bool   `json:"with_screenshots,omitempty"`
}

// TasksListRequest represents the arguments for tasks_list.
type TasksListRequest struct {
	SessionID *string `json:"session_id,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

// ReportRequest represents the arguments for report. Reports always
// land in the exports directory; arbitrary output paths are CLI-only.
type ReportRequest struct {
	SessionID string `json:"session_id"`
}

// AnalyzeRequest represents the arguments for analyze.
type AnalyzeRequest struct {
	SessionID *string `json:"session_id,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

// SettingsGetRequest represents the arguments for settings_get.
type SettingsGetRequest struct {
	Key string `json:"key"`
}

// SettingsSetRequest represents the arguments for settings_set.
type SettingsSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Handler implementations

// HandleStatus handles the status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Status(h.ctrl, h.db, h.version)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionsList handles the sessions_list tool call.
func (h *Handlers) HandleSessionsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionsListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionsList(h.db, ops.SessionsListInput{Completed: input.Completed})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionGet handles the session_get tool call.
func (h *Handlers) HandleSessionGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionGet(h.db, ops.SessionGetInput{
		ID:              input.ID,
		WithScreenshots: input.WithScreenshots,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTasksList handles the tasks_list tool call.
func (h *Handlers) HandleTasksList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TasksListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.TasksList(h.db, ops.TasksListInput{
		SessionID: input.SessionID,
		Limit:     input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleReport handles the report tool call.
func (h *Handlers) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Report(h.db, h.exportsDir, ops.ReportInput{SessionID: input.SessionID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAnalyze handles the analyze tool call.
func (h *Handlers) HandleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnalyzeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Analyze(ctx, h.ctrl, h.db, ops.AnalyzeInput{
		SessionID: input.SessionID,
		Limit:     input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSettingsGet handles the settings_get tool call.
func (h *Handlers) HandleSettingsGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SettingsGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SettingsGet(h.db, ops.SettingsGetInput{Key: input.Key})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSettingsSet handles the settings_set tool call.
func (h *Handlers) HandleSettingsSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SettingsSetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SettingsSet(h.db, ops.SettingsSetInput{
		Key:   input.Key,
		Value: input.Value,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error, unwrapping
// to find the structured code. Uses IsError: true so MCP clients
// recognize failures properly. Internal error details are never
// exposed; non-internal details (provider names, identifiers) are.
func errorResult(err error) *mcp.CallToolResult {
	errorObj := map[string]any{
		"code":    errors.ErrInternal,
		"message": "an internal error occurred",
		"status":  500,
	}

	var gerr *errors.GlimpseError
	if stderrors.As(err, &gerr) {
		message := gerr.Message
		if wrapped := err.Error(); wrapped != gerr.Error() {
			message = wrapped
		}
		errorObj["code"] = gerr.Code
		errorObj["message"] = message
		errorObj["status"] = gerr.Status
		if gerr.Code != errors.ErrInternal && gerr.Details != nil {
			errorObj["details"] = gerr.Details
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
