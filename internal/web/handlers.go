package web

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/errors"
	"github.com/rfontain/glimpse/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI. The dashboard
// is read-only apart from session deletion.
type Handlers struct {
	db       *sql.DB
	shotsDir string
	renderer *Renderer
}

// HandleSessions handles GET /sessions — open and completed sessions.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	open, err := ops.SessionsList(h.db, ops.SessionsListInput{Completed: false})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	completed, err := ops.SessionsList(h.db, ops.SessionsListInput{Completed: true})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "sessions", SessionsPageData{
		PageData: PageData{
			Title:   "Sessions",
			Version: h.renderer.version,
			Nav:     "sessions",
		},
		Open:      open.Sessions,
		Completed: completed.Sessions,
	})
}

// HandleSessionDetail handles GET /sessions/{id} — session, tasks, and
// the rendered activity report.
func (h *Handlers) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("session ID is required"))
		return
	}

	result, err := ops.SessionGet(h.db, ops.SessionGetInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	markdown := activity.BuildReport(result.Session, result.Tasks)

	h.renderer.renderPage(w, r, "session_detail", SessionDetailPageData{
		PageData: PageData{
			Title:   displayTitle(result.Session.Title, result.Session.ID),
			Version: h.renderer.version,
			Nav:     "sessions",
		},
		Session:      result.Session,
		Tasks:        result.Tasks,
		ReportHTML:   renderMarkdown(markdown),
		DisplayTitle: displayTitle(result.Session.Title, result.Session.ID),
	})
}

// HandleTasks handles GET /tasks — recently inferred tasks.
func (h *Handlers) HandleTasks(w http.ResponseWriter, r *http.Request) {
	result, err := ops.TasksList(h.db, ops.TasksListInput{
		Limit: parseIntParam(r, "limit", ops.DefaultTaskLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "tasks", TasksPageData{
		PageData: PageData{
			Title:   "Tasks",
			Version: h.renderer.version,
			Nav:     "tasks",
		},
		Tasks: result.Tasks,
	})
}

// HandleSessionDelete handles DELETE /sessions/{id} — remove a session
// with its screenshots, image files, and orphaned tasks.
func (h *Handlers) HandleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("session ID is required"))
		return
	}

	result, err := ops.SessionDelete(h.db, h.shotsDir, ops.SessionDeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/sessions")
		w.WriteHeader(http.StatusOK)
		return
	}

	// JSON request
	if acceptsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"deleted":       result.Deleted,
			"id":            result.ID,
			"files_removed": result.FilesRemoved,
		})
		return
	}

	// Default: redirect
	http.Redirect(w, r, "/sessions", http.StatusFound)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// acceptsJSON reports whether the request prefers a JSON response.
func acceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// displayTitle returns the session title if present, or a truncated ID.
func displayTitle(title *string, id string) string {
	if title != nil && *title != "" {
		return *title
	}
	if len(id) > 10 {
		return id[:10] + "..."
	}
	return id
}
