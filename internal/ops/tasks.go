package ops

import (
	"database/sql"
	"strings"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/db"
	"github.com/rfontain/glimpse/internal/errors"
)

// TasksListInput contains parameters for the TasksList operation.
type TasksListInput struct {
	SessionID *string // optional scope
	Limit     int
}

// TasksListOutput contains the result of the TasksList operation.
type TasksListOutput struct {
	Tasks []activity.Task `json:"tasks"`
	Count int             `json:"count"`
}

// TasksList lists inferred tasks, newest first.
func TasksList(database *sql.DB, input TasksListInput) (*TasksListOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultTaskLimit
	}
	if limit > MaxTaskLimit {
		limit = MaxTaskLimit
	}

	var tasks []activity.Task
	var err error
	if input.SessionID != nil {
		tasks, err = db.GetRecentTasksForSession(database, *input.SessionID, limit)
	} else {
		tasks, err = db.GetRecentTasks(database, limit)
	}
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []activity.Task{}
	}
	return &TasksListOutput{Tasks: tasks, Count: len(tasks)}, nil
}

// TaskUpdateInput contains parameters for the TaskUpdate operation.
// Nil fields are left untouched.
type TaskUpdateInput struct {
	ID          string
	Title       *string
	Description *string
	Category    *string
	Verified    *bool
}

// TaskUpdateOutput contains the result of the TaskUpdate operation.
type TaskUpdateOutput struct {
	Task *activity.Task `json:"task"`
}

// TaskUpdate edits a task's user-facing fields and returns the fresh
// row. The category is normalized the same way analysis results are.
func TaskUpdate(database *sql.DB, input TaskUpdateInput) (*TaskUpdateOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("task id is required")
	}
	if input.Title == nil && input.Description == nil && input.Category == nil && input.Verified == nil {
		return nil, errors.NewInvalidRequest("no fields to update")
	}

	upd := db.TaskUpdate{
		Description: input.Description,
		Verified:    input.Verified,
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errors.NewInvalidRequest("title must not be empty")
		}
		upd.Title = &title
	}
	if input.Category != nil {
		category := activity.NormalizeCategory(*input.Category)
		if category == "" {
			return nil, errors.NewInvalidRequest("category must not be empty")
		}
		upd.Category = &category
	}

	if err := db.UpdateTask(database, id, upd); err != nil {
		return nil, err
	}

	task, err := db.GetTask(database, id)
	if err != nil {
		return nil, err
	}
	return &TaskUpdateOutput{Task: task}, nil
}

// TaskDeleteInput contains parameters for the TaskDelete operation.
type TaskDeleteInput struct {
	ID string
}

// TaskDeleteOutput contains the result of the TaskDelete operation.
type TaskDeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// TaskDelete removes a task. Its screenshots keep their rows and files
// and become unanalyzed again, so a later pass can redo them.
func TaskDelete(database *sql.DB, input TaskDeleteInput) (*TaskDeleteOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("task id is required")
	}
	if err := db.DeleteTask(database, id); err != nil {
		return nil, err
	}
	return &TaskDeleteOutput{Deleted: true, ID: id}, nil
}
