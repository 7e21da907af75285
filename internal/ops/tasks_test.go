package ops

import (
	"fmt"
	"testing"

	"github.com/rfontain/glimpse/internal/errors"
)

func TestTasksList_NewestFirstWithDefaultLimit(t *testing.T) {
	database := newTestDB(t)

	for i := 0; i < DefaultTaskLimit+5; i++ {
		seedTask(t, database, fmt.Sprintf("Task %02d", i))
	}

	out, err := TasksList(database, TasksListInput{})
	if err != nil {
		t.Fatalf("TasksList failed: %v", err)
	}
	if out.Count != DefaultTaskLimit {
		t.Fatalf("Count = %d, want default limit %d", out.Count, DefaultTaskLimit)
	}
	if out.Tasks[0].Title != fmt.Sprintf("Task %02d", DefaultTaskLimit+4) {
		t.Errorf("first task = %q, want the newest", out.Tasks[0].Title)
	}
}

func TestTasksList_LimitClamped(t *testing.T) {
	database := newTestDB(t)
	seedTask(t, database, "Only task")

	out, err := TasksList(database, TasksListInput{Limit: MaxTaskLimit + 50})
	if err != nil {
		t.Fatalf("TasksList failed: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Count = %d, want 1", out.Count)
	}
}

func TestTasksList_SessionScope(t *testing.T) {
	database := newTestDB(t)

	sessA := seedSession(t, database, "2026-08-25T09:00:00")
	sessB := seedSession(t, database, "2026-08-25T11:00:00")
	shotA := seedShot(t, database, "", sessA, "2026-08-25T09:00:30")
	shotB := seedShot(t, database, "", sessB, "2026-08-25T11:00:30")
	seedTask(t, database, "In A", shotA.ID)
	seedTask(t, database, "In B", shotB.ID)

	out, err := TasksList(database, TasksListInput{SessionID: &sessA})
	if err != nil {
		t.Fatalf("TasksList failed: %v", err)
	}
	if out.Count != 1 || out.Tasks[0].Title != "In A" {
		t.Errorf("Tasks = %+v, want only the session A task", out.Tasks)
	}
}

func TestTaskUpdate(t *testing.T) {
	database := newTestDB(t)
	id := seedTask(t, database, "Rough title")

	verified := true
	out, err := TaskUpdate(database, TaskUpdateInput{
		ID:       id,
		Title:    stringPtr("  Polished title  "),
		Category: stringPtr("WRITING"),
		Verified: &verified,
	})
	if err != nil {
		t.Fatalf("TaskUpdate failed: %v", err)
	}
	if out.Task.Title != "Polished title" {
		t.Errorf("Title = %q, want trimmed title", out.Task.Title)
	}
	if out.Task.Category == nil || *out.Task.Category != "writing" {
		t.Errorf("Category = %v, want normalized writing", out.Task.Category)
	}
	if !out.Task.Verified {
		t.Error("Verified = false, want true")
	}
}

func TestTaskUpdate_UnknownCategoryCollapsesToOther(t *testing.T) {
	database := newTestDB(t)
	id := seedTask(t, database, "A task")

	out, err := TaskUpdate(database, TaskUpdateInput{ID: id, Category: stringPtr("gaming")})
	if err != nil {
		t.Fatalf("TaskUpdate failed: %v", err)
	}
	if out.Task.Category == nil || *out.Task.Category != "other" {
		t.Errorf("Category = %v, want other", out.Task.Category)
	}
}

func TestTaskUpdate_Errors(t *testing.T) {
	database := newTestDB(t)
	id := seedTask(t, database, "A task")

	if _, err := TaskUpdate(database, TaskUpdateInput{ID: ""}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("blank id should be invalid, got: %v", err)
	}
	if _, err := TaskUpdate(database, TaskUpdateInput{ID: id}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("no fields should be invalid, got: %v", err)
	}
	if _, err := TaskUpdate(database, TaskUpdateInput{ID: id, Title: stringPtr("   ")}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("blank title should be invalid, got: %v", err)
	}
	if _, err := TaskUpdate(database, TaskUpdateInput{ID: "nonexistent", Title: stringPtr("x")}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown id should be not found, got: %v", err)
	}
}

func TestTaskDelete(t *testing.T) {
	database := newTestDB(t)

	sess := seedSession(t, database, "2026-08-25T10:00:00")
	shot := seedShot(t, database, "", sess, "2026-08-25T10:00:30")
	id := seedTask(t, database, "Doomed", shot.ID)

	out, err := TaskDelete(database, TaskDeleteInput{ID: id})
	if err != nil {
		t.Fatalf("TaskDelete failed: %v", err)
	}
	if !out.Deleted || out.ID != id {
		t.Errorf("output = %+v", out)
	}

	// The screenshot is pending again.
	pending, err := PendingList(database, PendingListInput{SessionID: &sess})
	if err != nil {
		t.Fatalf("PendingList failed: %v", err)
	}
	if pending.Count != 1 || pending.Screenshots[0].ID != shot.ID {
		t.Errorf("pending = %+v, want the unlinked screenshot", pending.Screenshots)
	}

	if _, err := TaskDelete(database, TaskDeleteInput{ID: id}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("double delete should be not found, got: %v", err)
	}
}
