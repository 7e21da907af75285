package activity

import (
	"fmt"
	"strings"
)

// BuildReport renders a markdown report for a capture session and the
// tasks inferred during it. The same markdown backs the `report` command
// and the web dashboard's session detail page.
func BuildReport(session *CaptureSession, tasks []Task) string {
	var b strings.Builder

	title := session.ID
	if session.Title != nil && *session.Title != "" {
		title = *session.Title
	}
	fmt.Fprintf(&b, "# Session: %s\n\n", title)

	fmt.Fprintf(&b, "- Started: %s\n", session.StartedAt)
	if session.EndedAt != nil {
		fmt.Fprintf(&b, "- Ended: %s\n", *session.EndedAt)
	} else {
		b.WriteString("- Ended: still capturing\n")
	}
	fmt.Fprintf(&b, "- Screenshots: %d (%d unanalyzed)\n", session.ScreenshotCount, session.UnanalyzedCount)
	if session.Description != nil && *session.Description != "" {
		fmt.Fprintf(&b, "- Intent: %s\n", *session.Description)
	}

	b.WriteString("\n## Tasks\n\n")
	if len(tasks) == 0 {
		b.WriteString("No tasks inferred yet.\n")
		return b.String()
	}

	for i, task := range tasks {
		fmt.Fprintf(&b, "### %d. %s", i+1, task.Title)
		if task.Category != nil && *task.Category != "" {
			fmt.Fprintf(&b, " `%s`", *task.Category)
		}
		b.WriteString("\n\n")

		window := task.StartedAt
		if task.EndedAt != nil {
			window += " to " + *task.EndedAt
		}
		fmt.Fprintf(&b, "- Window: %s\n", window)
		if task.Verified {
			b.WriteString("- Verified by user\n")
		}
		if task.Description != nil && *task.Description != "" {
			fmt.Fprintf(&b, "\n%s\n", *task.Description)
		}
		if task.Reasoning != nil && *task.Reasoning != "" {
			fmt.Fprintf(&b, "\n> %s\n", *task.Reasoning)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
