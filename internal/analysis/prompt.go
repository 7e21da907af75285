package analysis

import (
	"fmt"
	"strings"
)

// responseShape is the inline JSON instruction for providers without
// structured-output support. Left unclosed so the multi-monitor prompt
// can append the monitor_summaries example before the final brace.
const responseShape = `{"task_title": "short title", "task_description": "what they're doing", ` +
	`"category": "coding|browsing|writing|communication|design|other", ` +
	`"reasoning": "why you think this", "is_new_task": true/false`

// singlePrompt is the one-image prompt with the JSON shape inline.
func singlePrompt(req Request) string {
	var b strings.Builder
	writeSingleIntro(&b, req)
	b.WriteString("Respond with JSON only, no other text:\n")
	b.WriteString(responseShape)
	b.WriteString("}")
	return b.String()
}

// multiPrompt is the multi-monitor prompt with the JSON shape inline,
// extended with a monitor_summaries example keyed by display name.
func multiPrompt(req Request) string {
	var b strings.Builder
	writeMultiIntro(&b, req)
	b.WriteString("Analyze what the user is doing across all monitors. Focus on the changed monitor(s) — a change on any monitor may indicate a task switch.\n\n")
	b.WriteString("Respond with JSON only, no other text:\n")
	b.WriteString(responseShape)
	b.WriteString(`, "monitor_summaries": {`)
	for i, name := range req.monitorNames() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `%q: "1-sentence description"`, name)
	}
	b.WriteString("}}")
	return b.String()
}

// localSinglePrompt and localMultiPrompt are the variants for
// providers that receive the response schema in a structured format
// field instead of inline prompt text.
func localSinglePrompt(req Request) string {
	var b strings.Builder
	writeSingleIntro(&b, req)
	b.WriteString("Respond with JSON matching the schema provided in the format field.")
	return b.String()
}

func localMultiPrompt(req Request) string {
	var b strings.Builder
	writeMultiIntro(&b, req)
	b.WriteString("Analyze what the user is doing across all monitors. Focus on the changed monitor(s).\n\n")
	b.WriteString("Respond with JSON matching the schema provided in the format field.")
	return b.String()
}

func writeSingleIntro(b *strings.Builder, req Request) {
	if req.SessionDesc != nil {
		fmt.Fprintf(b, "The user is working on: %s. Look at this screenshot and briefly describe what specific step or subtask they are currently on.\n", *req.SessionDesc)
	} else {
		b.WriteString("Analyze this screenshot of a user's screen. Determine what task they are working on.\n")
	}
	b.WriteString(contextSection(req.Context))
}

func writeMultiIntro(b *strings.Builder, req Request) {
	fmt.Fprintf(b, "You are analyzing a multi-monitor desktop capture taken at a single moment.\nThe user has %d monitors.\n\n", req.TotalMonitors())

	b.WriteString("MONITORS WITH NEW SCREENSHOTS (images attached in order):\n")
	for i, img := range req.Images {
		primary := ""
		if img.Primary {
			primary = ", primary"
		}
		fmt.Fprintf(b, "- Monitor %q (%dx%d%s): see image %d\n", img.MonitorName, img.Width, img.Height, primary, i+1)
	}

	if len(req.Unchanged) > 0 {
		b.WriteString("\nUNCHANGED MONITORS (text summary from last capture):\n")
		for _, um := range req.Unchanged {
			fmt.Fprintf(b, "- Monitor %q: %s\n", um.Name, um.Summary)
		}
	}
	b.WriteString("\n")

	if req.SessionDesc != nil {
		fmt.Fprintf(b, "The user is working on: %s.\n", *req.SessionDesc)
	}
	b.WriteString(contextSection(req.Context))
}

// contextSection renders the rolling task history, most recent first.
// Empty history renders nothing.
func contextSection(contexts []string) string {
	if len(contexts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent task history (most recent first):\n")
	for i, line := range contexts {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, line)
	}
	b.WriteString("Use this context to decide if the current screenshot shows a continuation of a recent task or a new one.\n")
	return b.String()
}

// stripCodeFences removes a surrounding markdown code fence, if any.
// Models asked for JSON-only output still wrap it in ```json fences.
func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	if after, ok := strings.CutPrefix(cleaned, "```json"); ok {
		cleaned = after
	} else {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
