package tui

import "strings"

// Severity classifies a streamed output line for display.
type Severity int

const (
	SevInfo Severity = iota
	SevError
	SevSuccess
	SevCmd
)

type logLine struct {
	text string
	sev  Severity
}

// classifyLine tags build output so failures stand out in the log pane.
func classifyLine(line string) Severity {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "fatal") || strings.Contains(lower, "error"):
		return SevError
	case strings.Contains(lower, "installed") || strings.Contains(lower, "complete"):
		return SevSuccess
	default:
		return SevInfo
	}
}

func (l logLine) render() string {
	switch l.sev {
	case SevError:
		return errorStyle.Render(l.text)
	case SevSuccess:
		return successStyle.Render(l.text)
	case SevCmd:
		return cmdStyle.Render(l.text)
	default:
		return l.text
	}
}
