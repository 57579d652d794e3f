package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cutty/internal/project"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ff5fd2"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ff5f")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff005f")).
			Bold(true)

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5fd7ff"))

	faintStyle = lipgloss.NewStyle().
			Faint(true).
			Foreground(lipgloss.Color("#a8a8a8"))

	listStyle = lipgloss.NewStyle().
			PaddingLeft(2)
)

func renderSuccess(format string, args ...any) string {
	return successStyle.Render("✓") + " " + fmt.Sprintf(format, args...)
}

// renderError formats err for the terminal. Merge conflicts list the
// affected paths and the commands that resolve them.
func renderError(err error) string {
	var conflict *project.MergeConflictError
	if !errors.As(err, &conflict) {
		return errorStyle.Render("Error:") + " " + err.Error()
	}

	var b strings.Builder
	b.WriteString(errorStyle.Render("Merge conflicts:"))
	b.WriteString("\n")
	var items []string
	for _, path := range conflict.Paths {
		items = append(items, pathStyle.Render(path))
	}
	b.WriteString(listStyle.Render(strings.Join(items, "\n")))
	b.WriteString("\n")
	b.WriteString(faintStyle.Render("Resolve the conflicts, then run \"cutty update --continue\". Use --skip or --abort to give up."))
	return b.String()
}
