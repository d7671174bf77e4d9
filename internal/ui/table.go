package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/microrun/internal/project"
)

var tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"})

// PrintProjects writes one row per tracked project.
func PrintProjects(w io.Writer, list []project.Snapshot) {
	if len(list) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no projects tracked"))
		return
	}
	styles := DefaultStyles()

	fmt.Fprintln(w, tableHeaderStyle.Render(fmt.Sprintf("    %-24s %-18s %-10s %s", "PROJECT", "PROFILE", "STATE", "PATH")))
	for _, p := range list {
		check := "[ ]"
		if p.BatchSelected {
			check = "[x]"
		}
		profile := p.SelectedProfile
		if profile == "" {
			profile = "-"
		}
		state := p.State.String()
		if p.State == project.Running && p.PID > 0 {
			state = fmt.Sprintf("%s %d", state, p.PID)
		}
		fmt.Fprintf(w, "%s %-24s %-18s %-10s %s\n", check, truncate(p.Name(), 24), truncate(profile, 18), state, styles.Dim.Render(p.FilePath))
		if p.Err != nil {
			fmt.Fprintln(w, "    "+styles.StateError.Render(Describe(p.Err)))
		}
	}
}

// PrintProfiles writes the profile names of a project, marking the selected
// one.
func PrintProfiles(w io.Writer, p project.Snapshot, describe func(name string) string) {
	if len(p.Profiles) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no launch profiles"))
		return
	}
	for _, name := range p.Profiles {
		marker := "  "
		if name == p.SelectedProfile {
			marker = successStyle.Render("* ")
		}
		line := marker + name
		if describe != nil {
			if extra := strings.TrimSpace(describe(name)); extra != "" {
				line += "  " + dimStyle.Render(extra)
			}
		}
		fmt.Fprintln(w, line)
	}
}
