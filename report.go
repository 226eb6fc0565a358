package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/Cipahi/ng-toolkit/internal/model"
)

type styles struct {
	Header lipgloss.Style
	Create lipgloss.Style
	Modify lipgloss.Style
	Muted  lipgloss.Style
}

// newStyles binds styles to w so colors are dropped when w is not a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		Header: r.NewStyle().Bold(true),
		Create: r.NewStyle().Foreground(lipgloss.Color("2")),
		Modify: r.NewStyle().Foreground(lipgloss.Color("3")),
		Muted:  r.NewStyle().Faint(true),
	}
}

func writeText(w io.Writer, r *model.Report, dryRun bool) {
	s := newStyles(w)

	title := fmt.Sprintf("PWA support for %s", r.Project)
	if dryRun {
		title += " (dry run)"
	}
	_, _ = fmt.Fprintln(w, s.Header.Render(title))

	if r.ServerModule != "" {
		_, _ = fmt.Fprintf(w, "  server module  %s\n", r.ServerModule)
	}
	if r.Component != "" {
		_, _ = fmt.Fprintf(w, "  component      %s\n", r.Component)
	}

	if len(r.Changes) == 0 {
		_, _ = fmt.Fprintln(w, s.Muted.Render("  no files changed"))
	}
	for _, c := range r.Changes {
		op := s.Modify.Render("MODIFY")
		if c.Op == model.Create {
			op = s.Create.Render("CREATE")
		}
		_, _ = fmt.Fprintf(w, "  %s %s\n", op, c.Path)
	}

	for _, a := range r.Actions {
		dir := a.Directory
		if dir == "" {
			dir = "."
		}
		line := fmt.Sprintf("  then: %s in %s", a.Kind, dir)
		if dryRun {
			line += " (skipped)"
		}
		_, _ = fmt.Fprintln(w, s.Muted.Render(line))
	}
}
