package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hylla/lcarev/internal/revision"
)

var (
	accentColor = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("241")

	revisionIDStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	labelStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle     = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle       = lipgloss.NewStyle().Padding(0, 1)
)

// printTable renders rows under headers.
func printTable(out io.Writer, headers []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, labelStyle.Render("no records"))
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(mutedColor)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	_, err := fmt.Fprintln(out, t.Render())
	return err
}

// printRevision writes one log entry.
func printRevision(out io.Writer, rev revision.Revision) error {
	var b strings.Builder
	b.WriteString(revisionIDStyle.Render("revision " + rev.ID().String()))
	if rev.Metadata.HasParent() {
		b.WriteString(labelStyle.Render(" (parent " + rev.Metadata.ParentID().String() + ")"))
	} else {
		b.WriteString(labelStyle.Render(" (root)"))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "authors: %s\n", rev.Metadata.Authors)
	fmt.Fprintf(&b, "title: %s\n", rev.Metadata.Title)
	if desc := strings.TrimSpace(rev.Metadata.Description); desc != "" {
		for _, line := range strings.Split(desc, "\n") {
			b.WriteString("    " + line + "\n")
		}
	}
	fmt.Fprintf(&b, "deltas: %s\n\n", summarizeDeltas(rev.Data))
	_, err := io.WriteString(out, b.String())
	return err
}

// summarizeDeltas counts deltas per record kind, e.g. "activity=2 exchange=1".
func summarizeDeltas(deltas []revision.Delta) string {
	if len(deltas) == 0 {
		return "none"
	}
	counts := map[string]int{}
	for _, d := range deltas {
		counts[string(revision.NormalizeKind(d.Kind))]++
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, counts[kind]))
	}
	return strings.Join(parts, " ")
}
