package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/goindexq/internal/queue"
)

// table renders aligned columns. Widths are measured in terminal cells so
// page titles with wide characters stay aligned.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], visibleWidth(cell))
			}
		}
	}

	writeRow := func(cells []string) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-visibleWidth(cell))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	writeRow(t.headers)
	sep := make([]string, len(widths))
	for i, width := range widths {
		sep[i] = strings.Repeat("-", width)
	}
	writeRow(sep)
	for _, row := range t.rows {
		writeRow(row)
	}
}

// visibleWidth measures a cell without its color codes.
func visibleWidth(s string) int {
	return runewidth.StringWidth(color.ClearCode(s))
}

func colorState(state queue.State) string {
	switch state {
	case queue.StateFailed:
		return color.Red.Sprint(state.String())
	case queue.StateSuccess:
		return color.Green.Sprint(state.String())
	default:
		return color.Yellow.Sprint(state.String())
	}
}

// formatPercentage renders a percentage with two decimals.
func formatPercentage(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}
