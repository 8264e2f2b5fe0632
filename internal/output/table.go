package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter renders listings as an ASCII table.
type TableFormatter struct{}

// FormatAgents renders agent definitions as a table.
func (f *TableFormatter) FormatAgents(rows []AgentRow) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "Endpoint", "Executor", "Skills"})

	for _, r := range rows {
		t.AppendRow(table.Row{r.Name, r.Endpoint, r.Executor, strings.Join(r.Skills, ", ")})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d agents", len(rows))})

	return t.Render(), nil
}

// FormatProbes renders health probe results as a table.
func (f *TableFormatter) FormatProbes(results []ProbeResult) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Agent", "Endpoint", "Status"})

	for _, r := range results {
		t.AppendRow(table.Row{r.Name, r.Endpoint, colorize(r)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d healthy", Healthy(results), len(results))})

	return t.Render(), nil
}

func colorize(r ProbeResult) string {
	label := r.Label()
	if text.ANSICodesSupported {
		switch r.Status {
		case ProbeHealthy:
			return text.FgGreen.Sprint(label)
		case ProbeNotRunning:
			return text.FgYellow.Sprint(label)
		default:
			return text.FgRed.Sprint(label)
		}
	}
	return label
}
