package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders listings as markdown tables.
type MarkdownFormatter struct{}

// FormatAgents renders agent rows as Markdown.
func (f *MarkdownFormatter) FormatAgents(rows []AgentRow) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Agents\n\n")
	sb.WriteString("| Name | Endpoint | Executor | Skills |\n")
	sb.WriteString("|------|----------|----------|--------|\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(r.Name),
			escapeMarkdownCell(r.Endpoint),
			escapeMarkdownCell(r.Executor),
			escapeMarkdownCell(strings.Join(r.Skills, ", ")),
		))
	}

	return sb.String(), nil
}

// FormatProbes renders probe results as Markdown.
func (f *MarkdownFormatter) FormatProbes(results []ProbeResult) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Agent status (%d/%d healthy)\n\n", Healthy(results), len(results)))
	sb.WriteString("| Agent | Endpoint | Status |\n")
	sb.WriteString("|-------|----------|--------|\n")

	for _, r := range results {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			escapeMarkdownCell(r.Name),
			escapeMarkdownCell(r.Endpoint),
			escapeMarkdownCell(r.Label()),
		))
	}

	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}
