// Package output renders CLI listings as tables, JSON or markdown.
package output

import (
	"fmt"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// AgentRow is one line of `agents list`.
type AgentRow struct {
	Name     string   `json:"name"`
	Endpoint string   `json:"endpoint"`
	Executor string   `json:"executor"`
	Skills   []string `json:"skills,omitempty"`
}

// ProbeStatus classifies a health probe.
type ProbeStatus string

const (
	ProbeHealthy    ProbeStatus = "healthy"
	ProbeUnhealthy  ProbeStatus = "unhealthy"
	ProbeNotRunning ProbeStatus = "not_running"
	ProbeError      ProbeStatus = "error"
)

// ProbeResult is one line of `status`.
type ProbeResult struct {
	Name     string      `json:"name"`
	Endpoint string      `json:"endpoint"`
	Status   ProbeStatus `json:"status"`
	HTTPCode int         `json:"http_code,omitempty"`
	Detail   string      `json:"detail,omitempty"`
}

// Label is the human form of the probe outcome, e.g. "unhealthy (HTTP 503)".
func (p ProbeResult) Label() string {
	switch p.Status {
	case ProbeUnhealthy:
		return fmt.Sprintf("unhealthy (HTTP %d)", p.HTTPCode)
	case ProbeNotRunning:
		return "not running"
	case ProbeError:
		if p.Detail != "" {
			return "error: " + p.Detail
		}
		return "error"
	default:
		return string(p.Status)
	}
}

// Formatter renders listings.
type Formatter interface {
	FormatAgents(rows []AgentRow) (string, error)
	FormatProbes(results []ProbeResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Healthy counts healthy probes.
func Healthy(results []ProbeResult) int {
	n := 0
	for _, r := range results {
		if r.Status == ProbeHealthy {
			n++
		}
	}
	return n
}
