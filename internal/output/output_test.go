package output

import (
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/require"
)

var sampleAgents = []AgentRow{
	{Name: "product-owner", Endpoint: "http://localhost:10001", Executor: "echo", Skills: []string{"refine", "prioritise"}},
	{Name: "developer", Endpoint: "http://localhost:10002", Executor: "relay"},
}

var sampleProbes = []ProbeResult{
	{Name: "product-owner", Endpoint: "http://localhost:10001", Status: ProbeHealthy, HTTPCode: 200},
	{Name: "developer", Endpoint: "http://localhost:10002", Status: ProbeUnhealthy, HTTPCode: 503},
	{Name: "qa", Endpoint: "http://localhost:10003", Status: ProbeNotRunning},
	{Name: "ops", Endpoint: "http://localhost:10004", Status: ProbeError, Detail: "timeout"},
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestFormatAgents(t *testing.T) {
	tableRendered, err := NewFormatter(FormatTable).FormatAgents(sampleAgents)
	require.NoError(t, err)
	require.Contains(t, tableRendered, "ENDPOINT")
	require.Contains(t, tableRendered, "refine, prioritise")
	require.Contains(t, tableRendered, "2 agents")

	jsonRendered, err := NewFormatter(FormatJSON).FormatAgents(sampleAgents)
	require.NoError(t, err)
	require.Contains(t, jsonRendered, "\"name\": \"developer\"")

	markdownRendered, err := NewFormatter(FormatMarkdown).FormatAgents(sampleAgents)
	require.NoError(t, err)
	require.Contains(t, markdownRendered, "| Name | Endpoint | Executor | Skills |")
	require.Contains(t, markdownRendered, "| developer | http://localhost:10002 | relay |  |")
}

func TestFormatProbes(t *testing.T) {
	original := text.ANSICodesSupported
	text.ANSICodesSupported = false
	t.Cleanup(func() { text.ANSICodesSupported = original })

	tableRendered, err := NewFormatter(FormatTable).FormatProbes(sampleProbes)
	require.NoError(t, err)
	require.Contains(t, tableRendered, "unhealthy (HTTP 503)")
	require.Contains(t, tableRendered, "not running")
	require.Contains(t, tableRendered, "error: timeout")
	require.Contains(t, tableRendered, "1/4 healthy")

	markdownRendered, err := NewFormatter(FormatMarkdown).FormatProbes(sampleProbes)
	require.NoError(t, err)
	require.Contains(t, markdownRendered, "(1/4 healthy)")

	jsonRendered, err := (&JSONFormatter{}).FormatProbes(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", jsonRendered)
}

func TestMarkdownEscaping(t *testing.T) {
	rendered, err := NewFormatter(FormatMarkdown).FormatAgents([]AgentRow{{Name: "pipe|test", Executor: "echo"}})
	require.NoError(t, err)
	require.Contains(t, rendered, "pipe\\|test")
}

func TestProbeLabel(t *testing.T) {
	require.Equal(t, "healthy", ProbeResult{Status: ProbeHealthy}.Label())
	require.Equal(t, "error", ProbeResult{Status: ProbeError}.Label())
	require.Equal(t, 1, Healthy(sampleProbes))
}
