package output

import (
	"encoding/json"
)

// JSONFormatter renders listings as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatAgents renders agent rows as a JSON array.
func (f *JSONFormatter) FormatAgents(rows []AgentRow) (string, error) {
	if rows == nil {
		rows = []AgentRow{}
	}
	return f.marshal(rows)
}

// FormatProbes renders probe results as a JSON array.
func (f *JSONFormatter) FormatProbes(results []ProbeResult) (string, error) {
	if results == nil {
		results = []ProbeResult{}
	}
	return f.marshal(results)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
