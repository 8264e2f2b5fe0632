package a2a

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractText turns a decoded JSON-RPC result into reply text. In order it
// prefers the text parts of result.artifacts[].parts[] joined by newlines,
// then result.text, then a rendering of the whole result. A part counts as
// text when its kind is "text" or it carries a "text" key.
func ExtractText(result any) string {
	obj, _ := result.(map[string]any)

	var texts []string
	found := false
	artifacts, _ := obj["artifacts"].([]any)
	for _, rawArtifact := range artifacts {
		artifact, ok := rawArtifact.(map[string]any)
		if !ok {
			continue
		}
		parts, _ := artifact["parts"].([]any)
		for _, rawPart := range parts {
			part, ok := rawPart.(map[string]any)
			if !ok {
				continue
			}
			text, hasText := part["text"]
			if part["kind"] == "text" || hasText {
				found = true
				texts = append(texts, render(text, ""))
			}
		}
	}
	if found {
		return strings.Join(texts, "\n")
	}

	if text, ok := obj["text"]; ok {
		return render(text, "")
	}

	if result == nil {
		return "{}"
	}
	return render(result, "{}")
}

// render formats a JSON value as text: strings verbatim, everything else as JSON.
func render(value any, ifNil string) string {
	switch v := value.(type) {
	case nil:
		return ifNil
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
