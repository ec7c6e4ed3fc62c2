// Package report turns raw model output into stored report artifacts. It
// extracts the Markdown body from the model's JSON envelope and renders it to
// disk as Markdown and PDF.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	jsonFenceOpen = "```json"
	fenceClose    = "```"
)

// ParseError indicates the model response could not be decoded as the
// expected report envelope.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractReport pulls the Markdown report body out of a raw model response.
//
// Responses are expected to be a JSON array whose first element carries a
// "report_md" field, optionally wrapped in a ```json code fence. When the
// payload parses but does not match that shape, the full raw response is
// returned as the report body. A payload that fails to parse as JSON at all
// yields a *ParseError.
func ExtractReport(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)

	if strings.HasPrefix(candidate, jsonFenceOpen) {
		start := len(jsonFenceOpen)
		end := strings.LastIndex(candidate, fenceClose)
		if end > start {
			candidate = strings.TrimSpace(candidate[start:end])
		} else {
			// Opening fence with no closing fence leaves nothing to parse.
			candidate = ""
		}
	}

	var data any
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		return "", &ParseError{Err: err}
	}

	if list, ok := data.([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			if body, ok := first["report_md"].(string); ok {
				return body, nil
			}
		}
	}

	// Valid JSON in an unexpected shape: keep the whole response so nothing
	// the model produced is lost.
	return raw, nil
}
