// Package json provides JSON extraction utilities for parsing LLM responses.
//
// Summarization collaborators often return JSON wrapped in markdown fences
// or surrounded by commentary. This package pulls the JSON object out of
// such responses before unmarshalling.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extract finds and returns the JSON object portion of a response string.
// Handles:
// 1. Pure JSON responses
// 2. JSON wrapped in markdown code fences (```json ... ```)
// 3. A JSON object embedded in prose (first '{' to last '}')
//
// Only objects are handled, and brace matching is textual, so responses
// with unbalanced braces inside strings can defeat it.
func Extract(response string) (string, error) {
	response = stripCodeFences(response)

	var probe any
	if err := json.Unmarshal([]byte(response), &probe); err == nil {
		return response, nil
	}

	start := strings.Index(response, "{")
	if start != -1 {
		end := strings.LastIndex(response, "}")
		if end > start {
			candidate := response[start : end+1]
			if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
				return candidate, nil
			}
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON object in response: %q", preview)
}

// Unmarshal extracts the JSON object from a response and unmarshals it
// into T.
func Unmarshal[T any](response string) (T, error) {
	var result T
	jsonStr, err := Extract(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return result, nil
}

func stripCodeFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}
