package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	errEmptyResponse = errors.New("empty response content")
	errNotObject     = errors.New("response is not a JSON object")
)

// StripFences removes surrounding whitespace and a Markdown code fence
// (``` or ```json) around a model response.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Drop the info string (e.g. "json") up to the first newline.
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		if info := strings.TrimSpace(text[:newline]); !strings.ContainsAny(info, "{[") {
			text = text[newline+1:]
		}
	} else {
		text = strings.TrimPrefix(strings.TrimSpace(text), "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseObject extracts the single JSON object held in raw.
func parseObject(raw string) (string, map[string]any, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return "", nil, errEmptyResponse
	}
	if !strings.HasPrefix(cleaned, "{") {
		return cleaned, nil, errNotObject
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return cleaned, nil, fmt.Errorf("decode response: %w", err)
	}
	if obj == nil {
		return cleaned, nil, errNotObject
	}
	return cleaned, obj, nil
}
