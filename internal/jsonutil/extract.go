// Package jsonutil extracts JSON payloads from model output that may be
// wrapped in prose or markdown fences.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeFencePattern = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n```")

// Extract returns the first JSON object or array found in text.
// Fenced ```json blocks are preferred; otherwise the first balanced
// {...} or [...] span is taken, tolerating surrounding prose.
func Extract(text string) (string, error) {
	for _, match := range codeFencePattern.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(match[1])
		if lang != "" && lang != "json" {
			continue
		}
		content := strings.TrimSpace(match[2])
		if isValid(content) {
			return content, nil
		}
	}

	if span, ok := balancedSpan(text); ok {
		return span, nil
	}
	return "", fmt.Errorf("no valid JSON found in text")
}

// ExtractObject unmarshals the first JSON object in text into a map.
func ExtractObject(text string) (map[string]any, error) {
	span, err := Extract(text)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return obj, nil
}

func balancedSpan(text string) (string, bool) {
	startObj := strings.IndexByte(text, '{')
	startArr := strings.IndexByte(text, '[')

	start := -1
	var closer byte = '}'
	if startObj >= 0 && (startArr < 0 || startObj < startArr) {
		start = startObj
	} else if startArr >= 0 {
		start = startArr
		closer = ']'
	}
	if start < 0 {
		return "", false
	}

	span := matchBracket(text[start:], closer)
	if span != "" && isValid(span) {
		return span, true
	}
	return "", false
}

// matchBracket scans for the closing bracket that balances s[0],
// skipping brackets inside string literals.
func matchBracket(s string, closer byte) string {
	if len(s) == 0 {
		return ""
	}
	opener := s[0]
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func isValid(s string) bool {
	var raw json.RawMessage
	return json.Unmarshal([]byte(s), &raw) == nil
}
