package llm

import (
	"encoding/json"
	"log/slog"
	"strings"
	"unicode"
)

// ParseResult is the outcome of a defensive JSON extraction. It is a
// result value, not an error: callers branch on OK and fall back.
type ParseResult[T any] struct {
	OK   bool
	Data T
	Err  string
}

// Parse extracts one JSON object (or array) from free-form model output.
//
// Strategy sequence:
//  1. Strip non-printable control characters.
//  2. Direct parse of the trimmed text.
//  3. Remove markdown code fences and retry.
//  4. Locate the first balanced {...} or [...] block and parse that.
func Parse[T any](text string) ParseResult[T] {
	cleaned := stripControl(text)
	trimmed := strings.TrimSpace(cleaned)
	if trimmed == "" {
		return ParseResult[T]{Err: "empty response"}
	}

	if data, err := tryParse[T](trimmed); err == nil {
		return ParseResult[T]{OK: true, Data: data}
	}

	unfenced := stripCodeFences(trimmed)
	if unfenced != trimmed {
		if data, err := tryParse[T](unfenced); err == nil {
			return ParseResult[T]{OK: true, Data: data}
		}
	}

	if block := firstBalancedBlock(unfenced); block != "" {
		if data, err := tryParse[T](block); err == nil {
			return ParseResult[T]{OK: true, Data: data}
		}
	}

	return ParseResult[T]{Err: "no parseable JSON in response"}
}

// ParseOrFallback parses and substitutes fallback on any failure, logging
// at debug level. This is the boundary contract: parse failures never
// propagate into caller logic.
func ParseOrFallback[T any](text string, fallback T, context string) T {
	result := Parse[T](text)
	if result.OK {
		return result.Data
	}
	slog.Debug("LLM response parse failed, using fallback",
		"context", context,
		"error", result.Err,
		"preview", preview(text, 120))
	return fallback
}

func tryParse[T any](text string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(text), &out)
	return out, err
}

// stripControl removes non-printable control characters while keeping
// newlines and tabs, which the balanced-block scan tolerates.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// stripCodeFences removes a wrapping ```json ... ``` (or bare ```) fence.
func stripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	start := strings.Index(s, "```")
	rest := s[start+3:]
	// Drop an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || isLanguageTag(firstLine) {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func isLanguageTag(s string) bool {
	switch strings.ToLower(s) {
	case "json", "javascript", "js":
		return true
	}
	return false
}

// firstBalancedBlock scans for the first brace- or bracket-balanced JSON
// block, respecting string literals and escapes. Returns "" if none closes.
func firstBalancedBlock(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	open := s[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
