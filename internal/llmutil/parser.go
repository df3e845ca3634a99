// Package llmutil contains helpers for digesting raw LLM replies.
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Regexes use \x60 for backticks because Go raw strings cannot contain them.

	// jsonObjectRegex extracts a JSON object wrapped in a markdown fence.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array wrapped in a markdown fence.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse parses an LLM reply into the target type, tolerating
// the usual formatting noise: markdown code fences and conversational
// text before or after the JSON payload.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	jsonStringToParse := response

	// 1. Markdown fences, the most common wrapping.
	if strings.HasPrefix(response, "```") {
		var matches []string
		if strings.Contains(response, "{") {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && strings.Contains(response, "[") {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			jsonStringToParse = matches[1]
		}
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStringToParse), &result); err == nil {
		return &result, nil
	}

	// 2. JSON buried in conversational text. A balanced scan from the
	// first opener ignores stray brackets in the surrounding prose and
	// trailing commentary after the payload.
	extracted := jsonStringToParse
	for _, pair := range []struct{ open, close byte }{{'{', '}'}, {'[', ']'}} {
		candidate := firstBalanced(jsonStringToParse, pair.open, pair.close)
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), &result); err == nil {
			return &result, nil
		}
		extracted = candidate
	}

	err := json.Unmarshal([]byte(extracted), &result)
	return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, TruncateString(extracted, 500))
}

// firstBalanced returns the first balanced open..close substring of s,
// skipping brackets inside JSON string literals, or "" when none closes.
func firstBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
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
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// TruncateString truncates a string to a maximum byte length for error
// messages and logs.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
