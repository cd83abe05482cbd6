package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonCodeBlockRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// ExtractJSON extracts the first JSON array or object from a model response,
// unwrapping markdown code fences and closing a truncated value.
func ExtractJSON(s string) string {
	if matches := jsonCodeBlockRegex.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}

	open := rune(s[start])
	closeChar := ']'
	if open == '{' {
		closeChar = '}'
	}
	if end := findMatchingBracket(s, start, open, closeChar); end != -1 {
		return s[start : end+1]
	}
	return closeTruncated(s[start:])
}

// findMatchingBracket returns the index of the bracket closing s[startPos],
// ignoring brackets inside strings, or -1 if there is none.
func findMatchingBracket(s string, startPos int, openChar, closeChar rune) int {
	count := 0
	inString := false
	escaped := false

	for i := startPos; i < len(s); i++ {
		ch := rune(s[i])

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case openChar:
			count++
		case closeChar:
			count--
			if count == 0 {
				return i
			}
		}
	}

	return -1
}

// closeTruncated appends whatever closing quote and brackets a truncated value needs
func closeTruncated(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			stack = append(stack, '}')
		case ch == '[':
			stack = append(stack, ']')
		case (ch == '}' || ch == ']') && len(stack) > 0:
			stack = stack[:len(stack)-1]
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \n\r\t,")
	if strings.HasSuffix(out, ":") {
		out += "null"
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// countUnmatchedBraces counts opening brackets without a matching close, outside strings
func countUnmatchedBraces(s string, openChar, closeChar rune) int {
	count := 0
	inString := false
	escaped := false

	for _, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == openChar:
			count++
		case ch == closeChar && count > 0:
			count--
		}
	}
	return count
}

// SanitizeJSON escapes literal newlines that models leave inside string values
func SanitizeJSON(s string) string {
	var result strings.Builder
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			result.WriteByte(ch)
			escaped = false
			continue
		}

		switch {
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString && (ch == '\n' || ch == '\r'):
			result.WriteString("\\n")
			if ch == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}
		result.WriteByte(ch)
	}

	return result.String()
}

// FormatJSON extracts, repairs and indents the JSON value in a model response.
// It fails when no valid JSON can be recovered.
func FormatJSON(s string) (string, error) {
	candidate := SanitizeJSON(ExtractJSON(s))
	if !json.Valid([]byte(candidate)) {
		return "", fmt.Errorf("response does not contain valid JSON: %s", TruncateString(candidate, 80))
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(candidate), "", "  "); err != nil {
		return "", fmt.Errorf("failed to indent JSON: %w", err)
	}
	return buf.String(), nil
}
