package llmgateway

import "strings"

// stripMarkdownFences returns the inner content of a fenced code block when
// the entire text is one fence (```json ... ``` or ``` ... ```), otherwise
// returns text unchanged.
func stripMarkdownFences(text string) string {
	if text == "" {
		return ""
	}

	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return text
	}

	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return text
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		return text
	}

	endIdx := -1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx <= 0 {
		return text
	}

	inner := strings.Join(lines[1:endIdx], "\n")
	return strings.Trim(inner, "\n")
}

// extractFirstJSONSpan scans text for the first balanced top-level JSON
// object or array, respecting string/escape state, and returns its
// half-open [start, end) byte span. Returns ok=false if no balanced span is
// found.
func extractFirstJSONSpan(text string) (start, end int, ok bool) {
	if text == "" {
		return 0, 0, false
	}

	start = -1
	for i, ch := range text {
		if ch == '{' || ch == '[' {
			start = i
			break
		}
	}
	if start == -1 {
		return 0, 0, false
	}

	var stack []byte
	inString := false
	escape := false

	for j, ch := range text {
		if j < start {
			continue
		}

		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			continue
		}

		switch ch {
		case '{', '[':
			stack = append(stack, byte(ch))
		case '}', ']':
			if len(stack) == 0 {
				return 0, 0, false
			}
			opener := stack[len(stack)-1]
			expected := byte('}')
			if opener == '[' {
				expected = ']'
			}
			if byte(ch) != expected {
				return 0, 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return start, j + len(string(ch)), true
			}
		}
	}

	return 0, 0, false
}

// extractFirstJSONValue extracts the first top-level JSON object/array
// substring from text, or "" with ok=false if none is found.
func extractFirstJSONValue(text string) (string, bool) {
	start, end, ok := extractFirstJSONSpan(text)
	if !ok {
		return "", false
	}
	return text[start:end], true
}

// sanitizeJSONText escapes literal newlines/carriage-returns that occur
// inside JSON string literals, leaving everything else untouched. Models
// occasionally emit literal newlines inside string values, which breaks
// strict JSON parsing.
func sanitizeJSONText(raw string) string {
	if raw == "" {
		return ""
	}

	var out strings.Builder
	out.Grow(len(raw))
	inString := false
	escape := false

	for _, ch := range raw {
		if inString {
			if escape {
				out.WriteRune(ch)
				escape = false
				continue
			}
			if ch == '\\' {
				out.WriteRune(ch)
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
				out.WriteRune(ch)
				continue
			}
			if ch == '\n' {
				out.WriteString(`\n`)
				continue
			}
			if ch == '\r' {
				out.WriteString(`\r`)
				continue
			}
			out.WriteRune(ch)
			continue
		}

		if ch == '"' {
			inString = true
		}
		out.WriteRune(ch)
	}

	return out.String()
}

// repairJSON runs the full sanitize pipeline: strip fences, sanitize stray
// newlines in strings, then extract the first balanced JSON value.
func repairJSON(raw string) (string, bool) {
	stripped := stripMarkdownFences(raw)
	sanitized := sanitizeJSONText(stripped)
	return extractFirstJSONValue(sanitized)
}
