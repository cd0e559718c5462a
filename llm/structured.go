package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedJSON is returned when a structured answer holds no decodable JSON object.
var ErrMalformedJSON = errors.New("llm: malformed JSON output")

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// SplitReasoning separates <think>...</think> blocks from the visible answer.
// An unterminated block is treated as reasoning up to the end of the text.
func SplitReasoning(text string) (answer, reasoning string) {
	var parts []string
	answer = thinkBlock.ReplaceAllStringFunc(text, func(m string) string {
		parts = append(parts, strings.TrimSpace(m[len("<think>"):len(m)-len("</think>")]))
		return ""
	})
	if i := strings.Index(answer, "<think>"); i >= 0 {
		parts = append(parts, strings.TrimSpace(answer[i+len("<think>"):]))
		answer = answer[:i]
	}
	return strings.TrimSpace(answer), strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// StripFences removes a surrounding markdown code fence such as ```json ... ```.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// DecodeJSON extracts the JSON object from a raw model answer and unmarshals it into out.
// Reasoning blocks, code fences and prose around the object are tolerated.
func DecodeJSON(raw string, out any) error {
	answer, _ := SplitReasoning(raw)
	body := StripFences(answer)
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return fmt.Errorf("%w: no object in %q", ErrMalformedJSON, preview(body))
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return s
}
