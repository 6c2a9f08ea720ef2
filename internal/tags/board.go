// Package tags reads the board listings that carry per-story status tags
// (delay, risk, ...) produced by the board agent.
package tags

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StoryTags is one story entry of a board listing.
type StoryTags struct {
	Key     string              `json:"key"`
	Summary string              `json:"summary"`
	Status  string              `json:"status"`
	Tags    map[string][]string `json:"tags"`
}

// ParseBoardResponse parses a board listing: a JSON array of stories,
// optionally wrapped in a markdown code fence. Entries without a key or
// without a tags object are skipped.
func ParseBoardResponse(text string) ([]StoryTags, error) {
	text = stripFence(strings.TrimSpace(text))
	if text == "" {
		return nil, fmt.Errorf("empty board listing")
	}

	var entries []StoryTags
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return nil, fmt.Errorf("parsing board listing: %w", err)
	}

	out := entries[:0]
	for _, e := range entries {
		e.Key = strings.TrimSpace(e.Key)
		if e.Key == "" || e.Tags == nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// stripFence returns the body of the first ``` fenced block, or text
// unchanged when there is none.
func stripFence(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	lines := strings.Split(text[start:], "\n")
	endIdx := len(lines)
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}

// Decode parses a stored tag map. Anything unreadable yields nil.
func Decode(blob []byte) map[string][]string {
	var m map[string][]string
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil
	}
	return m
}

// Encode serializes a tag map for storage.
func Encode(m map[string][]string) ([]byte, error) {
	if m == nil {
		m = map[string][]string{}
	}
	return json.Marshal(m)
}
