package report

import (
	"regexp"
	"strings"
)

// UnknownCycle is used when a report has no outer header to take the cycle
// identifier from.
const UnknownCycle = "Unknown_Sprint"

// summaryMarkers introduce the summary block. The first is what current
// generators emit.
var summaryMarkers = []string{
	"**📝 最新情况摘要**:",
	"**📝 Latest Summary**:",
}

var reRule = regexp.MustCompile(`^[ \t]*(?:-{3,}|\*{3,}|_{3,})[ \t]*$`)

// Metadata is derived once per parse.
type Metadata struct {
	CycleID       string
	CycleResolved bool
	Summary       *string
}

// ExtractCycleID returns the identifier from the first outer header. When no
// such line exists it returns UnknownCycle and false.
func ExtractCycleID(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		c := Classify(line)
		if c.Role == RoleOuterHeader {
			return c.CycleID, true
		}
	}
	return UnknownCycle, false
}

// ExtractSummary returns the block following a summary marker line, up to
// the next standalone rule line.
func ExtractSummary(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !isSummaryMarker(line) {
			continue
		}
		var block []string
		for _, l := range lines[i+1:] {
			if reRule.MatchString(l) {
				break
			}
			block = append(block, strings.TrimRight(l, "\r"))
		}
		summary := strings.TrimSpace(strings.Join(block, "\n"))
		if summary == "" {
			return "", false
		}
		return summary, true
	}
	return "", false
}

func isSummaryMarker(line string) bool {
	line = strings.TrimSpace(line)
	for _, m := range summaryMarkers {
		if strings.HasSuffix(line, m) {
			return true
		}
	}
	return false
}

// Extract runs both metadata extractors.
func Extract(text string) Metadata {
	md := Metadata{}
	md.CycleID, md.CycleResolved = ExtractCycleID(text)
	if s, ok := ExtractSummary(text); ok {
		md.Summary = &s
	}
	return md
}
