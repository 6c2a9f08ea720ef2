package report

import (
	"bufio"
	"io"
	"strings"
)

const maxLineSize = 1024 * 1024

// Stats counts how lines were classified during a parse.
type Stats struct {
	Lines   int
	Emitted int
	// Gaps counts item bullets dropped because user, item or date was unset.
	Gaps int
}

type parseState struct {
	user, itemID, title, date string
	records                   []ActivityRecord
	stats                     Stats
}

func (s *parseState) feed(line string) {
	s.stats.Lines++
	c := Classify(line)
	switch c.Role {
	case RoleUserHeader:
		s.user = c.User
	case RoleTaskHeader:
		s.itemID = c.ItemID
		s.title = c.Title
	case RoleDateMarker:
		s.date = c.Date
	case RoleItemBullet:
		if s.user == "" || s.itemID == "" || s.date == "" {
			s.stats.Gaps++
			return
		}
		rec := ActivityRecord{
			User:   s.user,
			ItemID: s.itemID,
			Date:   s.date,
			Tag:    c.Tag,
			Text:   c.Text,
		}
		if s.title != "" {
			title := s.title
			rec.ItemTitle = &title
		}
		s.records = append(s.records, rec)
		s.stats.Emitted++
	}
}

// Parse extracts activity records from report text in first-seen order.
func Parse(text string) []ActivityRecord {
	records, _ := ParseWithStats(text)
	return records
}

// ParseWithStats is Parse plus line statistics.
func ParseWithStats(text string) ([]ActivityRecord, Stats) {
	var s parseState
	for _, line := range strings.Split(text, "\n") {
		s.feed(strings.TrimRight(line, " \t\r"))
	}
	return s.records, s.stats
}

// ParseReader parses a report from r line by line.
func ParseReader(r io.Reader) ([]ActivityRecord, Stats, error) {
	var s parseState
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		s.feed(strings.TrimRight(scanner.Text(), " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, s.stats, err
	}
	return s.records, s.stats, nil
}
