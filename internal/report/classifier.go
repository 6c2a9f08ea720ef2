package report

import (
	"regexp"
	"strings"
	"time"
)

// Role is the structural role a single line plays in a report.
type Role int

const (
	RoleNone Role = iota
	RoleOuterHeader
	RoleUserHeader
	RoleTaskHeader
	RoleDateMarker
	RoleItemBullet
)

func (r Role) String() string {
	switch r {
	case RoleOuterHeader:
		return "outer_header"
	case RoleUserHeader:
		return "user_header"
	case RoleTaskHeader:
		return "task_header"
	case RoleDateMarker:
		return "date_marker"
	case RoleItemBullet:
		return "item_bullet"
	default:
		return "none"
	}
}

// Classification is the result of classifying one line. Only the fields
// relevant to Role are populated.
type Classification struct {
	Role    Role
	CycleID string
	User    string
	ItemID  string
	Title   string
	Date    string
	Tag     string
	Text    string
}

const dateLayout = "2006-01-02"

// Header weight is enforced by requiring whitespace right after the marker
// run, so "####" can never satisfy the "###" rule. An optional decoration
// glyph (the generators prefix headers with an emoji) may follow.
const decoration = `(?:[^\p{L}\p{N}\s]+[ \t]+)?`

const itemIDPattern = `[A-Z][A-Z0-9]*-[0-9]+`

var (
	reOuterHeader = regexp.MustCompile(`^##[ \t]+` + decoration + `([^:]*?)[ \t]*:`)
	reTaskHeader  = regexp.MustCompile(`^####[ \t]+` + decoration + `(` + itemIDPattern + `)(?:[ \t]+(.*))?$`)
	reUserHeader  = regexp.MustCompile(`^###[ \t]+` + decoration + `(.*\S)`)
	reDateMarker  = regexp.MustCompile(`^[*-][ \t]+\*\*(\[)?(\d{4}-\d{2}-\d{2})(\])?\*\*[ \t]*:`)
	reItemID      = regexp.MustCompile(`\b` + itemIDPattern + `\b`)
	reItemBullet  = regexp.MustCompile(`^[ \t]+[*-][ \t]+\*\*\[([^\]]*)\]\*\*[ \t]*(.*)$`)
)

// Classify returns the structural role of a single line. It is a pure
// function of its input.
func Classify(line string) Classification {
	line = strings.TrimRight(line, " \t\r")

	if m := reOuterHeader.FindStringSubmatch(line); m != nil {
		id := strings.TrimSpace(m[1])
		if id != "" {
			return Classification{Role: RoleOuterHeader, CycleID: id}
		}
	}

	// Task before user: a malformed header is more often a truncated task
	// header than a user header.
	if m := reTaskHeader.FindStringSubmatch(line); m != nil {
		return Classification{Role: RoleTaskHeader, ItemID: m[1], Title: strings.TrimSpace(m[2])}
	}

	if m := reUserHeader.FindStringSubmatch(line); m != nil {
		return Classification{Role: RoleUserHeader, User: strings.TrimSpace(m[1])}
	}

	if m := reDateMarker.FindStringSubmatch(strings.TrimLeft(line, " \t")); m != nil {
		// Brackets must be balanced.
		if (m[1] == "") == (m[3] == "") && validDate(m[2]) {
			return Classification{Role: RoleDateMarker, Date: m[2]}
		}
	}

	if m := reItemBullet.FindStringSubmatch(line); m != nil {
		return Classification{Role: RoleItemBullet, Tag: strings.TrimSpace(m[1]), Text: strings.TrimSpace(m[2])}
	}

	return Classification{Role: RoleNone}
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// IsItemID reports whether s is exactly one work item identifier.
func IsItemID(s string) bool {
	loc := reItemID.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// FindItemID returns the first work item identifier in s.
func FindItemID(s string) (string, bool) {
	id := reItemID.FindString(s)
	return id, id != ""
}
