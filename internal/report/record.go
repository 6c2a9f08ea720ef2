// Package report implements the structural grammar of progress reports: line
// classification, record extraction and the metadata extractors.
package report

// ActivityRecord is one atomic activity: who did what on which work item and
// on which date. JSON field names match the blobs written by earlier report
// generations so stored state stays readable.
type ActivityRecord struct {
	User      string  `json:"User"`
	ItemID    string  `json:"Jira_ID"`
	ItemTitle *string `json:"Jira_Title"`
	Date      string  `json:"Date"` // YYYY-MM-DD
	Tag       string  `json:"Content"`
	Text      string  `json:"Comment"`
}

// NaturalKey is the merge identity of an ActivityRecord. It is deliberately
// coarser than the record: later generations supersede earlier ones per key.
type NaturalKey struct {
	User   string
	ItemID string
	Date   string
}

// Key returns the record's natural key.
func (r ActivityRecord) Key() NaturalKey {
	return NaturalKey{User: r.User, ItemID: r.ItemID, Date: r.Date}
}

// Title returns the item title or "" when absent.
func (r ActivityRecord) Title() string {
	if r.ItemTitle == nil {
		return ""
	}
	return *r.ItemTitle
}

// SameContent reports whether tag and text match. Title is not compared.
func (r ActivityRecord) SameContent(other ActivityRecord) bool {
	return r.Tag == other.Tag && r.Text == other.Text
}
