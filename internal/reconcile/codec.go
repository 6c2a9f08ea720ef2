package reconcile

import (
	"encoding/json"
	"strings"

	"github.com/TobiSchelling/sprintlog/internal/report"
)

// DecodeRecords parses a stored blob. Anything that is not a JSON array of
// records decodes to an empty collection and false. An element without a
// user, item id or date makes the whole blob unreadable.
func DecodeRecords(blob []byte) ([]report.ActivityRecord, bool) {
	if len(blob) == 0 {
		return nil, false
	}
	var records []report.ActivityRecord
	if err := json.Unmarshal(blob, &records); err != nil || records == nil {
		return nil, false
	}
	for i := range records {
		if !hasIdentity(records[i]) {
			return nil, false
		}
		records[i].Tag = normalizeTag(records[i].Tag)
	}
	return records, true
}

func hasIdentity(r report.ActivityRecord) bool {
	return r.User != "" && r.ItemID != "" && r.Date != ""
}

// EncodeRecords serializes records for storage.
func EncodeRecords(records []report.ActivityRecord) ([]byte, error) {
	if records == nil {
		records = []report.ActivityRecord{}
	}
	return json.Marshal(records)
}

// normalizeTag strips the emphasis markup that older generations stored
// around the tag, e.g. "**[Worklog 1h]**" becomes "Worklog 1h".
func normalizeTag(tag string) string {
	if strings.HasPrefix(tag, "**[") && strings.HasSuffix(tag, "]**") && len(tag) >= 6 {
		return strings.TrimSpace(tag[3 : len(tag)-3])
	}
	return tag
}
