package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/sprintlog/internal/report"
)

func TestDecodeRecordsRejectsWrongShapes(t *testing.T) {
	for name, blob := range map[string]string{
		"empty":           "",
		"garbage":         "not json at all",
		"object":          `{"User":"Ada"}`,
		"null":            "null",
		"string":          `"[]"`,
		"truncated":       `[{"User":"Ada",`,
		"foreign objects": `[{"id":1},{"id":2}]`,
		"nulls":           `[null,null]`,
		"empty object":    `[{}]`,
		"missing date":    `[{"User":"Ada","Jira_ID":"WK-1","Content":"Note","Comment":"x"}]`,
		"one bad element": `[{"User":"Ada","Jira_ID":"WK-1","Date":"2026-01-20"},{"User":"","Jira_ID":"WK-1","Date":"2026-01-20"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			records, ok := DecodeRecords([]byte(blob))
			assert.False(t, ok)
			assert.Empty(t, records)
		})
	}
}

func TestDecodeRecordsLegacyBlob(t *testing.T) {
	blob := `[{"User":"Ada","Jira_ID":"WK-1","Jira_Title":null,"Date":"2026-01-20","Content":"**[Worklog 1h]**","Comment":"pairing"}]`

	records, ok := DecodeRecords([]byte(blob))
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "Worklog 1h", records[0].Tag)
	assert.Nil(t, records[0].ItemTitle)
	assert.Equal(t, "pairing", records[0].Text)
}

func TestDecodeRecordsEmptyArray(t *testing.T) {
	records, ok := DecodeRecords([]byte("[]"))
	assert.True(t, ok)
	assert.Empty(t, records)
}

func TestEncodeRecordsFieldNames(t *testing.T) {
	blob, err := EncodeRecords([]report.ActivityRecord{{
		User: "Ada", ItemID: "WK-1", ItemTitle: strPtr("Fix"), Date: "2026-01-20", Tag: "Note", Text: "x",
	}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"User":"Ada","Jira_ID":"WK-1","Jira_Title":"Fix","Date":"2026-01-20","Content":"Note","Comment":"x"}]`,
		string(blob))

	empty, err := EncodeRecords(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}
