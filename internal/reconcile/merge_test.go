package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/sprintlog/internal/report"
)

func strPtr(s string) *string { return &s }

func rec(user, item, date, tag, text string) report.ActivityRecord {
	return report.ActivityRecord{User: user, ItemID: item, Date: date, Tag: tag, Text: text}
}

const minimalReport = `## 🚁 Sprint-7 : WK-42 overview

### 👤 Ada

#### 🔹 WK-42 Fix crash
* **2026-01-20**:
    * **[Note]** investigating
`

func assertUniqueKeys(t *testing.T, records []report.ActivityRecord) {
	t.Helper()
	seen := make(map[report.NaturalKey]bool, len(records))
	for _, r := range records {
		k := r.Key()
		assert.False(t, seen[k], "duplicate natural key %+v", k)
		seen[k] = true
	}
}

func TestMergeIntoEmptyPrior(t *testing.T) {
	r := Merge(report.Parse(minimalReport), nil)

	assert.Equal(t, 1, r.Inserted)
	assert.Zero(t, r.Updated)
	assert.Zero(t, r.DuplicatesRemoved)
	assert.True(t, r.Changed)

	want := []report.ActivityRecord{{
		User:      "Ada",
		ItemID:    "WK-42",
		ItemTitle: strPtr("Fix crash"),
		Date:      "2026-01-20",
		Tag:       "Note",
		Text:      "investigating",
	}}
	if diff := cmp.Diff(want, r.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeUpdatesChangedText(t *testing.T) {
	first := Merge(report.Parse(minimalReport), nil)

	changed := report.Parse(replaceOnce(minimalReport, "investigating", "fixed"))
	r := Merge(changed, first.Records)

	assert.Zero(t, r.Inserted)
	assert.Equal(t, 1, r.Updated)
	assert.True(t, r.Changed)
	require.Len(t, r.Records, 1)
	assert.Equal(t, "fixed", r.Records[0].Text)
}

func TestMergeIdempotent(t *testing.T) {
	for _, name := range []string{"minimal", "sample"} {
		t.Run(name, func(t *testing.T) {
			text := minimalReport
			if name == "sample" {
				text = readSample(t)
			}
			parsed := report.Parse(text)

			first := Merge(parsed, nil)
			second := Merge(report.Parse(text), first.Records)

			assert.Zero(t, second.Inserted)
			assert.Zero(t, second.Updated)
			assert.False(t, second.Changed)
			if diff := cmp.Diff(first.Records, second.Records); diff != "" {
				t.Errorf("second pass altered records (-first +second):\n%s", diff)
			}
		})
	}
}

func TestMergeSelfHealsPriorDuplicates(t *testing.T) {
	prior := []report.ActivityRecord{
		rec("Ada", "WK-1", "2026-01-20", "Note", "older"),
		rec("Bob", "WK-2", "2026-01-20", "Note", "other"),
		rec("Ada", "WK-1", "2026-01-20", "Note", "newer"),
	}

	r := Merge(nil, prior)

	assert.Equal(t, 1, r.DuplicatesRemoved)
	assert.True(t, r.Changed)
	want := []report.ActivityRecord{
		rec("Ada", "WK-1", "2026-01-20", "Note", "newer"),
		rec("Bob", "WK-2", "2026-01-20", "Note", "other"),
	}
	if diff := cmp.Diff(want, r.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeIdenticalRecordUntouched(t *testing.T) {
	prior := []report.ActivityRecord{rec("Ada", "WK-1", "2026-01-20", "Note", "same")}
	r := Merge([]report.ActivityRecord{rec("Ada", "WK-1", "2026-01-20", "Note", "same")}, prior)

	assert.False(t, r.Changed)
	assert.Zero(t, r.Inserted)
	assert.Zero(t, r.Updated)
}

func TestMergeTitleOnlyChangeIsNotAnUpdate(t *testing.T) {
	old := rec("Ada", "WK-1", "2026-01-20", "Note", "same")
	old.ItemTitle = strPtr("Old title")
	renamed := old
	renamed.ItemTitle = strPtr("New title")

	r := Merge([]report.ActivityRecord{renamed}, []report.ActivityRecord{old})

	assert.False(t, r.Changed)
	assert.Equal(t, "Old title", r.Records[0].Title())
}

func TestMergeUpdateCarriesLatestTitle(t *testing.T) {
	old := rec("Ada", "WK-1", "2026-01-20", "Note", "investigating")
	old.ItemTitle = strPtr("Old title")
	next := rec("Ada", "WK-1", "2026-01-20", "Note", "fixed")
	next.ItemTitle = strPtr("New title")

	r := Merge([]report.ActivityRecord{next}, []report.ActivityRecord{old})

	assert.Equal(t, 1, r.Updated)
	assert.Equal(t, "New title", r.Records[0].Title())
}

func TestMergeFoldsSameKeyWithinBatch(t *testing.T) {
	batch := []report.ActivityRecord{
		rec("Ada", "WK-1", "2026-01-20", "Worklog 1h", "morning"),
		rec("Ada", "WK-1", "2026-01-20", "Worklog 2h", "afternoon"),
	}

	first := Merge(batch, nil)
	assert.Equal(t, 1, first.Inserted)
	assert.Equal(t, 1, first.Folded)
	require.Len(t, first.Records, 1)
	assert.Equal(t, "afternoon", first.Records[0].Text)

	second := Merge(batch, first.Records)
	assert.False(t, second.Changed)
}

func TestMergeOrderIsFirstInsertion(t *testing.T) {
	prior := []report.ActivityRecord{
		rec("Ada", "WK-1", "2026-01-20", "Note", "a"),
		rec("Ada", "WK-1", "2026-01-21", "Note", "b"),
	}
	batch := []report.ActivityRecord{
		rec("Cy", "WK-3", "2026-01-22", "Note", "c"),
		rec("Ada", "WK-1", "2026-01-20", "Note", "a2"),
	}

	r := Merge(batch, prior)

	var got []string
	for _, x := range r.Records {
		got = append(got, x.Text)
	}
	assert.Equal(t, []string{"a2", "b", "c"}, got)
}

func TestMergeNaturalKeyUniqueness(t *testing.T) {
	prior := []report.ActivityRecord{
		rec("Ada", "WK-1", "2026-01-20", "Note", "1"),
		rec("Ada", "WK-1", "2026-01-20", "Note", "2"),
		rec("Ada", "WK-2", "2026-01-20", "Note", "3"),
		rec("Bob", "WK-1", "2026-01-20", "Note", "4"),
	}
	batch := append(report.Parse(readSample(t)),
		rec("Ada", "WK-2", "2026-01-20", "Note", "5"),
		rec("Ada", "WK-2", "2026-01-20", "Note", "6"),
	)

	r := Merge(batch, prior)
	assertUniqueKeys(t, r.Records)
}
