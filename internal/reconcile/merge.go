// Package reconcile merges freshly parsed activity records into previously
// persisted state under the natural key (user, item, date).
package reconcile

import "github.com/TobiSchelling/sprintlog/internal/report"

// Result is the outcome of one merge.
type Result struct {
	Records           []report.ActivityRecord
	Inserted          int
	Updated           int
	DuplicatesRemoved int
	// Folded counts new records collapsed into a later record with the same
	// natural key from the same batch. Folding happens before comparison, so
	// Inserted and Updated count natural keys, not individual new records.
	Folded  int
	Changed bool
	// PriorReadFailed is set by Engine when the store read failed and the
	// merge ran against empty prior state.
	PriorReadFailed bool
}

// orderedSet keeps records by natural key in first-insertion order.
type orderedSet struct {
	index map[report.NaturalKey]int
	items []report.ActivityRecord
}

func newOrderedSet(capacity int) *orderedSet {
	return &orderedSet{
		index: make(map[report.NaturalKey]int, capacity),
		items: make([]report.ActivityRecord, 0, capacity),
	}
}

// put stores rec, replacing an existing entry in place. It reports whether
// the key was already present.
func (s *orderedSet) put(rec report.ActivityRecord) bool {
	k := rec.Key()
	if i, ok := s.index[k]; ok {
		s.items[i] = rec
		return true
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, rec)
	return false
}

func (s *orderedSet) get(k report.NaturalKey) (report.ActivityRecord, bool) {
	i, ok := s.index[k]
	if !ok {
		return report.ActivityRecord{}, false
	}
	return s.items[i], true
}

func (s *orderedSet) len() int { return len(s.items) }

// Merge combines newRecords with priorRecords. Duplicate keys in the prior
// state collapse to their last occurrence; duplicate keys within newRecords
// fold to their last occurrence before being compared with prior state.
func Merge(newRecords, priorRecords []report.ActivityRecord) Result {
	merged := newOrderedSet(len(priorRecords) + len(newRecords))
	for _, rec := range priorRecords {
		merged.put(rec)
	}

	var r Result
	r.DuplicatesRemoved = len(priorRecords) - merged.len()

	batch := newOrderedSet(len(newRecords))
	for _, rec := range newRecords {
		batch.put(rec)
	}
	r.Folded = len(newRecords) - batch.len()

	for _, rec := range batch.items {
		existing, ok := merged.get(rec.Key())
		if !ok {
			merged.put(rec)
			r.Inserted++
			continue
		}
		if existing.SameContent(rec) {
			continue
		}
		existing.Tag = rec.Tag
		existing.Text = rec.Text
		existing.ItemTitle = rec.ItemTitle
		merged.put(existing)
		r.Updated++
	}

	r.Records = merged.items
	r.Changed = r.DuplicatesRemoved > 0 || r.Inserted > 0 || r.Updated > 0
	return r
}
