package ledger

// Storage keys. These strings address state written by every earlier
// release; changing them orphans stored records.

// RecordsKey addresses the merged activity records of a story in a cycle.
func RecordsKey(cycleID, storyID string) string {
	return "sprint:" + cycleID + ":story:" + storyID
}

// SummaryKey addresses the latest summary blurb of a story in a cycle.
func SummaryKey(cycleID, storyID string) string {
	return RecordsKey(cycleID, storyID) + ":summary"
}

// CycleKey addresses the pointer to the cycle a story was last ingested in.
func CycleKey(storyID string) string {
	return "story:cycle:" + storyID
}

// TagsKey addresses the board tags of a story.
func TagsKey(storyID string) string {
	return "story:tags:" + storyID
}
