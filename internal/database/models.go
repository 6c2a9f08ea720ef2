package database

// IngestRun is one journaled reconciliation pass.
type IngestRun struct {
	ID                string
	StoryID           string
	CycleID           string
	CycleResolved     bool
	Source            *string
	Parsed            int
	Inserted          int
	Updated           int
	DuplicatesRemoved int
	Folded            int
	Gaps              int
	Changed           bool
	SummaryFound      bool
	Error             *string
	CreatedAt         string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Keys        int
	ExpiredKeys int
	Runs        int
	Stories     int
	FailedRuns  int
}
