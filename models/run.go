package models

import "time"

// FamilyOutcome is the terminal state of one family within a crawl run.
type FamilyOutcome string

const (
	OutcomeComplete   FamilyOutcome = "complete"
	OutcomeIncomplete FamilyOutcome = "incomplete"
	OutcomeSkipped    FamilyOutcome = "skipped"
)

// FamilyStats counts what happened while crawling one family.
type FamilyStats struct {
	SearchCalls        int
	TransientErrors    int
	ListingsSeen       int
	ListingsDuplicate  int
	ListingsMismatched int
	ListingsFailed     int
	ImagesStored       int
	ImagesDuplicate    int
	ImagesFailed       int
	EmbeddingFailures  int
}

// Add accumulates o into s.
func (s *FamilyStats) Add(o FamilyStats) {
	s.SearchCalls += o.SearchCalls
	s.TransientErrors += o.TransientErrors
	s.ListingsSeen += o.ListingsSeen
	s.ListingsDuplicate += o.ListingsDuplicate
	s.ListingsMismatched += o.ListingsMismatched
	s.ListingsFailed += o.ListingsFailed
	s.ImagesStored += o.ImagesStored
	s.ImagesDuplicate += o.ImagesDuplicate
	s.ImagesFailed += o.ImagesFailed
	s.EmbeddingFailures += o.EmbeddingFailures
}

// FamilyResult is the outcome of crawling one family.
type FamilyResult struct {
	Family     string
	Outcome    FamilyOutcome
	Status     FamilyStatus
	ImageCount int
	Quota      int
	Stats      FamilyStats
}

// RunSummary aggregates a batch crawl.
type RunSummary struct {
	RunID              string
	StartedAt          time.Time
	FinishedAt         time.Time
	FamiliesComplete   int
	FamiliesIncomplete int
	FamiliesSkipped    int
	ImagesStored       int
	APICalls           int
	Totals             FamilyStats
	Families           []FamilyResult
}

// CrawlRun is the persisted form of a RunSummary.
type CrawlRun struct {
	ID                 string    `db:"id"`
	StartedAt          time.Time `db:"started_at"`
	FinishedAt         time.Time `db:"finished_at"`
	FamiliesComplete   int       `db:"families_complete"`
	FamiliesIncomplete int       `db:"families_incomplete"`
	FamiliesSkipped    int       `db:"families_skipped"`
	ImagesStored       int       `db:"images_stored"`
	APICalls           int       `db:"api_calls"`
}

// Add folds one family result into the summary.
func (s *RunSummary) Add(r FamilyResult) {
	s.Families = append(s.Families, r)
	s.Totals.Add(r.Stats)
	switch r.Outcome {
	case OutcomeComplete:
		s.FamiliesComplete++
	case OutcomeSkipped:
		s.FamiliesSkipped++
	default:
		s.FamiliesIncomplete++
	}
	s.ImagesStored = s.Totals.ImagesStored
	s.APICalls = s.Totals.SearchCalls
}

// Record returns the persisted form of the summary.
func (s *RunSummary) Record() CrawlRun {
	return CrawlRun{
		ID:                 s.RunID,
		StartedAt:          s.StartedAt,
		FinishedAt:         s.FinishedAt,
		FamiliesComplete:   s.FamiliesComplete,
		FamiliesIncomplete: s.FamiliesIncomplete,
		FamiliesSkipped:    s.FamiliesSkipped,
		ImagesStored:       s.ImagesStored,
		APICalls:           s.APICalls,
	}
}
