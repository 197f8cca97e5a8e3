package domain

import "time"

// Business is a tracked entity whose reviews are ingested.
type Business struct {
	ID      string
	Name    string
	PlaceID string // structured-API locator
	PageURL string // review page used by the scraping fallback
}

// RawReview is the source-shaped review produced by a SourceClient.
// It lives only for the duration of one pipeline run.
type RawReview struct {
	SourceID string
	Author   string
	Rating   int
	Text     string
	PostedAt time.Time // zero when the source reports no date
}

// SentimentLabel classifies review polarity.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Review is the persisted, deduplicated record keyed by fingerprint.
type Review struct {
	Fingerprint string
	BusinessID  string
	Author      string
	Rating      int
	Text        string
	PostedAt    time.Time
	Sentiment   SentimentLabel
	Score       float64
	FirstSeen   time.Time
	LastSeen    time.Time
}

// SourceKind identifies which SourceClient variant served a run.
type SourceKind string

const (
	SourceAPI    SourceKind = "api"
	SourceScrape SourceKind = "scrape"
)

// RunOutcome enumerates terminal states of an ingestion run.
type RunOutcome string

const (
	RunSuccess RunOutcome = "success"
	RunPartial RunOutcome = "partial"
	RunFailed  RunOutcome = "failed"
	RunAborted RunOutcome = "aborted"
	RunSkipped RunOutcome = "skipped"
)

// RunRecord is the append-only audit entry for one ingestion run.
type RunRecord struct {
	ID         string
	BusinessID string
	Source     SourceKind
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    RunOutcome
	Fetched    int
	New        int
	Duplicate  int
	Failed     int
	Error      string
}

// FetchBatch is one fetch pass: the reviews a source recovered plus the
// count of items it had to drop as unparseable.
type FetchBatch struct {
	Reviews []RawReview
	Dropped int
}

// FetchResult is a FetchBatch annotated with the variant that produced it.
type FetchResult struct {
	FetchBatch
	Source SourceKind
}

// ReviewFilter narrows ListReviews for downstream readers.
type ReviewFilter struct {
	Since     time.Time
	MinRating int
	MaxRating int
	Sentiment SentimentLabel
	Limit     int
	Offset    int
}

// Stats aggregates persisted reviews for one business.
type Stats struct {
	ReviewCount     int
	AverageRating   float64
	RatingCounts    map[int]int
	SentimentCounts map[SentimentLabel]int
}
