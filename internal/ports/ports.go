package ports

import (
	"context"
	"time"

	"ReviewRadar/internal/domain"
)

// ReviewSource pulls raw reviews for one business from an upstream source.
// Re-fetching is idempotent: repeated calls yield the same or a superset of
// reviews.
type ReviewSource interface {
	Kind() domain.SourceKind
	FetchReviews(ctx context.Context, business domain.Business) (domain.FetchBatch, error)
}

// SourceSelector applies the API-first, scrape-fallback policy and reports
// which variant served the fetch.
type SourceSelector interface {
	Fetch(ctx context.Context, business domain.Business) (domain.FetchResult, error)
}

// SentimentScorer maps review text to a polarity label and a compound score
// in [-1, 1]. Implementations are swappable behind this signature.
type SentimentScorer interface {
	Score(text string) (domain.SentimentLabel, float64, error)
}

// ReviewStore is the write side used by the pipeline and scheduler.
type ReviewStore interface {
	Exists(ctx context.Context, fingerprint string) (bool, error)
	Upsert(ctx context.Context, review domain.Review) error
	UpsertBusiness(ctx context.Context, business domain.Business) error
	RecordRun(ctx context.Context, record domain.RunRecord) error
}

// ReviewReader is the read interface consumed by dashboard/export collaborators.
type ReviewReader interface {
	GetBusiness(ctx context.Context, id string) (domain.Business, error)
	ListBusinesses(ctx context.Context) ([]domain.Business, error)
	ListReviews(ctx context.Context, businessID string, filter domain.ReviewFilter) ([]domain.Review, error)
	RunHistory(ctx context.Context, businessID string, limit int) ([]domain.RunRecord, error)
	Stats(ctx context.Context, businessID string) (domain.Stats, error)
}

// Notifier publishes run summaries to an external channel (Telegram, etc.).
type Notifier interface {
	PublishRunSummary(ctx context.Context, record domain.RunRecord) error
}

// CadenceDriver fires registered jobs on their interval.
type CadenceDriver interface {
	Add(every time.Duration, job func()) error
	Start()
	Stop(ctx context.Context) error
}
