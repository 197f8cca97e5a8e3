package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ReviewRadar/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "reviews.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.UpsertBusiness(context.Background(), domain.Business{
		ID:      "biz-1",
		Name:    "Corner Cafe",
		PlaceID: "place-1",
	}))
	return store
}

func sampleReview(fp string, rating int, posted time.Time) domain.Review {
	return domain.Review{
		Fingerprint: fp,
		BusinessID:  "biz-1",
		Author:      "Jane",
		Rating:      rating,
		Text:        "some text",
		PostedAt:    posted,
		Sentiment:   domain.SentimentNeutral,
		Score:       0.1,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	posted := time.Date(2026, time.May, 2, 0, 0, 0, 0, time.UTC)

	review := sampleReview("fp-1", 4, posted)
	require.NoError(t, store.Upsert(ctx, review))

	exists, err := store.Exists(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, exists)

	// Re-encounter: still one row, content untouched.
	review.Text = "attempted overwrite"
	require.NoError(t, store.Upsert(ctx, review))

	got, err := store.ListReviews(ctx, "biz-1", domain.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "some text", got[0].Text)
	require.Equal(t, 4, got[0].Rating)
	require.False(t, got[0].FirstSeen.IsZero())
	require.False(t, got[0].LastSeen.Before(got[0].FirstSeen))
}

func TestExistsUnknownFingerprint(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	exists, err := store.Exists(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestListReviewsOrderingAndFilters(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	day := func(d int) time.Time {
		return time.Date(2026, time.May, d, 0, 0, 0, 0, time.UTC)
	}

	reviews := []domain.Review{
		sampleReview("fp-a", 5, day(3)),
		sampleReview("fp-b", 1, day(5)),
		sampleReview("fp-c", 3, day(5)),
		sampleReview("fp-d", 4, day(1)),
	}
	reviews[1].Sentiment = domain.SentimentNegative
	reviews[0].Sentiment = domain.SentimentPositive
	for _, r := range reviews {
		require.NoError(t, store.Upsert(ctx, r))
	}

	got, err := store.ListReviews(ctx, "biz-1", domain.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	// posted desc, fingerprint asc within the shared day
	require.Equal(t, []string{"fp-b", "fp-c", "fp-a", "fp-d"}, fingerprints(got))

	got, err = store.ListReviews(ctx, "biz-1", domain.ReviewFilter{Since: day(3)})
	require.NoError(t, err)
	require.Equal(t, []string{"fp-b", "fp-c", "fp-a"}, fingerprints(got))

	got, err = store.ListReviews(ctx, "biz-1", domain.ReviewFilter{MinRating: 3, MaxRating: 4})
	require.NoError(t, err)
	require.Equal(t, []string{"fp-c", "fp-d"}, fingerprints(got))

	got, err = store.ListReviews(ctx, "biz-1", domain.ReviewFilter{Sentiment: domain.SentimentNegative})
	require.NoError(t, err)
	require.Equal(t, []string{"fp-b"}, fingerprints(got))

	got, err = store.ListReviews(ctx, "biz-1", domain.ReviewFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"fp-c", "fp-a"}, fingerprints(got))
}

func fingerprints(reviews []domain.Review) []string {
	out := make([]string, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, r.Fingerprint)
	}
	return out
}

func TestRunHistory(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	first := domain.RunRecord{
		ID:         "run-1",
		BusinessID: "biz-1",
		Source:     domain.SourceAPI,
		StartedAt:  time.Date(2026, time.May, 1, 6, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, time.May, 1, 6, 1, 0, 0, time.UTC),
		Outcome:    domain.RunSuccess,
		Fetched:    3,
		New:        3,
	}
	second := first
	second.ID = "run-2"
	second.StartedAt = first.StartedAt.Add(24 * time.Hour)
	second.FinishedAt = first.FinishedAt.Add(24 * time.Hour)
	second.Outcome = domain.RunPartial
	second.New = 0
	second.Duplicate = 2
	second.Failed = 1

	require.NoError(t, store.RecordRun(ctx, first))
	require.NoError(t, store.RecordRun(ctx, second))

	history, err := store.RunHistory(ctx, "biz-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "run-2", history[0].ID)
	require.Equal(t, domain.RunPartial, history[0].Outcome)
	require.Equal(t, 2, history[0].Duplicate)
	require.Equal(t, "run-1", history[1].ID)
	require.Equal(t, domain.SourceAPI, history[1].Source)
}

func TestStats(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

	ratings := []int{5, 5, 1, 3}
	labels := []domain.SentimentLabel{
		domain.SentimentPositive,
		domain.SentimentPositive,
		domain.SentimentNegative,
		domain.SentimentNeutral,
	}
	for i, rating := range ratings {
		r := sampleReview("fp-"+string(rune('a'+i)), rating, day.AddDate(0, 0, i))
		r.Sentiment = labels[i]
		require.NoError(t, store.Upsert(ctx, r))
	}

	stats, err := store.Stats(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, 4, stats.ReviewCount)
	require.InDelta(t, 3.5, stats.AverageRating, 0.001)
	require.Equal(t, map[int]int{5: 2, 1: 1, 3: 1}, stats.RatingCounts)
	require.Equal(t, 2, stats.SentimentCounts[domain.SentimentPositive])
	require.Equal(t, 1, stats.SentimentCounts[domain.SentimentNegative])
	require.Equal(t, 1, stats.SentimentCounts[domain.SentimentNeutral])
}

func TestGetBusiness(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	b, err := store.GetBusiness(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, "Corner Cafe", b.Name)

	_, err = store.GetBusiness(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotRegistered)

	all, err := store.ListBusinesses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
