// Package storage persists businesses, reviews and run records in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/ports"
)

// Store manages review persistence backed by SQLite. Upserts are atomic per
// fingerprint, so concurrent writers for the same review converge on one row.
type Store struct {
	db   *sql.DB
	path string
}

var (
	_ ports.ReviewStore  = (*Store)(nil)
	_ ports.ReviewReader = (*Store)(nil)
)

// Open initializes or connects to the review database and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertBusiness registers or refreshes a tracked business.
func (s *Store) UpsertBusiness(ctx context.Context, business domain.Business) error {
	query, args, err := sq.Insert("businesses").
		Columns("id", "name", "place_id", "page_url").
		Values(business.ID, business.Name, business.PlaceID, business.PageURL).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            place_id = excluded.place_id,
            page_url = excluded.page_url`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build business upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storeErr("upsert business", err)
	}
	return nil
}

// GetBusiness returns one registered business.
func (s *Store) GetBusiness(ctx context.Context, id string) (domain.Business, error) {
	query, args, err := sq.Select("id", "name", "place_id", "page_url").
		From("businesses").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Business{}, fmt.Errorf("build business select: %w", err)
	}

	var b domain.Business
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&b.ID, &b.Name, &b.PlaceID, &b.PageURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Business{}, fmt.Errorf("business %s: %w", id, domain.ErrNotRegistered)
		}
		return domain.Business{}, storeErr("get business", err)
	}
	return b, nil
}

// ListBusinesses returns all registered businesses.
func (s *Store) ListBusinesses(ctx context.Context) ([]domain.Business, error) {
	query, args, err := sq.Select("id", "name", "place_id", "page_url").
		From("businesses").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build businesses select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list businesses", err)
	}
	defer rows.Close()

	var out []domain.Business
	for rows.Next() {
		var b domain.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.PlaceID, &b.PageURL); err != nil {
			return nil, storeErr("scan business", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate businesses", err)
	}
	return out, nil
}

// Exists reports whether a fingerprint is already persisted.
func (s *Store) Exists(ctx context.Context, fp string) (bool, error) {
	query, args, err := sq.Select("1").
		From("reviews").
		Where(sq.Eq{"fingerprint": fp}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists select: %w", err)
	}

	var one int
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, storeErr("check fingerprint", err)
	}
	return true, nil
}

// Upsert inserts a review on first encounter; a re-encounter only bumps
// last_seen. Stored content is immutable: an edit that changes a stable field
// changes the fingerprint and lands as a new row.
func (s *Store) Upsert(ctx context.Context, review domain.Review) error {
	now := time.Now().UTC().Unix()

	query, args, err := sq.Insert("reviews").
		Columns("fingerprint", "business_id", "author", "rating", "text",
			"posted_at", "sentiment", "score", "first_seen", "last_seen").
		Values(review.Fingerprint, review.BusinessID, review.Author, review.Rating,
			review.Text, unixOrZero(review.PostedAt), string(review.Sentiment),
			review.Score, now, now).
		Suffix("ON CONFLICT(fingerprint) DO UPDATE SET last_seen = excluded.last_seen").
		ToSql()
	if err != nil {
		return fmt.Errorf("build review upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storeErr("upsert review", err)
	}
	return nil
}

// ListReviews returns persisted reviews ordered by posted timestamp
// descending, ties broken by fingerprint.
func (s *Store) ListReviews(ctx context.Context, businessID string, filter domain.ReviewFilter) ([]domain.Review, error) {
	builder := sq.Select("fingerprint", "business_id", "author", "rating", "text",
		"posted_at", "sentiment", "score", "first_seen", "last_seen").
		From("reviews").
		Where(sq.Eq{"business_id": businessID})

	if !filter.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"posted_at": filter.Since.UTC().Unix()})
	}
	if filter.MinRating > 0 {
		builder = builder.Where(sq.GtOrEq{"rating": filter.MinRating})
	}
	if filter.MaxRating > 0 {
		builder = builder.Where(sq.LtOrEq{"rating": filter.MaxRating})
	}
	if filter.Sentiment != "" {
		builder = builder.Where(sq.Eq{"sentiment": string(filter.Sentiment)})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	builder = builder.OrderBy("posted_at DESC", "fingerprint ASC").Limit(uint64(limit))
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build reviews select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list reviews", err)
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var (
			r         domain.Review
			sentiment string
			posted    int64
			first     int64
			last      int64
		)
		if err := rows.Scan(&r.Fingerprint, &r.BusinessID, &r.Author, &r.Rating,
			&r.Text, &posted, &sentiment, &r.Score, &first, &last); err != nil {
			return nil, storeErr("scan review", err)
		}
		r.Sentiment = domain.SentimentLabel(sentiment)
		r.PostedAt = timeFromUnix(posted)
		r.FirstSeen = timeFromUnix(first)
		r.LastSeen = timeFromUnix(last)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate reviews", err)
	}
	return out, nil
}

// RecordRun appends one run record to the audit trail.
func (s *Store) RecordRun(ctx context.Context, record domain.RunRecord) error {
	query, args, err := sq.Insert("ingestion_runs").
		Columns("id", "business_id", "source", "started_at", "finished_at",
			"outcome", "fetched", "new_count", "duplicate_count", "failed_count", "error").
		Values(record.ID, record.BusinessID, string(record.Source),
			unixOrZero(record.StartedAt), unixOrZero(record.FinishedAt),
			string(record.Outcome), record.Fetched, record.New,
			record.Duplicate, record.Failed, record.Error).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storeErr("record run", err)
	}
	return nil
}

// RunHistory returns the most recent runs for a business, newest first.
func (s *Store) RunHistory(ctx context.Context, businessID string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := sq.Select("id", "business_id", "source", "started_at",
		"finished_at", "outcome", "fetched", "new_count", "duplicate_count",
		"failed_count", "error").
		From("ingestion_runs").
		Where(sq.Eq{"business_id": businessID}).
		OrderBy("started_at DESC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("run history", err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		var (
			r        domain.RunRecord
			source   string
			outcome  string
			started  int64
			finished int64
		)
		if err := rows.Scan(&r.ID, &r.BusinessID, &source, &started, &finished,
			&outcome, &r.Fetched, &r.New, &r.Duplicate, &r.Failed, &r.Error); err != nil {
			return nil, storeErr("scan run", err)
		}
		r.Source = domain.SourceKind(source)
		r.Outcome = domain.RunOutcome(outcome)
		r.StartedAt = timeFromUnix(started)
		r.FinishedAt = timeFromUnix(finished)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate runs", err)
	}
	return out, nil
}

// Stats aggregates review counts, average rating and the rating/sentiment
// distributions for one business.
func (s *Store) Stats(ctx context.Context, businessID string) (domain.Stats, error) {
	stats := domain.Stats{
		RatingCounts:    map[int]int{},
		SentimentCounts: map[domain.SentimentLabel]int{},
	}

	query, args, err := sq.Select("COUNT(*)", "COALESCE(AVG(rating), 0)").
		From("reviews").
		Where(sq.Eq{"business_id": businessID}).
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build stats select: %w", err)
	}
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&stats.ReviewCount, &stats.AverageRating); err != nil {
		return stats, storeErr("aggregate reviews", err)
	}

	if err := s.countBy(ctx, businessID, "rating", func(key string, count int) error {
		rating, convErr := parseRatingKey(key)
		if convErr != nil {
			return convErr
		}
		stats.RatingCounts[rating] = count
		return nil
	}); err != nil {
		return stats, err
	}

	if err := s.countBy(ctx, businessID, "sentiment", func(key string, count int) error {
		stats.SentimentCounts[domain.SentimentLabel(key)] = count
		return nil
	}); err != nil {
		return stats, err
	}

	return stats, nil
}

func (s *Store) countBy(ctx context.Context, businessID, column string, visit func(key string, count int) error) error {
	query, args, err := sq.Select(column, "COUNT(*)").
		From("reviews").
		Where(sq.Eq{"business_id": businessID}).
		GroupBy(column).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s distribution: %w", column, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return storeErr(column+" distribution", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return storeErr("scan "+column+" distribution", err)
		}
		if err := visit(key, count); err != nil {
			return err
		}
	}
	return rows.Err()
}

func parseRatingKey(key string) (int, error) {
	var rating int
	if _, err := fmt.Sscanf(key, "%d", &rating); err != nil {
		return 0, fmt.Errorf("unexpected rating key %q: %w", key, err)
	}
	return rating, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrStorage, err))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func timeFromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
