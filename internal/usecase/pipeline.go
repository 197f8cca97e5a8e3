package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/fingerprint"
	"ReviewRadar/internal/ports"
)

// PipelineDeps wires the driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Source ports.SourceSelector
	Store  ports.ReviewStore
	Scorer ports.SentimentScorer
	Logger *slog.Logger
}

// Pipeline implements one ingestion run: fetch, fingerprint, dedup-check,
// score, persist. Per-review processing is independent; a single bad item
// degrades the run instead of aborting it.
type Pipeline struct {
	source ports.SourceSelector
	store  ports.ReviewStore
	scorer ports.SentimentScorer
	logger *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source: deps.Source,
		store:  deps.Store,
		scorer: deps.Scorer,
		logger: deps.Logger,
	}
}

// Run processes one business and always returns a RunRecord: success when
// every fetched item landed, partial when some were skipped, failed on a
// fatal source or storage error, aborted on cancellation. The record is
// persisted best-effort even for failed and aborted runs.
func (p *Pipeline) Run(ctx context.Context, business domain.Business) domain.RunRecord {
	record := domain.RunRecord{
		ID:         uuid.NewString(),
		BusinessID: business.ID,
		StartedAt:  time.Now().UTC(),
	}

	result, err := p.source.Fetch(ctx, business)
	record.Source = result.Source
	if err != nil {
		switch {
		case ctx.Err() != nil:
			record.Outcome = domain.RunAborted
		case errors.Is(err, domain.ErrParseDrift):
			// An unparseable page degrades the run; the next cadence tick
			// retries against fresh markup.
			record.Outcome = domain.RunPartial
			record.Failed++
		default:
			record.Outcome = domain.RunFailed
		}
		record.Error = err.Error()
		p.finish(ctx, &record)
		return record
	}

	record.Fetched = len(result.Reviews)
	record.Failed = result.Dropped

	var fatal error
	for _, raw := range result.Reviews {
		if ctx.Err() != nil {
			break
		}

		fp := fingerprint.Compute(business.ID, raw)

		exists, err := p.store.Exists(ctx, fp)
		if err != nil {
			fatal = err
			break
		}
		if exists {
			record.Duplicate++
			continue
		}

		label, score, err := p.scorer.Score(raw.Text)
		if err != nil {
			record.Failed++
			p.warn("scoring failed", "business", business.ID, "fingerprint", fp, "error", err)
			continue
		}

		review := domain.Review{
			Fingerprint: fp,
			BusinessID:  business.ID,
			Author:      raw.Author,
			Rating:      raw.Rating,
			Text:        raw.Text,
			PostedAt:    raw.PostedAt,
			Sentiment:   label,
			Score:       score,
		}
		if err := p.store.Upsert(ctx, review); err != nil {
			fatal = err
			break
		}
		record.New++
	}

	switch {
	case fatal != nil:
		record.Outcome = domain.RunFailed
		record.Error = fatal.Error()
	case ctx.Err() != nil:
		record.Outcome = domain.RunAborted
		record.Error = ctx.Err().Error()
	case record.Failed > 0:
		record.Outcome = domain.RunPartial
	default:
		record.Outcome = domain.RunSuccess
	}

	p.finish(ctx, &record)
	return record
}

// finish stamps the record and appends it to the audit trail. The write uses
// a detached context so a canceled run still leaves its trace.
func (p *Pipeline) finish(ctx context.Context, record *domain.RunRecord) {
	record.FinishedAt = time.Now().UTC()

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.RecordRun(recordCtx, *record); err != nil {
		p.warn("record run", "business", record.BusinessID, "error", err)
	}

	if p.logger != nil {
		p.logger.Info("run finished",
			"business", record.BusinessID,
			"outcome", record.Outcome,
			"source", record.Source,
			"fetched", record.Fetched,
			"new", record.New,
			"duplicate", record.Duplicate,
			"failed", record.Failed,
		)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
