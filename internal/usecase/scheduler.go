package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/ports"
)

// Runner executes one ingestion run; satisfied by *Pipeline.
type Runner interface {
	Run(ctx context.Context, business domain.Business) domain.RunRecord
}

// SchedulerDeps wires the cadence driver with the pipeline.
type SchedulerDeps struct {
	Pipeline      Runner
	Store         ports.ReviewStore
	Driver        ports.CadenceDriver
	Notifier      ports.Notifier
	Logger        *slog.Logger
	MaxConcurrent int
}

// Scheduler triggers pipeline runs per business on their cadence. A
// per-business guard skips a trigger while a run is in flight, and a global
// semaphore caps how many businesses run concurrently. Manual and scheduled
// triggers share one code path.
type Scheduler struct {
	pipeline Runner
	store    ports.ReviewStore
	driver   ports.CadenceDriver
	notifier ports.Notifier
	logger   *slog.Logger
	sem      chan struct{}

	mu         sync.Mutex
	runCtx     context.Context
	inflight   map[string]bool
	businesses map[string]domain.Business

	wg sync.WaitGroup
}

// NewScheduler builds the scheduler; MaxConcurrent defaults to 4.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	capacity := deps.MaxConcurrent
	if capacity <= 0 {
		capacity = 4
	}
	return &Scheduler{
		pipeline:   deps.Pipeline,
		store:      deps.Store,
		driver:     deps.Driver,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
		sem:        make(chan struct{}, capacity),
		runCtx:     context.Background(),
		inflight:   map[string]bool{},
		businesses: map[string]domain.Business{},
	}
}

// Register records the business and arms its cadence. Missed ticks while the
// process was down are not backfilled; the next tick runs normally.
func (s *Scheduler) Register(ctx context.Context, business domain.Business, every time.Duration) error {
	if business.ID == "" {
		return fmt.Errorf("business id is required")
	}

	if err := s.store.UpsertBusiness(ctx, business); err != nil {
		return fmt.Errorf("register business %s: %w", business.ID, err)
	}

	s.mu.Lock()
	s.businesses[business.ID] = business
	s.mu.Unlock()

	if s.driver == nil {
		return nil
	}
	if err := s.driver.Add(every, func() {
		s.Trigger(s.baseContext(), business)
	}); err != nil {
		return fmt.Errorf("arm cadence for %s: %w", business.ID, err)
	}

	s.log().Info("business registered", "business", business.ID, "every", every)
	return nil
}

// Start begins firing cadence ticks; runs started afterwards inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	if s.driver != nil {
		s.driver.Start()
	}
}

// Stop halts new ticks and waits for in-flight runs.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver != nil {
		if err := s.driver.Stop(ctx); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow triggers an immediate run through the exact same path the cadence
// uses. An in-flight run yields a skipped record, not a second run.
func (s *Scheduler) RunNow(ctx context.Context, businessID string) (domain.RunRecord, error) {
	s.mu.Lock()
	business, ok := s.businesses[businessID]
	s.mu.Unlock()
	if !ok {
		return domain.RunRecord{}, fmt.Errorf("business %s: %w", businessID, domain.ErrNotRegistered)
	}

	return s.Trigger(ctx, business), nil
}

// Trigger runs the pipeline for one business under the overlap guard and the
// global concurrency cap.
func (s *Scheduler) Trigger(ctx context.Context, business domain.Business) domain.RunRecord {
	if !s.acquire(business.ID) {
		now := time.Now().UTC()
		record := domain.RunRecord{
			ID:         uuid.NewString(),
			BusinessID: business.ID,
			StartedAt:  now,
			FinishedAt: now,
			Outcome:    domain.RunSkipped,
			Error:      "already running",
		}
		s.log().Warn("run skipped: already running", "business", business.ID)
		if err := s.store.RecordRun(ctx, record); err != nil {
			s.log().Warn("record skipped run", "business", business.ID, "error", err)
		}
		return record
	}
	defer s.release(business.ID)

	s.wg.Add(1)
	defer s.wg.Done()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		now := time.Now().UTC()
		record := domain.RunRecord{
			ID:         uuid.NewString(),
			BusinessID: business.ID,
			StartedAt:  now,
			FinishedAt: now,
			Outcome:    domain.RunAborted,
			Error:      ctx.Err().Error(),
		}
		// ctx is already done; the audit write gets its own deadline.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.store.RecordRun(recordCtx, record); err != nil {
			s.log().Warn("record aborted run", "business", business.ID, "error", err)
		}
		return record
	}
	defer func() { <-s.sem }()

	record := s.pipeline.Run(ctx, business)

	if s.notifier != nil && record.Outcome != domain.RunSuccess && record.Outcome != domain.RunSkipped {
		if err := s.notifier.PublishRunSummary(ctx, record); err != nil {
			s.log().Warn("publish run summary", "business", business.ID, "error", err)
		}
	}

	return record
}

func (s *Scheduler) acquire(businessID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[businessID] {
		return false
	}
	s.inflight[businessID] = true
	return true
}

func (s *Scheduler) release(businessID string) {
	s.mu.Lock()
	delete(s.inflight, businessID)
	s.mu.Unlock()
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCtx
}

func (s *Scheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
