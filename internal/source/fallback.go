// Package source selects between the structured-API and scraping variants.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/ports"
)

// Fallback prefers the API variant and falls back to scraping only when the
// API reports rejected credentials or unavailability at the business level.
// The variant that served the fetch is reported for the run record.
type Fallback struct {
	api     ports.ReviewSource
	scraper ports.ReviewSource
	logger  *slog.Logger
}

var _ ports.SourceSelector = (*Fallback)(nil)

// NewFallback wires the two variants; either may be nil when not configured.
func NewFallback(api, scraper ports.ReviewSource, logger *slog.Logger) *Fallback {
	return &Fallback{api: api, scraper: scraper, logger: logger}
}

// Fetch applies the selection policy for one business.
func (f *Fallback) Fetch(ctx context.Context, business domain.Business) (domain.FetchResult, error) {
	if f.api == nil && f.scraper == nil {
		return domain.FetchResult{}, fmt.Errorf("no review source configured")
	}

	// A business registered without an API locator can only be scraped.
	useAPI := f.api != nil && business.PlaceID != ""

	if useAPI {
		batch, err := f.api.FetchReviews(ctx, business)
		if err == nil {
			return domain.FetchResult{FetchBatch: batch, Source: f.api.Kind()}, nil
		}

		fallbackable := errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrUnavailable)
		if !fallbackable || f.scraper == nil || business.PageURL == "" {
			return domain.FetchResult{Source: f.api.Kind()}, err
		}

		if f.logger != nil {
			f.logger.Warn("api variant failed, falling back to scraping",
				"business", business.ID, "error", err)
		}
	}

	if f.scraper == nil {
		return domain.FetchResult{}, fmt.Errorf("%w: business %s has no usable source", domain.ErrNotFound, business.ID)
	}

	batch, err := f.scraper.FetchReviews(ctx, business)
	if err != nil {
		return domain.FetchResult{Source: f.scraper.Kind()}, err
	}
	return domain.FetchResult{FetchBatch: batch, Source: f.scraper.Kind()}, nil
}
