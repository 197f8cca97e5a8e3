package places

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/fingerprint"
	"ReviewRadar/internal/ports"
)

var (
	dateExpr   = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)
	ratingExpr = regexp.MustCompile(`\d`)
)

// parseStrategy names one set of DOM markers the scraper recognizes. Review
// pages drift between layouts; the scraper retries a document against the
// alternate strategy before reporting drift.
type parseStrategy struct {
	name     string
	items    string
	author   string
	rating   string
	text     string
	posted   string
	nextLink string
}

var strategies = []parseStrategy{
	{
		name:     "review-card",
		items:    "div.review",
		author:   ".review-author",
		rating:   ".review-rating",
		text:     ".review-text",
		posted:   ".review-date",
		nextLink: "a[rel=\"next\"]",
	},
	{
		name:     "microdata",
		items:    "[itemprop=\"review\"]",
		author:   "[itemprop=\"author\"]",
		rating:   "[itemprop=\"ratingValue\"]",
		text:     "[itemprop=\"reviewBody\"]",
		posted:   "[itemprop=\"datePublished\"]",
		nextLink: "a[rel=\"next\"]",
	},
}

// Scraper recovers reviews from the business's public review page when the
// structured API cannot serve it.
type Scraper struct {
	client   *http.Client
	logger   *slog.Logger
	maxPages int

	mu        sync.Mutex
	preferred int // index of the strategy that last matched
}

var _ ports.ReviewSource = (*Scraper)(nil)

// NewScraper wires an HTTP client; maxPages bounds pagination.
func NewScraper(client *http.Client, logger *slog.Logger) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Scraper{client: client, logger: logger, maxPages: 10}
}

// Kind identifies the variant on run records.
func (s *Scraper) Kind() domain.SourceKind {
	return domain.SourceScrape
}

// FetchReviews walks the review page and its rel=next successors. Items with
// no recoverable author and text are dropped, not fatal; a first page with no
// recognizable markers under either strategy reports drift.
func (s *Scraper) FetchReviews(ctx context.Context, business domain.Business) (domain.FetchBatch, error) {
	if business.PageURL == "" {
		return domain.FetchBatch{}, fmt.Errorf("%w: business %s has no review page url", domain.ErrNotFound, business.ID)
	}

	var batch domain.FetchBatch
	seen := map[string]struct{}{}
	pageURL := business.PageURL

	for page := 0; page < s.maxPages && pageURL != ""; page++ {
		doc, err := s.fetchDocument(ctx, pageURL)
		if err != nil {
			if page == 0 {
				return domain.FetchBatch{}, err
			}
			s.debug("pagination stopped", "page", page, "error", err)
			break
		}

		extracted, next, err := s.extractReviews(doc, pageURL)
		if err != nil {
			if page == 0 {
				return domain.FetchBatch{}, err
			}
			// Drift past the first page degrades the fetch instead of
			// discarding what earlier pages produced. The drifted page's
			// item count is unknowable, so it tallies as one dropped item.
			batch.Dropped++
			s.debug("drift on later page", "page", page, "url", pageURL)
			break
		}

		batch.Dropped += extracted.Dropped
		for _, raw := range extracted.Reviews {
			key := fingerprint.Compute(business.ID, raw)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			batch.Reviews = append(batch.Reviews, raw)
		}

		pageURL = next
	}

	return batch, nil
}

func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ReviewRadar/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request page: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: page returned %s", domain.ErrNotFound, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: page returned %s", domain.ErrUnavailable, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// extractReviews tries the preferred strategy first, then the alternate, and
// caches whichever matched for subsequent documents.
func (s *Scraper) extractReviews(doc *goquery.Document, pageURL string) (domain.FetchBatch, string, error) {
	s.mu.Lock()
	preferred := s.preferred
	s.mu.Unlock()

	order := []int{preferred, 1 - preferred}
	for _, idx := range order {
		strat := strategies[idx]
		items := doc.Find(strat.items)
		if items.Length() == 0 {
			continue
		}

		if idx != preferred {
			s.mu.Lock()
			s.preferred = idx
			s.mu.Unlock()
			s.debug("switched parse strategy", "strategy", strat.name)
		}

		var batch domain.FetchBatch
		items.Each(func(_ int, sel *goquery.Selection) {
			raw, ok := parseReviewItem(sel, strat)
			if !ok {
				batch.Dropped++
				return
			}
			batch.Reviews = append(batch.Reviews, raw)
		})

		next := resolveNextLink(doc, strat, pageURL)
		return batch, next, nil
	}

	return domain.FetchBatch{}, "", fmt.Errorf("%w: no review markers on %s", domain.ErrParseDrift, pageURL)
}

func parseReviewItem(sel *goquery.Selection, strat parseStrategy) (domain.RawReview, bool) {
	author := strings.TrimSpace(sel.Find(strat.author).First().Text())
	text := strings.TrimSpace(sel.Find(strat.text).First().Text())
	if author == "" && text == "" {
		return domain.RawReview{}, false
	}

	sourceID, _ := sel.Attr("data-review-id")

	return domain.RawReview{
		SourceID: sourceID,
		Author:   author,
		Rating:   parseRating(sel.Find(strat.rating).First()),
		Text:     text,
		PostedAt: parsePostedAt(sel.Find(strat.posted).First()),
	}, true
}

// parseRating digs a 1-5 digit out of an aria-label, a content attribute or
// the node text. Zero means the page did not expose a rating.
func parseRating(sel *goquery.Selection) int {
	candidates := []string{}
	if v, ok := sel.Attr("aria-label"); ok {
		candidates = append(candidates, v)
	}
	if v, ok := sel.Attr("content"); ok {
		candidates = append(candidates, v)
	}
	candidates = append(candidates, sel.Text())

	for _, candidate := range candidates {
		match := ratingExpr.FindString(candidate)
		if match == "" {
			continue
		}
		rating, err := strconv.Atoi(match)
		if err != nil || rating < 1 || rating > 5 {
			continue
		}
		return rating
	}
	return 0
}

// parsePostedAt accepts a datetime attribute, an ISO date or a "2 Jan 2006"
// style text. Absence of a date is not fatal; the zero time means unknown.
func parsePostedAt(sel *goquery.Selection) time.Time {
	values := []string{}
	if v, ok := sel.Attr("datetime"); ok {
		values = append(values, v)
	}
	if v, ok := sel.Attr("content"); ok {
		values = append(values, v)
	}
	values = append(values, strings.TrimSpace(sel.Text()))

	for _, value := range values {
		if value == "" {
			continue
		}
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			return parsed.UTC()
		}
		if parsed, err := time.Parse("2006-01-02", value); err == nil {
			return parsed.UTC()
		}
		if match := dateExpr.FindString(value); match != "" {
			if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

func resolveNextLink(doc *goquery.Document, strat parseStrategy, pageURL string) string {
	href, ok := doc.Find(strat.nextLink).First().Attr("href")
	if !ok || href == "" {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	next, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(next).String()
}

func (s *Scraper) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
