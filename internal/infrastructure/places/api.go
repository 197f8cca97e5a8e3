// Package places implements the two review source variants for Google place
// pages: the structured Places API client and the HTML scraping fallback.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ReviewRadar/internal/config"
	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/ports"
)

// APIClient fetches reviews through the structured place-details endpoint.
// It paginates via the source's cursor token and enforces the configured
// request spacing and daily quota.
type APIClient struct {
	baseURL       string
	apiKey        string
	client        *http.Client
	logger        *slog.Logger
	maxReviews    int
	maxRetries    int
	minInterval   time.Duration
	retryInterval time.Duration
	dailyQuota    int

	mu          sync.Mutex
	lastRequest time.Time
	quotaDay    time.Time
	quotaUsed   int
}

var _ ports.ReviewSource = (*APIClient)(nil)

// NewAPIClient builds a client from source configuration.
func NewAPIClient(cfg config.SourceConfig, client *http.Client, logger *slog.Logger) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout()}
	}
	return &APIClient{
		baseURL:       cfg.APIBaseURL,
		apiKey:        cfg.APIKey,
		client:        client,
		logger:        logger,
		maxReviews:    cfg.MaxReviews,
		maxRetries:    cfg.MaxRetries,
		minInterval:   cfg.MinRequestInterval(),
		retryInterval: 500 * time.Millisecond,
		dailyQuota:    cfg.DailyQuota,
	}
}

// Kind identifies the variant on run records.
func (c *APIClient) Kind() domain.SourceKind {
	return domain.SourceAPI
}

// FetchReviews walks the pagination cursor until the source is exhausted or
// the configured review cap is reached.
func (c *APIClient) FetchReviews(ctx context.Context, business domain.Business) (domain.FetchBatch, error) {
	if c.apiKey == "" {
		return domain.FetchBatch{}, fmt.Errorf("%w: api key is not configured", domain.ErrAuth)
	}
	if business.PlaceID == "" {
		return domain.FetchBatch{}, fmt.Errorf("%w: business %s has no place id", domain.ErrNotFound, business.ID)
	}

	var batch domain.FetchBatch
	seen := map[string]struct{}{}
	pageToken := ""

	for {
		if err := c.reserve(ctx); err != nil {
			return domain.FetchBatch{}, err
		}

		page, err := c.fetchPage(ctx, business.PlaceID, pageToken)
		if err != nil {
			return domain.FetchBatch{}, err
		}

		for _, rv := range page.Result.Reviews {
			raw := rv.toRaw()
			if _, ok := seen[raw.SourceID]; ok {
				continue
			}
			seen[raw.SourceID] = struct{}{}
			batch.Reviews = append(batch.Reviews, raw)

			if c.maxReviews > 0 && len(batch.Reviews) >= c.maxReviews {
				return batch, nil
			}
		}

		if page.NextPageToken == "" || len(page.Result.Reviews) == 0 {
			break
		}
		pageToken = page.NextPageToken
	}

	return batch, nil
}

// reserve spaces requests per the rate limit and charges the daily quota.
func (c *APIClient) reserve(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now().UTC()

	day := now.Truncate(24 * time.Hour)
	if !day.Equal(c.quotaDay) {
		c.quotaDay = day
		c.quotaUsed = 0
	}
	if c.dailyQuota > 0 && c.quotaUsed >= c.dailyQuota {
		c.mu.Unlock()
		return fmt.Errorf("%w: daily quota of %d requests spent", domain.ErrQuotaExceeded, c.dailyQuota)
	}
	c.quotaUsed++

	wait := c.minInterval - now.Sub(c.lastRequest)
	if wait < 0 {
		wait = 0
	}
	c.lastRequest = now.Add(wait)
	c.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *APIClient) fetchPage(ctx context.Context, placeID, pageToken string) (*detailsResponse, error) {
	var page *detailsResponse

	operation := func() error {
		pageURL, err := c.buildURL(placeID, pageToken)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("request reviews page: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: http %s", domain.ErrAuth, resp.Status))
		case resp.StatusCode == http.StatusTooManyRequests:
			return backoff.Permanent(fmt.Errorf("%w: http %s", domain.ErrQuotaExceeded, resp.Status))
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("places returned %s", resp.Status)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("places returned %s", resp.Status))
		}

		var decoded detailsResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		switch decoded.Status {
		case "OK", "ZERO_RESULTS":
		case "OVER_QUERY_LIMIT":
			return backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, decoded.ErrorMessage))
		case "REQUEST_DENIED":
			return backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrAuth, decoded.ErrorMessage))
		case "NOT_FOUND", "INVALID_REQUEST":
			return backoff.Permanent(fmt.Errorf("%w: status %s", domain.ErrNotFound, decoded.Status))
		default:
			return fmt.Errorf("places status %s: %s", decoded.Status, decoded.ErrorMessage)
		}

		page = &decoded
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx))
	if err != nil {
		if domain.IsFatal(err) || errors.Is(err, domain.ErrQuotaExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	return page, nil
}

func (c *APIClient) buildURL(placeID, pageToken string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid api base url %s: %w", c.baseURL, err)
	}

	query := parsed.Query()
	query.Set("place_id", placeID)
	query.Set("fields", "name,reviews")
	query.Set("key", c.apiKey)
	if pageToken != "" {
		query.Set("pagetoken", pageToken)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type detailsResponse struct {
	Status        string `json:"status"`
	ErrorMessage  string `json:"error_message"`
	NextPageToken string `json:"next_page_token"`
	Result        struct {
		Name    string      `json:"name"`
		Reviews []apiReview `json:"reviews"`
	} `json:"result"`
}

type apiReview struct {
	AuthorName string `json:"author_name"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
	Time       int64  `json:"time"`
}

func (r apiReview) toRaw() domain.RawReview {
	posted := time.Time{}
	if r.Time > 0 {
		posted = time.Unix(r.Time, 0).UTC()
	}
	return domain.RawReview{
		// The endpoint exposes no review id; the posted timestamp is the
		// closest stable handle.
		SourceID: strconv.FormatInt(r.Time, 10),
		Author:   r.AuthorName,
		Rating:   r.Rating,
		Text:     r.Text,
		PostedAt: posted,
	}
}
