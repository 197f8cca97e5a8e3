package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ReviewRadar/internal/config"
	"ReviewRadar/internal/domain"
)

func testSourceConfig(baseURL string) config.SourceConfig {
	return config.SourceConfig{
		APIKey:            "test-key",
		APIBaseURL:        baseURL,
		RequestsPerSecond: 1000,
		DailyQuota:        100,
		MaxRetries:        2,
		TimeoutSeconds:    5,
		MaxReviews:        50,
	}
}

func newTestAPIClient(server *httptest.Server, cfg config.SourceConfig) *APIClient {
	c := NewAPIClient(cfg, server.Client(), nil)
	c.retryInterval = time.Millisecond
	return c
}

func TestFetchReviewsPagination(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key on request")
		}
		switch r.URL.Query().Get("pagetoken") {
		case "":
			fmt.Fprint(w, `{
				"status": "OK",
				"next_page_token": "page-2",
				"result": {"name": "Corner Cafe", "reviews": [
					{"author_name": "Jane", "rating": 5, "text": "Great!", "time": 1767225600},
					{"author_name": "Bob", "rating": 2, "text": "Meh.", "time": 1767312000}
				]}
			}`)
		case "page-2":
			fmt.Fprint(w, `{
				"status": "OK",
				"result": {"name": "Corner Cafe", "reviews": [
					{"author_name": "Ada", "rating": 4, "text": "Nice.", "time": 1767398400}
				]}
			}`)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pagetoken"))
		}
	}))
	defer server.Close()

	client := newTestAPIClient(server, testSourceConfig(server.URL))

	batch, err := client.FetchReviews(context.Background(), domain.Business{ID: "biz-1", PlaceID: "place-1"})
	if err != nil {
		t.Fatalf("FetchReviews error: %v", err)
	}

	if len(batch.Reviews) != 3 {
		t.Fatalf("expected 3 reviews across pages, got %d", len(batch.Reviews))
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	if batch.Reviews[0].Author != "Jane" || batch.Reviews[0].Rating != 5 {
		t.Fatalf("unexpected first review: %+v", batch.Reviews[0])
	}
	if batch.Reviews[2].Author != "Ada" {
		t.Fatalf("unexpected last review: %+v", batch.Reviews[2])
	}
	if batch.Reviews[0].PostedAt.IsZero() {
		t.Fatal("posted timestamp must be mapped")
	}
}

func TestFetchReviewsMaxCap(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"status": "OK",
			"next_page_token": "forever",
			"result": {"reviews": [
				{"author_name": "A", "rating": 3, "text": "x", "time": 1767225600},
				{"author_name": "B", "rating": 3, "text": "y", "time": 1767312000}
			]}
		}`)
	}))
	defer server.Close()

	cfg := testSourceConfig(server.URL)
	cfg.MaxReviews = 2
	client := newTestAPIClient(server, cfg)

	batch, err := client.FetchReviews(context.Background(), domain.Business{ID: "biz-1", PlaceID: "place-1"})
	if err != nil {
		t.Fatalf("FetchReviews error: %v", err)
	}
	if len(batch.Reviews) != 2 {
		t.Fatalf("expected fetch capped at 2 reviews, got %d", len(batch.Reviews))
	}
}

func TestFetchReviewsAuthDenied(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status": "REQUEST_DENIED", "error_message": "The provided API key is invalid."}`)
	}))
	defer server.Close()

	client := newTestAPIClient(server, testSourceConfig(server.URL))

	_, err := client.FetchReviews(context.Background(), domain.Business{ID: "biz-1", PlaceID: "place-1"})
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestFetchReviewsNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status": "NOT_FOUND"}`)
	}))
	defer server.Close()

	client := newTestAPIClient(server, testSourceConfig(server.URL))

	_, err := client.FetchReviews(context.Background(), domain.Business{ID: "biz-1", PlaceID: "bad-place"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchReviewsQuotaSpent(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"status": "OK", "result": {"reviews": []}}`)
	}))
	defer server.Close()

	cfg := testSourceConfig(server.URL)
	cfg.DailyQuota = 1
	client := newTestAPIClient(server, cfg)

	business := domain.Business{ID: "biz-1", PlaceID: "place-1"}
	if _, err := client.FetchReviews(context.Background(), business); err != nil {
		t.Fatalf("first fetch error: %v", err)
	}

	_, err := client.FetchReviews(context.Background(), business)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("quota exhaustion must not hit the network, saw %d requests", got)
	}
}

func TestFetchReviewsRetriesTransient(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"status": "OK", "result": {"reviews": [
			{"author_name": "Jane", "rating": 4, "text": "fine", "time": 1767225600}
		]}}`)
	}))
	defer server.Close()

	client := newTestAPIClient(server, testSourceConfig(server.URL))

	batch, err := client.FetchReviews(context.Background(), domain.Business{ID: "biz-1", PlaceID: "place-1"})
	if err != nil {
		t.Fatalf("FetchReviews error: %v", err)
	}
	if len(batch.Reviews) != 1 {
		t.Fatalf("expected 1 review after retry, got %d", len(batch.Reviews))
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected one retry, saw %d requests", got)
	}
}

func TestFetchReviewsUnavailableAfterRetries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestAPIClient(server, testSourceConfig(server.URL))

	_, err := client.FetchReviews(context.Background(), domain.Business{ID: "biz-1", PlaceID: "place-1"})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFetchReviewsRequiresCredentials(t *testing.T) {
	t.Parallel()

	cfg := testSourceConfig("http://unused.invalid")
	cfg.APIKey = ""
	client := NewAPIClient(cfg, nil, nil)

	_, err := client.FetchReviews(context.Background(), domain.Business{ID: "biz-1", PlaceID: "place-1"})
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth without a key, got %v", err)
	}
}
