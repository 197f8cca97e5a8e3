package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ReviewRadar/internal/domain"
)

const cardMarkup = `
<div class="reviews-feed">
  <div class="review" data-review-id="rev-1">
    <span class="review-author">Jane Doe</span>
    <span class="review-rating" aria-label="4 stars"></span>
    <p class="review-text">Lovely cakes and quick service.</p>
    <span class="review-date">8 Nov 2025</span>
  </div>
  <div class="review" data-review-id="rev-2">
    <span class="review-author">Bob</span>
    <span class="review-rating" aria-label="1 star"></span>
    <p class="review-text">Cold coffee.</p>
  </div>
</div>`

const microdataMarkup = `
<section>
  <div itemprop="review">
    <span itemprop="author">Ada</span>
    <meta itemprop="ratingValue" content="5">
    <p itemprop="reviewBody">Best croissants in town.</p>
    <meta itemprop="datePublished" content="2025-11-08">
  </div>
</section>`

func scrapeBusiness(url string) domain.Business {
	return domain.Business{ID: "biz-1", PageURL: url}
}

func TestScraperCardMarkup(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, cardMarkup)
	}))
	defer server.Close()

	sc := NewScraper(server.Client(), nil)

	batch, err := sc.FetchReviews(context.Background(), scrapeBusiness(server.URL))
	if err != nil {
		t.Fatalf("FetchReviews error: %v", err)
	}

	if len(batch.Reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(batch.Reviews))
	}

	first := batch.Reviews[0]
	if first.Author != "Jane Doe" {
		t.Fatalf("unexpected author: %s", first.Author)
	}
	if first.Rating != 4 {
		t.Fatalf("expected rating 4 from aria-label, got %d", first.Rating)
	}
	if first.SourceID != "rev-1" {
		t.Fatalf("unexpected source id: %s", first.SourceID)
	}
	wantDay := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
	if !first.PostedAt.Equal(wantDay) {
		t.Fatalf("unexpected posted date: %v", first.PostedAt)
	}

	// Second item has no date element at all; absence is not fatal.
	if !batch.Reviews[1].PostedAt.IsZero() {
		t.Fatalf("missing date must map to zero time, got %v", batch.Reviews[1].PostedAt)
	}
}

func TestScraperSwitchesToMicrodata(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, microdataMarkup)
	}))
	defer server.Close()

	sc := NewScraper(server.Client(), nil)

	batch, err := sc.FetchReviews(context.Background(), scrapeBusiness(server.URL))
	if err != nil {
		t.Fatalf("FetchReviews error: %v", err)
	}

	if len(batch.Reviews) != 1 {
		t.Fatalf("expected 1 review, got %d", len(batch.Reviews))
	}
	if batch.Reviews[0].Author != "Ada" || batch.Reviews[0].Rating != 5 {
		t.Fatalf("unexpected review: %+v", batch.Reviews[0])
	}

	if sc.preferred != 1 {
		t.Fatal("scraper should cache the strategy that matched")
	}
}

func TestScraperParseDrift(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>Nothing that looks like a review.</p></body></html>`)
	}))
	defer server.Close()

	sc := NewScraper(server.Client(), nil)

	_, err := sc.FetchReviews(context.Background(), scrapeBusiness(server.URL))
	if !errors.Is(err, domain.ErrParseDrift) {
		t.Fatalf("expected ErrParseDrift, got %v", err)
	}
}

func TestScraperDropsUnusableItems(t *testing.T) {
	t.Parallel()

	markup := `
	<div class="review" data-review-id="empty"></div>
	<div class="review" data-review-id="ok">
	  <span class="review-author">Jane</span>
	  <p class="review-text">fine</p>
	</div>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, markup)
	}))
	defer server.Close()

	sc := NewScraper(server.Client(), nil)

	batch, err := sc.FetchReviews(context.Background(), scrapeBusiness(server.URL))
	if err != nil {
		t.Fatalf("FetchReviews error: %v", err)
	}
	if len(batch.Reviews) != 1 {
		t.Fatalf("expected 1 usable review, got %d", len(batch.Reviews))
	}
	if batch.Dropped != 1 {
		t.Fatalf("expected 1 dropped item, got %d", batch.Dropped)
	}
}

func TestScraperFollowsNextLink(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `<div class="review"><span class="review-author">Bob</span><p class="review-text">two</p></div>`)
			return
		}
		fmt.Fprint(w, `
		<div class="review"><span class="review-author">Jane</span><p class="review-text">one</p></div>
		<a rel="next" href="/reviews?page=2">next</a>`)
	}))
	defer server.Close()

	sc := NewScraper(server.Client(), nil)

	batch, err := sc.FetchReviews(context.Background(), scrapeBusiness(server.URL+"/reviews"))
	if err != nil {
		t.Fatalf("FetchReviews error: %v", err)
	}
	if len(batch.Reviews) != 2 {
		t.Fatalf("expected reviews from both pages, got %d", len(batch.Reviews))
	}
}

func TestScraperNotFoundPage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sc := NewScraper(server.Client(), nil)

	_, err := sc.FetchReviews(context.Background(), scrapeBusiness(server.URL))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParsePostedAtFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		html string
		want time.Time
	}{
		{`<span class="d" datetime="2025-11-08T10:30:00Z">x</span>`, time.Date(2025, 11, 8, 10, 30, 0, 0, time.UTC)},
		{`<span class="d">2025-11-08</span>`, time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC)},
		{`<span class="d">Reviewed on 8 Nov 2025</span>`, time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC)},
		{`<span class="d"></span>`, time.Time{}},
	}

	for _, tc := range cases {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(tc.html))
		if err != nil {
			t.Fatalf("new document: %v", err)
		}
		got := parsePostedAt(doc.Find(".d").First())
		if !got.Equal(tc.want) {
			t.Fatalf("parsePostedAt(%s) = %v, want %v", tc.html, got, tc.want)
		}
	}
}
