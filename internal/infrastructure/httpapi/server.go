package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/ports"
)

// Triggerer starts an on-demand ingestion run for a registered business.
type Triggerer interface {
	RunNow(ctx context.Context, businessID string) (domain.RunRecord, error)
}

// Server exposes persisted review state over a small JSON API.
type Server struct {
	reader    ports.ReviewReader
	triggerer Triggerer
	logger    *slog.Logger
	http      *http.Server
}

// NewServer builds the gin router and the underlying http.Server.
func NewServer(addr string, reader ports.ReviewReader, triggerer Triggerer, logger *slog.Logger) *Server {
	s := &Server{
		reader:    reader,
		triggerer: triggerer,
		logger:    logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/businesses", s.getBusinesses)
	api.GET("/reviews", s.getReviews)
	api.GET("/stats", s.getStats)
	api.GET("/runs", s.getRuns)
	api.POST("/fetch-reviews", s.postFetchReviews)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start serves until Shutdown. It blocks, so callers run it in a goroutine.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type businessResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	PlaceID string `json:"place_id,omitempty"`
	PageURL string `json:"page_url,omitempty"`
}

type reviewResponse struct {
	Fingerprint string  `json:"fingerprint"`
	BusinessID  string  `json:"business_id"`
	Author      string  `json:"author"`
	Rating      int     `json:"rating"`
	Text        string  `json:"text"`
	PostedAt    string  `json:"posted_at,omitempty"`
	Sentiment   string  `json:"sentiment"`
	Score       float64 `json:"score"`
	FirstSeen   string  `json:"first_seen"`
	LastSeen    string  `json:"last_seen"`
}

type runResponse struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Source     string `json:"source,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Outcome    string `json:"outcome"`
	Fetched    int    `json:"fetched"`
	New        int    `json:"new"`
	Duplicate  int    `json:"duplicate"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) getBusinesses(c *gin.Context) {
	businesses, err := s.reader.ListBusinesses(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]businessResponse, 0, len(businesses))
	for _, b := range businesses {
		out = append(out, businessResponse{ID: b.ID, Name: b.Name, PlaceID: b.PlaceID, PageURL: b.PageURL})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getReviews(c *gin.Context) {
	businessID := c.Query("business_id")
	if businessID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.reader.GetBusiness(c.Request.Context(), businessID); err != nil {
		s.fail(c, err)
		return
	}

	reviews, err := s.reader.ListReviews(c.Request.Context(), businessID, filter)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]reviewResponse, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, reviewResponse{
			Fingerprint: r.Fingerprint,
			BusinessID:  r.BusinessID,
			Author:      r.Author,
			Rating:      r.Rating,
			Text:        r.Text,
			PostedAt:    formatTime(r.PostedAt),
			Sentiment:   string(r.Sentiment),
			Score:       r.Score,
			FirstSeen:   formatTime(r.FirstSeen),
			LastSeen:    formatTime(r.LastSeen),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getStats(c *gin.Context) {
	businessID := c.Query("business_id")
	if businessID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
		return
	}

	if _, err := s.reader.GetBusiness(c.Request.Context(), businessID); err != nil {
		s.fail(c, err)
		return
	}

	stats, err := s.reader.Stats(c.Request.Context(), businessID)
	if err != nil {
		s.fail(c, err)
		return
	}

	ratings := map[string]int{}
	for rating, count := range stats.RatingCounts {
		ratings[strconv.Itoa(rating)] = count
	}
	sentiments := map[string]int{}
	for label, count := range stats.SentimentCounts {
		sentiments[string(label)] = count
	}

	c.JSON(http.StatusOK, gin.H{
		"business_id":      businessID,
		"review_count":     stats.ReviewCount,
		"average_rating":   stats.AverageRating,
		"rating_counts":    ratings,
		"sentiment_counts": sentiments,
	})
}

func (s *Server) getRuns(c *gin.Context) {
	businessID := c.Query("business_id")
	if businessID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
		return
	}

	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runs, err := s.reader.RunHistory(c.Request.Context(), businessID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, runResponse{
			ID:         r.ID,
			BusinessID: r.BusinessID,
			Source:     string(r.Source),
			StartedAt:  formatTime(r.StartedAt),
			FinishedAt: formatTime(r.FinishedAt),
			Outcome:    string(r.Outcome),
			Fetched:    r.Fetched,
			New:        r.New,
			Duplicate:  r.Duplicate,
			Failed:     r.Failed,
			Error:      r.Error,
		})
	}
	c.JSON(http.StatusOK, out)
}

type fetchRequest struct {
	BusinessID string `json:"business_id"`
}

func (s *Server) postFetchReviews(c *gin.Context) {
	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BusinessID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
		return
	}

	record, err := s.triggerer.RunNow(c.Request.Context(), req.BusinessID)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":    record.ID,
		"outcome":   string(record.Outcome),
		"fetched":   record.Fetched,
		"new":       record.New,
		"duplicate": record.Duplicate,
		"failed":    record.Failed,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotRegistered) || errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if s.logger != nil {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func parseFilter(c *gin.Context) (domain.ReviewFilter, error) {
	var filter domain.ReviewFilter
	var err error

	if filter.MinRating, err = intQuery(c, "rating_min", 0); err != nil {
		return filter, err
	}
	if filter.MaxRating, err = intQuery(c, "rating_max", 0); err != nil {
		return filter, err
	}
	if filter.Limit, err = intQuery(c, "limit", 0); err != nil {
		return filter, err
	}
	if filter.Offset, err = intQuery(c, "offset", 0); err != nil {
		return filter, err
	}

	if v := c.Query("sentiment"); v != "" {
		filter.Sentiment = domain.SentimentLabel(v)
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			since, err = time.Parse("2006-01-02", v)
		}
		if err != nil {
			return filter, errors.New("since must be RFC3339 or YYYY-MM-DD")
		}
		filter.Since = since
	}

	return filter, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
