package metadata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sakif/movie-tracker/internal/metrics"
)

const ratingsServiceName = "omdb"

// RatingsConfig configures the ratings provider client.
type RatingsConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Ratings is the best-effort enrichment for one movie. Either field may be nil.
type Ratings struct {
	IMDb           *float64
	RottenTomatoes *int
}

// RatingsClient fetches IMDb and Rotten Tomatoes scores from OMDb.
//
// FetchRatings never fails: a missing key, a network error, an error body or
// a malformed value all produce nil fields. Ratings are optional enrichment
// and must not fail the detail fetch that asked for them.
type RatingsClient struct {
	cfg    RatingsConfig
	http   *http.Client
	logger *slog.Logger
}

func NewRatingsClient(cfg RatingsConfig, logger *slog.Logger) *RatingsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://www.omdbapi.com/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &RatingsClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type omdbResponse struct {
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	IMDbRating string `json:"imdbRating"`
	Ratings    []struct {
		Source string `json:"Source"`
		Value  string `json:"Value"`
	} `json:"Ratings"`
}

// FetchRatings looks up the ratings for an IMDb id such as "tt1375666".
func (c *RatingsClient) FetchRatings(ctx context.Context, imdbID string) Ratings {
	if c.cfg.APIKey == "" || imdbID == "" {
		return Ratings{}
	}

	body, err := c.get(ctx, imdbID)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(ratingsServiceName, "network_error").Inc()
		c.logger.Warn("ratings lookup failed",
			slog.String("imdbID", imdbID),
			slog.String("error", err.Error()),
		)
		return Ratings{}
	}

	var resp omdbResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(ratingsServiceName, "http_error").Inc()
		c.logger.Warn("ratings response malformed",
			slog.String("imdbID", imdbID),
			slog.String("error", err.Error()),
		)
		return Ratings{}
	}
	if strings.EqualFold(resp.Response, "False") {
		metrics.UpstreamRequestsTotal.WithLabelValues(ratingsServiceName, "http_error").Inc()
		c.logger.Warn("ratings provider returned an error",
			slog.String("imdbID", imdbID),
			slog.String("message", resp.Error),
		)
		return Ratings{}
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(ratingsServiceName, "ok").Inc()

	out := Ratings{IMDb: parseIMDbRating(resp.IMDbRating)}
	for _, r := range resp.Ratings {
		if r.Source == "Rotten Tomatoes" {
			out.RottenTomatoes = parsePercent(r.Value)
			break
		}
	}
	return out
}

func (c *RatingsClient) get(ctx context.Context, imdbID string) ([]byte, error) {
	q := url.Values{}
	q.Set("i", imdbID)
	q.Set("apikey", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(ratingsServiceName).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// parseIMDbRating parses "8.8"; "N/A" and garbage become nil.
func parseIMDbRating(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 10 {
		return nil
	}
	return &v
}

// parsePercent parses "87%" into 87. Values outside 0..100 become nil.
func parsePercent(raw string) *int {
	raw = strings.TrimSpace(raw)
	if !strings.HasSuffix(raw, "%") {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSuffix(raw, "%"))
	if err != nil || v < 0 || v > 100 {
		return nil
	}
	return &v
}
