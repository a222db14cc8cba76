// Package metadata wraps the external movie-metadata provider (TMDB) and the
// secondary ratings provider (OMDb).
//
// The clients are thin: they issue GET requests, decode JSON into the plain
// record types in types.go and keep no local state. Turning those records
// into catalog entities is the normalize package's job.
//
// OUTBOUND RESILIENCE:
// Every provider call passes through three layers, outermost first:
//
//	rate.Limiter   → keeps us under the provider's request quota
//	gobreaker      → stops hammering a provider that is down
//	retry-go       → retries transient failures (network, 5xx, 429)
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/metrics"
)

const serviceName = "tmdb"

// Config configures the metadata provider client.
type Config struct {
	APIKey   string
	BaseURL  string
	Language string

	// Timeout bounds a single HTTP attempt, retries excluded.
	Timeout time.Duration

	RequestsPerSecond float64
	Burst             int

	MaxRetries uint
	RetryDelay time.Duration

	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration
}

// DefaultConfig returns the production defaults for TMDB.
func DefaultConfig() Config {
	return Config{
		BaseURL:                 "https://api.themoviedb.org/3",
		Language:                "en-US",
		Timeout:                 10 * time.Second,
		RequestsPerSecond:       20,
		Burst:                   10,
		MaxRetries:              3,
		RetryDelay:              200 * time.Millisecond,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeout:      30 * time.Second,
	}
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// retryable reports whether a fresh attempt could plausibly succeed.
func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err carries a provider 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client talks to the TMDB v3 API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// NewClient creates a Client. Zero-valued fields in cfg fall back to
// DefaultConfig.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = def.BreakerFailureThreshold
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = def.BreakerOpenTimeout
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}

	threshold := cfg.BreakerFailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.CircuitBreakerOpen.WithLabelValues(name).Set(open)
			logger.Warn("circuit breaker state changed",
				slog.String("service", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		// A 4xx is the provider working correctly on a bad request.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.retryable()
			}
			return err == nil
		},
	})

	return c
}

// Fetch issues GET {BaseURL}/{path} with params and decodes the JSON body into out.
//
// Any network failure or non-2xx status is returned as apperror.ErrUpstream;
// a *StatusError is reachable through errors.As when the provider answered.
func (c *Client) Fetch(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperror.Upstream(serviceName, fmt.Errorf("waiting for rate limiter: %w", err))
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return retry.DoWithData(
			func() ([]byte, error) { return c.get(ctx, path, params) },
			retry.Context(ctx),
			retry.Attempts(c.cfg.MaxRetries+1),
			retry.Delay(c.cfg.RetryDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(isTransient),
			retry.OnRetry(func(n uint, err error) {
				c.logger.Debug("retrying provider request",
					slog.String("service", serviceName),
					slog.String("path", path),
					slog.Uint64("attempt", uint64(n+1)),
					slog.String("error", err.Error()),
				)
			}),
		)
	})
	metrics.UpstreamRequestDuration.WithLabelValues(serviceName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(serviceName, outcome(err)).Inc()
		return apperror.Upstream(serviceName, fmt.Errorf("GET %s: %w", path, err))
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(serviceName, "ok").Inc()

	if err := json.Unmarshal(body, out); err != nil {
		return apperror.Upstream(serviceName, fmt.Errorf("decoding %s: %w", path, err))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("api_key", c.cfg.APIKey)
	if q.Get("language") == "" {
		q.Set("language", c.cfg.Language)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/") + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Body:       snippet(body),
		}
	}
	return body, nil
}

func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.retryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.As(err, &se):
		return "http_error"
	default:
		return "network_error"
	}
}

func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit]
	}
	return s
}

func pageParams(page int) url.Values {
	v := url.Values{}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	return v
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

// === MOVIES ===

// SearchMovies runs a free-text movie search.
func (c *Client) SearchMovies(ctx context.Context, query string, page int) (*Page[MovieRecord], error) {
	params := pageParams(page)
	params.Set("query", query)

	var out Page[MovieRecord]
	if err := c.Fetch(ctx, "search/movie", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MovieDetail fetches one movie with its credits and external ids appended.
// The caller must check the returned record's IsError.
func (c *Client) MovieDetail(ctx context.Context, tmdbID int64) (*MovieRecord, error) {
	params := url.Values{}
	params.Set("append_to_response", "credits,external_ids")

	var out MovieRecord
	if err := c.Fetch(ctx, fmt.Sprintf("movie/%d", tmdbID), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PopularMovies(ctx context.Context, page int) (*Page[MovieRecord], error) {
	var out Page[MovieRecord]
	if err := c.Fetch(ctx, "movie/popular", pageParams(page), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) NowPlaying(ctx context.Context, page int) (*Page[MovieRecord], error) {
	var out Page[MovieRecord]
	if err := c.Fetch(ctx, "movie/now_playing", pageParams(page), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MovieRecommendations lists the provider's own "similar" picks for a movie.
func (c *Client) MovieRecommendations(ctx context.Context, tmdbID int64, page int) (*Page[MovieRecord], error) {
	var out Page[MovieRecord]
	if err := c.Fetch(ctx, fmt.Sprintf("movie/%d/recommendations", tmdbID), pageParams(page), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MovieVideos(ctx context.Context, tmdbID int64) (*VideoList, error) {
	var out VideoList
	if err := c.Fetch(ctx, fmt.Sprintf("movie/%d/videos", tmdbID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Discover runs a multi-criteria movie search.
func (c *Client) Discover(ctx context.Context, p DiscoverParams) (*Page[MovieRecord], error) {
	params := pageParams(p.Page)
	if len(p.Genres) > 0 {
		params.Set("with_genres", joinIDs(p.Genres))
	}
	if p.Year > 0 {
		params.Set("primary_release_year", strconv.Itoa(p.Year))
	}
	if p.MinVoteAverage != nil {
		params.Set("vote_average.gte", strconv.FormatFloat(*p.MinVoteAverage, 'f', -1, 64))
	}
	if len(p.People) > 0 {
		params.Set("with_people", joinIDs(p.People))
	}
	if len(p.Companies) > 0 {
		params.Set("with_companies", joinIDs(p.Companies))
	}
	if p.SortBy != "" {
		params.Set("sort_by", p.SortBy)
	}

	var out Page[MovieRecord]
	if err := c.Fetch(ctx, "discover/movie", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// === PEOPLE ===

func (c *Client) SearchPeople(ctx context.Context, query string, page int) (*Page[PersonRecord], error) {
	params := pageParams(page)
	params.Set("query", query)

	var out Page[PersonRecord]
	if err := c.Fetch(ctx, "search/person", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Person fetches one person. The caller must check the record's IsError.
func (c *Client) Person(ctx context.Context, tmdbID int64) (*PersonRecord, error) {
	var out PersonRecord
	if err := c.Fetch(ctx, fmt.Sprintf("person/%d", tmdbID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PersonMovieCredits(ctx context.Context, tmdbID int64) (*PersonMovieCredits, error) {
	var out PersonMovieCredits
	if err := c.Fetch(ctx, fmt.Sprintf("person/%d/movie_credits", tmdbID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// === REFERENCE DATA ===

func (c *Client) Genres(ctx context.Context) (*GenreList, error) {
	var out GenreList
	if err := c.Fetch(ctx, "genre/movie/list", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchCompanies(ctx context.Context, query string, page int) (*Page[CompanyRecord], error) {
	params := pageParams(page)
	params.Set("query", query)

	var out Page[CompanyRecord]
	if err := c.Fetch(ctx, "search/company", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Company fetches one production company.
func (c *Client) Company(ctx context.Context, companyID int64) (*CompanyRecord, error) {
	var out CompanyRecord
	if err := c.Fetch(ctx, fmt.Sprintf("company/%d", companyID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
