package metadata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/movie-tracker/internal/apperror"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/3",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, testLogger())
}

// =========================================================================
// FETCH TESTS
// =========================================================================

func TestFetch_SendsKeyAndLanguage(t *testing.T) {
	var gotPath, gotKey, gotLang, gotAppend string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("api_key")
		gotLang = r.URL.Query().Get("language")
		gotAppend = r.URL.Query().Get("append_to_response")
		_, _ = w.Write([]byte(`{"id":27205,"title":"Inception","release_date":"2010-07-16"}`))
	})

	rec, err := c.MovieDetail(context.Background(), 27205)
	require.NoError(t, err)

	assert.Equal(t, "/3/movie/27205", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "en-US", gotLang)
	assert.Equal(t, "credits,external_ids", gotAppend)

	assert.False(t, rec.IsError())
	assert.Equal(t, int64(27205), rec.ID)
	require.NotNil(t, rec.Title)
	assert.Equal(t, "Inception", *rec.Title)
}

func TestFetch_NotFoundIsUpstreamWithStatus(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"status_code":34,"status_message":"The resource you requested could not be found."}`))
	})

	_, err := c.MovieDetail(context.Background(), 1)
	require.Error(t, err)

	assert.True(t, errors.Is(err, apperror.ErrUpstream))
	assert.True(t, IsNotFound(err))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	// 4xx is not transient
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"page":1,"results":[{"id":1,"title":"A"}],"total_pages":1,"total_results":1}`))
	})

	page, err := c.PopularMovies(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	require.Len(t, page.Results, 1)
	assert.Equal(t, int64(1), page.Results[0].ID)
}

func TestFetch_GivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.NowPlaying(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_NetworkFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: base, RetryDelay: time.Millisecond}, testLogger())
	_, err := c.Genres(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
	assert.False(t, IsNotFound(err))
}

func TestFetch_MalformedBodyIsUpstream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := c.SearchMovies(context.Background(), "x", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
}

func TestFetch_EnvelopeInSuccessBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"status_code":34,"status_message":"not found"}`))
	})

	rec, err := c.MovieDetail(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, rec.IsError())
	assert.Equal(t, "not found", rec.Message())
}

func TestFetch_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:                 srv.URL,
		BreakerFailureThreshold: 2,
		BreakerOpenTimeout:      time.Minute,
	}, testLogger())

	for i := 0; i < 2; i++ {
		_, err := c.Genres(context.Background())
		require.Error(t, err)
	}
	before := hits.Load()

	_, err := c.Genres(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
	assert.Equal(t, before, hits.Load(), "open breaker must not reach the provider")
}

// =========================================================================
// ENDPOINT PARAMETER TESTS
// =========================================================================

func TestSearchMovies_SendsQueryAndPage(t *testing.T) {
	var gotQuery, gotPage string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotPage = r.URL.Query().Get("page")
		_, _ = w.Write([]byte(`{"page":2,"results":[],"total_pages":4}`))
	})

	page, err := c.SearchMovies(context.Background(), "Inception", 2)
	require.NoError(t, err)
	assert.Equal(t, "Inception", gotQuery)
	assert.Equal(t, "2", gotPage)
	assert.Equal(t, 4, page.TotalPages)
}

func TestDiscover_EncodesFilters(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{}
		for k := range r.URL.Query() {
			got[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`{"page":1,"results":[]}`))
	})

	minVote := 7.5
	_, err := c.Discover(context.Background(), DiscoverParams{
		Genres:         []int64{28, 12},
		Year:           2010,
		MinVoteAverage: &minVote,
		People:         []int64{6193},
		Companies:      []int64{923},
		SortBy:         "popularity.desc",
	})
	require.NoError(t, err)

	assert.Equal(t, "28,12", got["with_genres"])
	assert.Equal(t, "2010", got["primary_release_year"])
	assert.Equal(t, "7.5", got["vote_average.gte"])
	assert.Equal(t, "6193", got["with_people"])
	assert.Equal(t, "923", got["with_companies"])
	assert.Equal(t, "popularity.desc", got["sort_by"])
	_, hasPage := got["page"]
	assert.False(t, hasPage)
}

func TestPersonMovieCredits_Decodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/3/person/525/movie_credits", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":525,"cast":[{"id":1,"title":"A"}],"crew":[{"id":27205,"title":"Inception"}]}`))
	})

	credits, err := c.PersonMovieCredits(context.Background(), 525)
	require.NoError(t, err)
	assert.Len(t, credits.Cast, 1)
	require.Len(t, credits.Crew, 1)
	assert.Equal(t, int64(27205), credits.Crew[0].ID)
}
