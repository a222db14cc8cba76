package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/completion"
	"github.com/sakif/movie-tracker/internal/metrics"
	"github.com/sakif/movie-tracker/internal/model"
)

const (
	// RecommendationLimit caps the result list.
	RecommendationLimit = 5

	recommendationSystemRole = "You are a movie recommendation expert."

	// maxPromptMovies bounds the prompt for very large collections.
	maxPromptMovies = 50

	resolveWorkers  = 4
	backfillPages   = 2
	unratedWeight   = 3
	promptTopActors = 3
)

// HistorySource returns a user's complete collection.
type HistorySource interface {
	History(ctx context.Context, userID string) ([]model.CollectionEntry, error)
}

// CandidateResolver materializes recommended titles as local movies.
type CandidateResolver interface {
	GetOrFetchMovie(ctx context.Context, tmdbID int64) (*model.Movie, bool, error)
	SearchMovies(ctx context.Context, query string, page int) (*MoviePage, error)
	PopularMovies(ctx context.Context, page int) (*MoviePage, error)
}

// Candidate is one parsed line of a completion reply.
type Candidate struct {
	Title     string
	Genre     string
	Actors    []string
	Directors []string
	TMDBID    *int64
}

// Recommendation sources.
const (
	SourceCompletion = "completion"
	SourcePopular    = "popular"
)

// Recommendation is one resolved result.
type Recommendation struct {
	Movie  model.Movie
	Source string
}

// RecommendationService turns a user's collection into recommendations via
// a completion model, resolving every suggestion against the catalog.
type RecommendationService struct {
	history   HistorySource
	completer completion.Completer
	movies    CandidateResolver
	logger    *slog.Logger
}

func NewRecommendationService(
	history HistorySource,
	completer completion.Completer,
	movies CandidateResolver,
	logger *slog.Logger,
) *RecommendationService {
	return &RecommendationService{history: history, completer: completer, movies: movies, logger: logger}
}

// Recommend returns up to RecommendationLimit movies for the user. An empty
// collection returns an empty list without calling the completion model.
//
// FAILURE POLICY:
//   - rejected completion credentials propagate as apperror.ErrAuthentication
//   - any other completion failure falls back to popular movies
//   - a candidate that cannot be resolved is skipped
func (s *RecommendationService) Recommend(ctx context.Context, userID string) ([]Recommendation, error) {
	history, err := s.history.History(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: loading history: %w", err)
	}
	if len(history) == 0 {
		return []Recommendation{}, nil
	}

	picker := newPicker(history)

	reply, err := s.completer.Complete(ctx, recommendationSystemRole, BuildPrompt(history))
	switch {
	case errors.Is(err, apperror.ErrAuthentication):
		return nil, fmt.Errorf("service/recommendation: %w", err)
	case err != nil:
		s.logger.Warn("completion failed, falling back to popular movies",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	default:
		candidates := ParseCompletionReply(reply)
		s.logger.Debug("completion reply parsed",
			slog.String("userID", userID),
			slog.Int("candidates", len(candidates)),
		)
		for _, m := range s.resolve(ctx, candidates) {
			if m == nil {
				continue
			}
			picker.add(*m, SourceCompletion)
		}
	}

	if !picker.full() {
		if err := s.backfill(ctx, picker); err != nil && len(picker.out) == 0 {
			return nil, fmt.Errorf("service/recommendation: backfilling popular movies: %w", err)
		}
	}
	return picker.out, nil
}

// resolve looks candidates up concurrently. Results keep the reply's order;
// a nil entry is a skipped candidate.
func (s *RecommendationService) resolve(ctx context.Context, candidates []Candidate) []*model.Movie {
	mapper := iter.Mapper[Candidate, *model.Movie]{MaxGoroutines: resolveWorkers}
	return mapper.Map(candidates, func(c *Candidate) *model.Movie {
		m, how, err := s.resolveOne(ctx, *c)
		if err != nil {
			metrics.RecommendationCandidatesTotal.WithLabelValues("skipped").Inc()
			s.logger.Warn("skipping recommendation candidate",
				slog.String("title", c.Title),
				slog.String("error", err.Error()),
			)
			return nil
		}
		metrics.RecommendationCandidatesTotal.WithLabelValues(how).Inc()
		return m
	})
}

func (s *RecommendationService) resolveOne(ctx context.Context, c Candidate) (*model.Movie, string, error) {
	if c.TMDBID != nil {
		m, _, err := s.movies.GetOrFetchMovie(ctx, *c.TMDBID)
		if err == nil {
			return m, "id", nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, "", err
		}
		// A hallucinated id; the title may still match.
	}

	page, err := s.movies.SearchMovies(ctx, c.Title, 1)
	if err != nil {
		return nil, "", err
	}
	if len(page.Movies) == 0 {
		return nil, "", apperror.NotFound("movie", c.Title)
	}
	return &page.Movies[0], "search", nil
}

func (s *RecommendationService) backfill(ctx context.Context, p *picker) error {
	for page := 1; page <= backfillPages && !p.full(); page++ {
		res, err := s.movies.PopularMovies(ctx, page)
		if err != nil {
			return err
		}
		for _, m := range res.Movies {
			if p.add(m, SourcePopular) {
				metrics.RecommendationCandidatesTotal.WithLabelValues("backfill").Inc()
			}
			if p.full() {
				break
			}
		}
		if page >= res.TotalPages {
			break
		}
	}
	return nil
}

// picker collects results, deduplicating by title and skipping movies the
// user has already watched.
type picker struct {
	out     []Recommendation
	titles  map[string]bool
	watched map[int64]bool
}

func newPicker(history []model.CollectionEntry) *picker {
	p := &picker{
		out:     make([]Recommendation, 0, RecommendationLimit),
		titles:  make(map[string]bool, len(history)),
		watched: make(map[int64]bool, len(history)),
	}
	for _, e := range history {
		p.watched[e.Movie.TMDBID] = true
		p.titles[titleKey(e.Movie.Title)] = true
	}
	return p
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func (p *picker) full() bool { return len(p.out) >= RecommendationLimit }

func (p *picker) add(m model.Movie, source string) bool {
	key := titleKey(m.Title)
	if p.full() || key == "" || p.titles[key] || p.watched[m.TMDBID] {
		if !p.full() && source == SourceCompletion {
			metrics.RecommendationCandidatesTotal.WithLabelValues("duplicate").Inc()
		}
		return false
	}
	p.titles[key] = true
	p.out = append(p.out, Recommendation{Movie: m, Source: source})
	return true
}

// === PROMPT ===

type weightedEntry struct {
	entry  model.CollectionEntry
	weight int
}

// BuildPrompt summarizes the collection for the completion model. Entries
// are listed heaviest first: weight is the rating (unrated counts as 3),
// plus a recency bonus for the most recently watched fifth of the history.
// history must be ordered most recent first.
func BuildPrompt(history []model.CollectionEntry) string {
	weighted := make([]weightedEntry, len(history))
	recent := max(1, len(history)/5)
	for i, e := range history {
		w := unratedWeight
		if e.Rating != nil {
			w = *e.Rating
		}
		if i < recent {
			w += 2
		}
		weighted[i] = weightedEntry{entry: e, weight: w}
	}
	sort.SliceStable(weighted, func(i, j int) bool { return weighted[i].weight > weighted[j].weight })
	if len(weighted) > maxPromptMovies {
		weighted = weighted[:maxPromptMovies]
	}

	var b strings.Builder
	b.WriteString("Here are movies I have watched, most important first.\n")
	b.WriteString("Each line is: title; genres; top cast; director; my rating (1-5); weight.\n\n")
	for _, w := range weighted {
		m := w.entry.Movie
		rating := "unrated"
		if w.entry.Rating != nil {
			rating = strconv.Itoa(*w.entry.Rating)
		}
		fmt.Fprintf(&b, "- %s; %s; %s; %s; %s; %d\n",
			m.Title,
			orUnknown(strings.Join(genreNames(m), ", ")),
			orUnknown(strings.Join(topCast(m, promptTopActors), ", ")),
			orUnknown(strings.Join(directors(m), ", ")),
			rating,
			w.weight,
		)
	}

	fmt.Fprintf(&b, "\nRecommend %d movies I have not watched. Give more weight to higher-weight movies.\n", RecommendationLimit)
	b.WriteString("Reply with a numbered list only, one movie per line, exactly in this format:\n")
	b.WriteString("N. Title, Genre, Actor1 & Actor2, Director, TMDB_ID\n")
	b.WriteString("Use the numeric TMDB id if you know it, otherwise write unknown. Do not add any other text.\n")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func genreNames(m model.Movie) []string {
	out := make([]string, 0, len(m.Genres))
	for _, g := range m.Genres {
		out = append(out, g.Name)
	}
	return out
}

func topCast(m model.Movie, n int) []string {
	out := make([]string, 0, n)
	for _, c := range m.Cast {
		if len(out) == n {
			break
		}
		out = append(out, c.Person.Name)
	}
	return out
}

func directors(m model.Movie) []string {
	var out []string
	for _, c := range m.Crew {
		if c.Job == "Director" {
			out = append(out, c.Person.Name)
		}
	}
	return out
}

// === REPLY PARSING ===

var listPrefix = regexp.MustCompile(`^[1-5][.)]?\s*`)

// ParseCompletionReply extracts candidates from a numbered reply of the form
// "N. Title, Genre, Actor1 & Actor2, Director, TMDB_ID". Lines that do not
// start with a digit from 1 to 5 or that have fewer than four fields are
// dropped. The id is optional and only used when numeric.
func ParseCompletionReply(text string) []Candidate {
	var out []Candidate
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] < '1' || line[0] > '5' {
			continue
		}
		// "10. ..." is not an item in a five-item list.
		if len(line) > 1 && line[1] >= '0' && line[1] <= '9' {
			continue
		}

		fields := strings.Split(listPrefix.ReplaceAllString(line, ""), ", ")
		if len(fields) < 4 {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if fields[0] == "" {
			continue
		}

		c := Candidate{
			Title:     strings.Trim(fields[0], `"*`),
			Genre:     fields[1],
			Actors:    splitNames(fields[2]),
			Directors: splitNames(fields[3]),
		}
		if len(fields) >= 5 {
			if id, err := strconv.ParseInt(strings.TrimSuffix(fields[4], "."), 10, 64); err == nil && id > 0 {
				c.TMDBID = &id
			}
		}
		out = append(out, c)
	}
	return out
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "&") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
