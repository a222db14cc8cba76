package metadata

// Provider payload shapes. Every text field the provider may omit or send as
// null is a pointer; the normalize package decides what a missing value
// becomes locally.

// Envelope is the error body the provider returns for unknown resources,
// sometimes with a 2xx status.
type Envelope struct {
	Success       *bool  `json:"success,omitempty"`
	StatusCode    int    `json:"status_code,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
}

// IsError reports whether the payload is an error envelope rather than a resource.
func (e Envelope) IsError() bool {
	return (e.Success != nil && !*e.Success) || e.StatusCode != 0
}

// Message returns the provider's status message, if any.
func (e Envelope) Message() string {
	return e.StatusMessage
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Page         int `json:"page"`
	Results      []T `json:"results"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
}

// MovieRecord is a movie as returned by search, listing and detail endpoints.
// Genres, Credits and ExternalIDs are only present on detail fetches made
// with append_to_response.
type MovieRecord struct {
	Envelope

	ID           int64          `json:"id"`
	Title        *string        `json:"title"`
	Overview     *string        `json:"overview"`
	PosterPath   *string        `json:"poster_path"`
	BackdropPath *string        `json:"backdrop_path"`
	ReleaseDate  *string        `json:"release_date"`
	VoteAverage  *float64       `json:"vote_average"`
	GenreIDs     []int64        `json:"genre_ids,omitempty"`
	Genres       []GenreRecord  `json:"genres,omitempty"`
	Credits      *CreditsRecord `json:"credits,omitempty"`
	ExternalIDs  *ExternalIDs   `json:"external_ids,omitempty"`
}

// GenreRecord is a provider genre.
type GenreRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GenreList is the body of the genre list endpoint.
type GenreList struct {
	Genres []GenreRecord `json:"genres"`
}

// CreditsRecord holds the cast and crew of one movie.
type CreditsRecord struct {
	Cast []CastRecord `json:"cast"`
	Crew []CrewRecord `json:"crew"`
}

type CastRecord struct {
	ID          int64   `json:"id"`
	Name        *string `json:"name"`
	ProfilePath *string `json:"profile_path"`
	Character   *string `json:"character"`
	Order       *int    `json:"order"`
}

type CrewRecord struct {
	ID          int64   `json:"id"`
	Name        *string `json:"name"`
	ProfilePath *string `json:"profile_path"`
	Department  *string `json:"department"`
	Job         *string `json:"job"`
}

// ExternalIDs carries cross-references to other databases.
type ExternalIDs struct {
	IMDbID *string `json:"imdb_id"`
}

// PersonRecord is a person as returned by search and detail endpoints.
type PersonRecord struct {
	Envelope

	ID                 int64   `json:"id"`
	Name               *string `json:"name"`
	ProfilePath        *string `json:"profile_path"`
	KnownForDepartment *string `json:"known_for_department"`
}

// PersonMovieCredits lists the movies a person acted in or worked on.
type PersonMovieCredits struct {
	ID   int64         `json:"id"`
	Cast []MovieRecord `json:"cast"`
	Crew []MovieRecord `json:"crew"`
}

// CompanyRecord is a production company.
type CompanyRecord struct {
	Envelope

	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	LogoPath      *string `json:"logo_path"`
	OriginCountry string  `json:"origin_country"`
	Description   string  `json:"description,omitempty"`
	Headquarters  string  `json:"headquarters,omitempty"`
	Homepage      string  `json:"homepage,omitempty"`
}

// VideoRecord is a trailer, teaser or clip hosted on an external site.
type VideoRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	Site        string `json:"site"`
	Type        string `json:"type"`
	Size        int    `json:"size"`
	Official    bool   `json:"official"`
	PublishedAt string `json:"published_at"`
}

// VideoList is the body of the movie videos endpoint.
type VideoList struct {
	ID      int64         `json:"id"`
	Results []VideoRecord `json:"results"`
}

// DiscoverParams are the supported multi-criteria filters.
// Zero values are left out of the request.
type DiscoverParams struct {
	Genres         []int64
	Year           int
	MinVoteAverage *float64
	People         []int64
	Companies      []int64
	SortBy         string
	Page           int
}
