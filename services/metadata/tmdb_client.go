package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"releasewatch/models"
)

const (
	tmdbBaseURL      = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p/w342"
	tmdbSiteBaseURL  = "https://www.themoviedb.org"

	// TMDB caps response bodies well below this; anything larger is not a movie payload.
	maxResponseBytes = 4 << 20
)

var (
	ErrNotConfigured           = errors.New("tmdb api key not configured")
	ErrProviderUnavailable     = errors.New("tmdb unavailable")
	ErrFilmNotFound            = errors.New("tmdb film not found")
	ErrProviderResponseInvalid = errors.New("tmdb response invalid")
)

// ClientOptions configures a TMDBClient. Zero values fall back to TMDB defaults.
type ClientOptions struct {
	APIKey            string
	BaseURL           string
	ImageBaseURL      string
	SiteBaseURL       string
	Language          string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 = unlimited
	Burst             int
	RetryAttempts     int // 1 = no retry
	RetryDelay        time.Duration
	HTTPClient        *http.Client
}

// TMDBClient fetches movie details and release dates from TMDB.
type TMDBClient struct {
	apiKey       string
	baseURL      string
	imageBaseURL string
	siteBaseURL  string
	language     string
	httpc        *http.Client
	limiter      *rate.Limiter

	retryAttempts uint
	retryDelay    time.Duration
}

func NewTMDBClient(opts ClientOptions) (*TMDBClient, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	httpc := opts.HTTPClient
	if httpc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &TMDBClient{
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(firstNonEmpty(opts.BaseURL, tmdbBaseURL), "/"),
		imageBaseURL:  strings.TrimRight(firstNonEmpty(opts.ImageBaseURL, tmdbImageBaseURL), "/"),
		siteBaseURL:   strings.TrimRight(firstNonEmpty(opts.SiteBaseURL, tmdbSiteBaseURL), "/"),
		language:      strings.TrimSpace(opts.Language),
		httpc:         httpc,
		limiter:       rate.NewLimiter(limit, burst),
		retryAttempts: uint(attempts),
		retryDelay:    opts.RetryDelay,
	}, nil
}

type tmdbMovieResponse struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	OriginalTitle string `json:"original_title"`
	PosterPath    string `json:"poster_path"`
	ReleaseDate   string `json:"release_date"`
}

type tmdbReleaseDatesResponse struct {
	ID      int64                 `json:"id"`
	Results *[]tmdbReleaseCountry `json:"results"`
}

type tmdbReleaseCountry struct {
	ISO31661     string             `json:"iso_3166_1"`
	ReleaseDates []tmdbReleaseEntry `json:"release_dates"`
}

type tmdbReleaseEntry struct {
	Certification string   `json:"certification"`
	ISO6391       string   `json:"iso_639_1"`
	Note          string   `json:"note"`
	ReleaseDate   string   `json:"release_date"`
	Type          int      `json:"type"`
	Descriptors   []string `json:"descriptors"`
}

// FetchMetadata returns the display metadata for a TMDB movie.
func (c *TMDBClient) FetchMetadata(ctx context.Context, tmdbID int64) (models.FilmMetadata, error) {
	query := url.Values{}
	query.Set("language", normalizeLanguage(c.language))

	var movie tmdbMovieResponse
	if err := c.doGET(ctx, c.movieEndpoint(tmdbID), query, &movie); err != nil {
		return models.FilmMetadata{}, fmt.Errorf("movie %d details: %w", tmdbID, err)
	}

	return models.FilmMetadata{
		TMDBID:        tmdbID,
		Title:         strings.TrimSpace(movie.Title),
		OriginalTitle: strings.TrimSpace(movie.OriginalTitle),
		PosterPath:    strings.TrimSpace(movie.PosterPath),
	}, nil
}

// FetchReleaseDates returns every region/type/date record TMDB holds for the movie.
func (c *TMDBClient) FetchReleaseDates(ctx context.Context, tmdbID int64) ([]models.ReleaseDateRecord, error) {
	var payload tmdbReleaseDatesResponse
	if err := c.doGET(ctx, c.movieEndpoint(tmdbID, "release_dates"), nil, &payload); err != nil {
		return nil, fmt.Errorf("movie %d release dates: %w", tmdbID, err)
	}
	if payload.Results == nil {
		return nil, fmt.Errorf("movie %d release dates: %w: missing results", tmdbID, ErrProviderResponseInvalid)
	}

	records := make([]models.ReleaseDateRecord, 0, 8)
	for _, country := range *payload.Results {
		countryCode := strings.ToUpper(strings.TrimSpace(country.ISO31661))
		for _, entry := range country.ReleaseDates {
			records = append(records, models.ReleaseDateRecord{
				Region: countryCode,
				Type:   entry.Type,
				Date:   strings.TrimSpace(entry.ReleaseDate),
				Note:   strings.TrimSpace(entry.Note),
			})
		}
	}
	return records, nil
}

// PosterURL builds the public poster URL for a TMDB poster_path, or "" when absent.
func (c *TMDBClient) PosterURL(posterPath string) string {
	trimmed := strings.TrimSpace(posterPath)
	if trimmed == "" {
		return ""
	}
	return c.imageBaseURL + "/" + strings.TrimPrefix(trimmed, "/")
}

// DetailURL is the public TMDB page for a movie.
func (c *TMDBClient) DetailURL(tmdbID int64) string {
	return fmt.Sprintf("%s/movie/%d", c.siteBaseURL, tmdbID)
}

func (c *TMDBClient) movieEndpoint(tmdbID int64, parts ...string) string {
	segments := append([]string{"movie", strconv.FormatInt(tmdbID, 10)}, parts...)
	endpoint, err := url.JoinPath(c.baseURL, segments...)
	if err != nil {
		return c.baseURL + "/" + strings.Join(segments, "/")
	}
	return endpoint
}

// doGET performs a rate-limited GET and decodes a JSON object into v.
// Transient failures are retried with a fixed delay when retryAttempts > 1.
func (c *TMDBClient) doGET(ctx context.Context, endpoint string, query url.Values, v any) error {
	attempt := 0
	return retry.Do(
		func() error {
			attempt++
			err := c.getOnce(ctx, endpoint, query, v)
			if err != nil && errors.Is(err, ErrProviderUnavailable) && attempt < int(c.retryAttempts) {
				log.Printf("[tmdb] request failed (attempt %d/%d): %v", attempt, c.retryAttempts, err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrProviderUnavailable) }),
	)
}

func (c *TMDBClient) getOnce(ctx context.Context, endpoint string, query url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrProviderUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for key, values := range query {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	if c.usesBearerToken() {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	} else {
		q.Set("api_key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	// The request URL carries the credential, so errors name the path only.
	resp, err := c.httpc.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%w: GET %s: %v", ErrProviderUnavailable, req.URL.Path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: GET %s: %s", ErrFilmNotFound, req.URL.Path, resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode >= 500:
		return fmt.Errorf("%w: GET %s: %s", ErrProviderUnavailable, req.URL.Path, resp.Status)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: GET %s: %s", ErrProviderResponseInvalid, req.URL.Path, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrProviderUnavailable, req.URL.Path, err)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: GET %s: body is not a JSON object", ErrProviderResponseInvalid, req.URL.Path)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProviderResponseInvalid, req.URL.Path, err)
	}
	return nil
}

// usesBearerToken reports whether the key is a v4 read access token (a JWT).
func (c *TMDBClient) usesBearerToken() bool {
	return strings.HasPrefix(c.apiKey, "eyJ")
}

func normalizeLanguage(lang string) string {
	lang = strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if len(lang) == 2 {
		return strings.ToLower(lang) + "-US"
	}
	if len(lang) >= 5 {
		return strings.ToLower(lang[:2]) + "-" + strings.ToUpper(lang[3:])
	}
	return "en-US"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
