package classifier

//go:generate mockgen -destination=mock_provider_test.go -package=classifier releasewatch/services/classifier Provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"releasewatch/models"
	"releasewatch/services/releases"
	"releasewatch/utils/similarity"
)

var (
	ErrWatchlistEmpty   = errors.New("watchlist has no films")
	// ErrNoFilmsProcessed marks a run in which no film across all users had its
	// release dates fetched, i.e. the provider was unreachable for everyone.
	ErrNoFilmsProcessed = errors.New("no films could be processed")
)

// Provider is the subset of the TMDB client the classifier needs.
type Provider interface {
	FetchMetadata(ctx context.Context, tmdbID int64) (models.FilmMetadata, error)
	FetchReleaseDates(ctx context.Context, tmdbID int64) ([]models.ReleaseDateRecord, error)
	PosterURL(posterPath string) string
	DetailURL(tmdbID int64) string
}

// TBD ordering choices, matching config.
const (
	TBDOrderWatchlist = "watchlist"
	TBDOrderTitle     = "title"
)

// Config holds everything a Build depends on besides the provider.
type Config struct {
	Region      string
	ReleaseType int
	Concurrency int    // 1 = sequential
	TBDOrder    string // watchlist | title
	Collation   string // BCP 47 tag for title ordering

	// Logger carries run-scoped attributes such as run_id. Defaults to slog.Default().
	Logger *slog.Logger
}

// Stats summarises one user's run.
type Stats struct {
	Total    int
	Upcoming int
	TBD      int
	Released int
	Failed   int // films whose release dates could not be fetched

	HintMismatches int // title_hint does not resemble the TMDB title
}

// Add accumulates other into s, for run-wide totals.
func (s *Stats) Add(other Stats) {
	s.Total += other.Total
	s.Upcoming += other.Upcoming
	s.TBD += other.TBD
	s.Released += other.Released
	s.Failed += other.Failed
	s.HintMismatches += other.HintMismatches
}

// Processed is the number of films whose release dates were fetched.
func (s Stats) Processed() int {
	return s.Total - s.Failed
}

func (s Stats) String() string {
	return fmt.Sprintf("%d upcoming, %d TBD, %d released", s.Upcoming, s.TBD, s.Released)
}

// Service classifies watchlist films into upcoming, tbd and released.
type Service struct {
	provider Provider
	selector releases.Selector
	cfg      Config
	lang     language.Tag
}

func NewService(provider Provider, cfg Config) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TBDOrder == "" {
		cfg.TBDOrder = TBDOrderWatchlist
	}
	lang, err := language.Parse(strings.TrimSpace(cfg.Collation))
	if err != nil {
		lang = language.BritishEnglish
	}
	return &Service{
		provider: provider,
		selector: releases.NewSelector(cfg.Region, cfg.ReleaseType),
		cfg:      cfg,
		lang:     lang,
	}
}

type outcome struct {
	entry    models.FilmEntry
	failed   bool
	mismatch bool
}

// Build resolves every entry against the provider and partitions the films.
// today is the single reference date for the whole run. Per-film provider
// errors never abort the build; the film lands in tbd and is counted as failed.
// Whether a run with zero processed films is fatal is decided by the caller
// across all users, see ErrNoFilmsProcessed.
func (s *Service) Build(ctx context.Context, username string, entries []models.WatchlistEntry, today models.Date) (models.PartitionedDataset, Stats, error) {
	if len(entries) == 0 {
		return models.PartitionedDataset{}, Stats{}, fmt.Errorf("%w: user %q", ErrWatchlistEmpty, username)
	}

	logger := s.cfg.Logger.With("user", username)
	logger.Info("classifying watchlist",
		"films", len(entries),
		"today", today.String(),
		"concurrency", s.cfg.Concurrency,
	)
	start := time.Now()

	// Each film owns its slot, so the result order never depends on scheduling.
	results := make([]outcome, len(entries))
	if s.cfg.Concurrency == 1 {
		for i, entry := range entries {
			results[i] = s.classify(ctx, logger, entry, today)
		}
	} else {
		workerPool := pool.New().WithMaxGoroutines(s.cfg.Concurrency)
		for i, entry := range entries {
			i, entry := i, entry
			workerPool.Go(func() {
				results[i] = s.classify(ctx, logger, entry, today)
			})
		}
		workerPool.Wait()
	}

	ds := models.PartitionedDataset{Username: username, GeneratedOn: today}
	stats := Stats{Total: len(entries)}
	for _, res := range results {
		if res.failed {
			stats.Failed++
		}
		if res.mismatch {
			stats.HintMismatches++
		}
		switch res.entry.Decision.Kind {
		case models.DecisionUpcoming:
			ds.Upcoming = append(ds.Upcoming, res.entry)
		case models.DecisionReleased:
			ds.Released = append(ds.Released, res.entry)
		default:
			ds.TBD = append(ds.TBD, res.entry)
		}
	}
	stats.Upcoming, stats.TBD, stats.Released = len(ds.Upcoming), len(ds.TBD), len(ds.Released)

	s.sortDataset(&ds)

	logger.Info("classified watchlist",
		"upcoming", stats.Upcoming,
		"tbd", stats.TBD,
		"released", stats.Released,
		"failed", stats.Failed,
		"hint_mismatches", stats.HintMismatches,
		"duration", time.Since(start),
	)

	if err := ctx.Err(); err != nil {
		return ds, stats, fmt.Errorf("classify user %q: %w", username, err)
	}
	if stats.Processed() == 0 {
		logger.Warn("no films could be processed for user, every film is listed as tbd", "films", stats.Total)
	}
	return ds, stats, nil
}

func (s *Service) classify(ctx context.Context, logger *slog.Logger, item models.WatchlistEntry, today models.Date) outcome {
	entry := models.FilmEntry{
		TMDBID:    item.TMDBID,
		TitleHint: item.TitleHint,
		TMDBURL:   s.provider.DetailURL(item.TMDBID),
		Decision:  models.Unknown(),
	}

	var res outcome
	meta, err := s.provider.FetchMetadata(ctx, item.TMDBID)
	if err != nil {
		logger.Warn("metadata unavailable", "tmdb_id", item.TMDBID, "error", err)
	} else {
		entry.PosterURL = s.provider.PosterURL(meta.PosterPath)
		if !similarity.HintMatches(item.TitleHint, meta.Title, meta.OriginalTitle) {
			logger.Warn("title_hint does not match TMDB title, check the watchlist id",
				"tmdb_id", item.TMDBID,
				"title_hint", item.TitleHint,
				"title", meta.Title,
			)
			res.mismatch = true
		}
	}
	entry.Title = displayTitle(meta, item)

	records, err := s.provider.FetchReleaseDates(ctx, item.TMDBID)
	if err != nil {
		logger.Warn("release dates unavailable, marking tbd", "tmdb_id", item.TMDBID, "title", entry.Title, "error", err)
		res.entry, res.failed = entry, true
		return res
	}

	entry.Decision = s.selector.Select(records, today)
	logger.Debug("film classified", "tmdb_id", item.TMDBID, "decision", entry.Decision.String())
	res.entry = entry
	return res
}

// displayTitle picks the first non-empty of title, original title, hint and a placeholder.
func displayTitle(meta models.FilmMetadata, item models.WatchlistEntry) string {
	for _, candidate := range []string{meta.Title, meta.OriginalTitle, item.TitleHint} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return fmt.Sprintf("TMDb %d", item.TMDBID)
}

func (s *Service) sortDataset(ds *models.PartitionedDataset) {
	col := collate.New(s.lang, collate.IgnoreCase, collate.Loose)
	byTitle := func(a, b models.FilmEntry) int {
		if c := col.CompareString(a.Title, b.Title); c != 0 {
			return c
		}
		switch {
		case a.TMDBID < b.TMDBID:
			return -1
		case a.TMDBID > b.TMDBID:
			return 1
		}
		return 0
	}

	sort.SliceStable(ds.Upcoming, func(i, j int) bool {
		a, b := ds.Upcoming[i], ds.Upcoming[j]
		if c := a.Decision.Date.Compare(b.Decision.Date); c != 0 {
			return c < 0
		}
		return byTitle(a, b) < 0
	})
	sort.SliceStable(ds.Released, func(i, j int) bool {
		a, b := ds.Released[i], ds.Released[j]
		if c := a.Decision.Date.Compare(b.Decision.Date); c != 0 {
			return c > 0
		}
		return byTitle(a, b) < 0
	})
	if s.cfg.TBDOrder == TBDOrderTitle {
		sort.SliceStable(ds.TBD, func(i, j int) bool {
			return byTitle(ds.TBD[i], ds.TBD[j]) < 0
		})
	}
}
