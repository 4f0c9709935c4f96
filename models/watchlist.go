package models

// WatchlistEntry is one film the user tracks. TitleHint is display-only.
type WatchlistEntry struct {
	TMDBID    int64  `json:"tmdb_id" yaml:"tmdb_id"`
	TitleHint string `json:"title_hint,omitempty" yaml:"title_hint,omitempty"`
}

// Watchlist is one user's ordered list of films.
type Watchlist struct {
	Username string
	Entries  []WatchlistEntry
}
