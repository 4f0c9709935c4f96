package models

// FilmMetadata is the subset of TMDB movie details the tracker displays.
type FilmMetadata struct {
	TMDBID        int64  `json:"id"`
	Title         string `json:"title"`
	OriginalTitle string `json:"originalTitle,omitempty"`
	PosterPath    string `json:"posterPath,omitempty"`
}
