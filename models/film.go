package models

// FilmEntry is a watchlist film with its resolved title and release decision.
type FilmEntry struct {
	TMDBID    int64
	TitleHint string
	Title     string
	Decision  Decision
	PosterURL string // empty when TMDB has no poster
	TMDBURL   string
}

// PartitionedDataset is the result of one run for one user.
type PartitionedDataset struct {
	Username    string
	GeneratedOn Date
	Upcoming    []FilmEntry
	TBD         []FilmEntry
	Released    []FilmEntry
}

// Bucket returns the sequence holding films with the given decision kind.
func (p *PartitionedDataset) Bucket(kind DecisionKind) []FilmEntry {
	switch kind {
	case DecisionUpcoming:
		return p.Upcoming
	case DecisionReleased:
		return p.Released
	case DecisionTBD:
		return p.TBD
	}
	return nil
}

// Len is the number of films across all three buckets.
func (p *PartitionedDataset) Len() int {
	return len(p.Upcoming) + len(p.TBD) + len(p.Released)
}
