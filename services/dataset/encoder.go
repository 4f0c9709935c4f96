package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"releasewatch/models"
)

var ErrInvalidDataset = errors.New("invalid dataset")

// The wire format is read by the static site, so keys stay snake_case.
type wireDataset struct {
	Username    string      `json:"username"`
	GeneratedOn string      `json:"generated_on"`
	Upcoming    []wireEntry `json:"upcoming"`
	TBD         []wireEntry `json:"tbd"`
	Released    []wireEntry `json:"released"`
}

type wireEntry struct {
	TMDBID      int64   `json:"tmdb_id"`
	Title       string  `json:"title"`
	TitleHint   string  `json:"title_hint,omitempty"`
	Status      string  `json:"status"`
	ReleaseDate *string `json:"release_date"`
	PosterURL   *string `json:"poster_url"`
	TMDBURL     string  `json:"tmdb_url"`
}

// Encode writes the dataset as indented JSON with a trailing newline.
// Empty buckets are written as [] rather than null. Datasets Decode would
// reject, such as one with no generated_on, are refused.
func Encode(w io.Writer, ds models.PartitionedDataset) error {
	if ds.GeneratedOn.IsZero() {
		return fmt.Errorf("%w: generated_on is not set", ErrInvalidDataset)
	}
	wire := wireDataset{
		Username:    ds.Username,
		GeneratedOn: ds.GeneratedOn.String(),
	}
	var err error
	if wire.Upcoming, err = toWire(ds.Upcoming); err != nil {
		return err
	}
	if wire.TBD, err = toWire(ds.TBD); err != nil {
		return err
	}
	if wire.Released, err = toWire(ds.Released); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// Decode reads a dataset written by Encode and checks every entry sits in the
// bucket its status names.
func Decode(r io.Reader) (models.PartitionedDataset, error) {
	var wire wireDataset
	dec := json.NewDecoder(r)
	if err := dec.Decode(&wire); err != nil {
		return models.PartitionedDataset{}, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}

	generated, err := models.ParseDate(wire.GeneratedOn)
	if err != nil {
		return models.PartitionedDataset{}, fmt.Errorf("%w: generated_on: %v", ErrInvalidDataset, err)
	}

	ds := models.PartitionedDataset{Username: wire.Username, GeneratedOn: generated}
	buckets := []struct {
		kind models.DecisionKind
		from []wireEntry
		into *[]models.FilmEntry
	}{
		{models.DecisionUpcoming, wire.Upcoming, &ds.Upcoming},
		{models.DecisionTBD, wire.TBD, &ds.TBD},
		{models.DecisionReleased, wire.Released, &ds.Released},
	}
	for _, b := range buckets {
		entries, err := fromWire(b.kind, b.from)
		if err != nil {
			return models.PartitionedDataset{}, err
		}
		*b.into = entries
	}
	return ds, nil
}

func toWire(entries []models.FilmEntry) ([]wireEntry, error) {
	out := make([]wireEntry, 0, len(entries))
	for _, e := range entries {
		if e.Decision.HasDate() && e.Decision.Date.IsZero() {
			return nil, fmt.Errorf("%w: tmdb %d: %s without a release date", ErrInvalidDataset, e.TMDBID, e.Decision.Kind)
		}
		w := wireEntry{
			TMDBID:    e.TMDBID,
			Title:     e.Title,
			TitleHint: e.TitleHint,
			Status:    string(e.Decision.Kind),
			TMDBURL:   e.TMDBURL,
		}
		if e.Decision.HasDate() {
			date := e.Decision.Date.String()
			w.ReleaseDate = &date
		}
		if e.PosterURL != "" {
			poster := e.PosterURL
			w.PosterURL = &poster
		}
		out = append(out, w)
	}
	return out, nil
}

func fromWire(kind models.DecisionKind, entries []wireEntry) ([]models.FilmEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make([]models.FilmEntry, 0, len(entries))
	for i, w := range entries {
		if models.DecisionKind(w.Status) != kind {
			return nil, fmt.Errorf("%w: %s[%d] (tmdb %d) has status %q", ErrInvalidDataset, kind, i, w.TMDBID, w.Status)
		}

		entry := models.FilmEntry{
			TMDBID:    w.TMDBID,
			Title:     w.Title,
			TitleHint: w.TitleHint,
			TMDBURL:   w.TMDBURL,
		}
		if w.PosterURL != nil {
			entry.PosterURL = *w.PosterURL
		}

		switch {
		case kind == models.DecisionTBD && w.ReleaseDate != nil:
			return nil, fmt.Errorf("%w: tbd[%d] (tmdb %d) carries a release date", ErrInvalidDataset, i, w.TMDBID)
		case kind == models.DecisionTBD:
			entry.Decision = models.Unknown()
		case w.ReleaseDate == nil || strings.TrimSpace(*w.ReleaseDate) == "":
			return nil, fmt.Errorf("%w: %s[%d] (tmdb %d) has no release date", ErrInvalidDataset, kind, i, w.TMDBID)
		default:
			d, err := models.ParseDate(*w.ReleaseDate)
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidDataset, kind, i, err)
			}
			entry.Decision = models.Decision{Kind: kind, Date: d}
		}
		out = append(out, entry)
	}
	return out, nil
}
