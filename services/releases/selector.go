package releases

import (
	"log"
	"sort"
	"strings"

	"releasewatch/models"
)

// Selector picks the canonical release date for a film from its provider records.
// Only records matching both Region and Type count.
type Selector struct {
	Region string
	Type   int
}

// NewSelector returns a selector for the given ISO 3166-1 region and TMDB release type.
func NewSelector(region string, releaseType int) Selector {
	return Selector{Region: strings.ToUpper(strings.TrimSpace(region)), Type: releaseType}
}

func (s Selector) matches(r models.ReleaseDateRecord) bool {
	return r.Type == s.Type && strings.EqualFold(strings.TrimSpace(r.Region), s.Region)
}

// Qualifying returns the parsed dates of matching records in ascending order.
// Records whose date cannot be parsed are dropped.
func (s Selector) Qualifying(records []models.ReleaseDateRecord) []models.Date {
	dates := make([]models.Date, 0, len(records))
	for _, r := range records {
		if !s.matches(r) {
			continue
		}
		d, err := models.ParseDate(r.Date)
		if err != nil {
			log.Printf("[releases] dropping %s type %d record: %v", r.Region, r.Type, err)
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Select returns Upcoming(earliest date >= today) when one exists, otherwise
// Released(latest date < today), otherwise Unknown.
func (s Selector) Select(records []models.ReleaseDateRecord, today models.Date) models.Decision {
	dates := s.Qualifying(records)
	if len(dates) == 0 {
		return models.Unknown()
	}

	// dates is ascending: the first date on or after today is the earliest upcoming one.
	idx := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(today) })
	if idx < len(dates) {
		return models.Upcoming(dates[idx])
	}
	return models.Released(dates[len(dates)-1])
}
