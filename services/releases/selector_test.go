package releases

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"releasewatch/models"
)

func gb(releaseType int, date string) models.ReleaseDateRecord {
	return models.ReleaseDateRecord{Region: "GB", Type: releaseType, Date: date}
}

func TestSelect(t *testing.T) {
	selector := NewSelector("GB", models.ReleaseTypeTheatrical)
	today := models.NewDate(2026, time.January, 1)

	tests := []struct {
		name    string
		records []models.ReleaseDateRecord
		want    models.Decision
	}{
		{
			name:    "single upcoming theatrical",
			records: []models.ReleaseDateRecord{gb(3, "2026-04-17T00:00:00.000Z")},
			want:    models.Upcoming(models.NewDate(2026, time.April, 17)),
		},
		{
			name: "earliest future wins over later future",
			records: []models.ReleaseDateRecord{
				gb(3, "2026-05-01T00:00:00.000Z"),
				gb(3, "2026-04-17T00:00:00.000Z"),
			},
			want: models.Upcoming(models.NewDate(2026, time.April, 17)),
		},
		{
			name:    "far future picked as min of future set",
			records: []models.ReleaseDateRecord{gb(3, "2099-01-01"), gb(3, "2050-06-15")},
			want:    models.Upcoming(models.NewDate(2050, time.June, 15)),
		},
		{
			name: "future beats past",
			records: []models.ReleaseDateRecord{
				gb(3, "2025-06-01"),
				gb(3, "2026-02-01"),
			},
			want: models.Upcoming(models.NewDate(2026, time.February, 1)),
		},
		{
			name: "latest past wins when nothing upcoming",
			records: []models.ReleaseDateRecord{
				gb(3, "2025-03-01T00:00:00.000Z"),
				gb(3, "2025-10-10T00:00:00.000Z"),
				gb(3, "2024-12-24T00:00:00.000Z"),
			},
			want: models.Released(models.NewDate(2025, time.October, 10)),
		},
		{
			name:    "today counts as upcoming",
			records: []models.ReleaseDateRecord{gb(3, "2026-01-01T00:00:00.000Z"), gb(3, "2025-12-31")},
			want:    models.Upcoming(today),
		},
		{
			name:    "premiere only is unknown",
			records: []models.ReleaseDateRecord{gb(models.ReleaseTypePremiere, "2026-03-01")},
			want:    models.Unknown(),
		},
		{
			name:    "other region only is unknown",
			records: []models.ReleaseDateRecord{{Region: "US", Type: 3, Date: "2026-03-01"}},
			want:    models.Unknown(),
		},
		{
			name:    "digital release ignored",
			records: []models.ReleaseDateRecord{gb(models.ReleaseTypeDigital, "2026-04-17T00:00:00.000Z")},
			want:    models.Unknown(),
		},
		{
			name:    "no records",
			records: nil,
			want:    models.Unknown(),
		},
		{
			name: "malformed record dropped, rest kept",
			records: []models.ReleaseDateRecord{
				gb(3, "garbage"),
				gb(3, "2026-02-30"),
				gb(3, "2025-07-04"),
			},
			want: models.Released(models.NewDate(2025, time.July, 4)),
		},
		{
			name:    "all malformed is unknown",
			records: []models.ReleaseDateRecord{gb(3, ""), gb(3, "TBA")},
			want:    models.Unknown(),
		},
		{
			name:    "region matched case-insensitively",
			records: []models.ReleaseDateRecord{{Region: " gb", Type: 3, Date: "2026-06-01"}},
			want:    models.Upcoming(models.NewDate(2026, time.June, 1)),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, selector.Select(tc.records, today))
		})
	}
}

func TestSelectNeverUnknownWhenQualifyingRecordExists(t *testing.T) {
	selector := NewSelector("gb", 3)
	today := models.NewDate(2026, time.January, 1)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		var records []models.ReleaseDateRecord
		var qualifying []models.Date
		for n := rng.Intn(6); n >= 0; n-- {
			d := today.AddDays(rng.Intn(2000) - 1000)
			region := []string{"GB", "US", "FR"}[rng.Intn(3)]
			releaseType := 1 + rng.Intn(6)
			records = append(records, models.ReleaseDateRecord{Region: region, Type: releaseType, Date: d.String() + "T00:00:00.000Z"})
			if region == "GB" && releaseType == 3 {
				qualifying = append(qualifying, d)
			}
		}

		got := selector.Select(records, today)
		if len(qualifying) == 0 {
			require.Equal(t, models.Unknown(), got)
			continue
		}
		require.True(t, got.HasDate(), "records %+v produced %v", records, got)

		var minFuture, maxPast models.Date
		for _, d := range qualifying {
			if !d.Before(today) {
				if minFuture.IsZero() || d.Before(minFuture) {
					minFuture = d
				}
			} else if maxPast.IsZero() || d.After(maxPast) {
				maxPast = d
			}
		}
		if !minFuture.IsZero() {
			require.Equal(t, models.Upcoming(minFuture), got)
		} else {
			require.Equal(t, models.Released(maxPast), got)
		}
	}
}

func TestSelectIgnoresRecordOrder(t *testing.T) {
	selector := NewSelector("GB", 3)
	today := models.NewDate(2026, time.January, 1)
	records := []models.ReleaseDateRecord{
		gb(3, "2026-03-20"), gb(2, "2026-02-01"), gb(3, "2026-03-06"), gb(3, "2025-11-01"),
	}
	want := selector.Select(records, today)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(records), func(a, b int) { records[a], records[b] = records[b], records[a] })
		assert.Equal(t, want, selector.Select(records, today))
	}
	assert.Equal(t, models.Upcoming(models.NewDate(2026, time.March, 6)), want)
}

func TestQualifyingSorted(t *testing.T) {
	selector := NewSelector("GB", 3)
	dates := selector.Qualifying([]models.ReleaseDateRecord{
		gb(3, "2026-05-01"), gb(1, "2026-01-01"), gb(3, "2026-04-01"), {Region: "US", Type: 3, Date: "2026-03-01"},
	})
	require.Len(t, dates, 2)
	assert.Equal(t, "2026-04-01", dates[0].String())
	assert.Equal(t, "2026-05-01", dates[1].String())
}
