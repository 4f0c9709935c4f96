package calendar

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"releasewatch/models"
)

var today = models.NewDate(2026, 1, 1)

func upcomingFilm(id int64, title string, date models.Date) models.FilmEntry {
	return models.FilmEntry{
		TMDBID:   id,
		Title:    title,
		Decision: models.Upcoming(date),
		TMDBURL:  fmt.Sprintf("https://www.themoviedb.org/movie/%d", id),
	}
}

func encode(t *testing.T, enc Encoder, films []models.FilmEntry) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, enc.Encode(&buf, films, today))
	return buf.String()
}

func TestEncodeStructure(t *testing.T) {
	out := encode(t, Encoder{Username: "alice"}, []models.FilmEntry{
		upcomingFilm(123, "Test Movie", models.NewDate(2026, 4, 17)),
	})

	want := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Film Release Tracker//alice//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:alice's Film Releases",
		"X-WR-CALDESC:UK theatrical releases tracked by alice",
		"BEGIN:VEVENT",
		"UID:tmdb-123-alice@film-release-tracker",
		"DTSTAMP:20260101T000000Z",
		"DTSTART;VALUE=DATE:20260417",
		"DTEND;VALUE=DATE:20260418",
		"SUMMARY:Test Movie (UK theatrical release)",
		"DESCRIPTION:TMDb: https://www.themoviedb.org/movie/123",
		"STATUS:CONFIRMED",
		"TRANSP:TRANSPARENT",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n") + "\r\n"
	assert.Equal(t, want, out)
}

func TestEncodeWithoutUser(t *testing.T) {
	out := encode(t, Encoder{}, []models.FilmEntry{
		upcomingFilm(123, "Test Movie", models.NewDate(2026, 4, 17)),
	})
	assert.Contains(t, out, "PRODID:-//Film Release Tracker//EN\r\n")
	assert.Contains(t, out, "UID:tmdb-123@film-release-tracker\r\n")
}

func TestEncodeNoUpcomingHasNoEvents(t *testing.T) {
	out := encode(t, Encoder{Username: "bob"}, nil)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "END:VCALENDAR")
	assert.NotContains(t, out, "BEGIN:VEVENT")

	released := models.FilmEntry{TMDBID: 1, Title: "Old", Decision: models.Released(models.NewDate(2025, 1, 1))}
	tbd := models.FilmEntry{TMDBID: 2, Title: "Someday", Decision: models.Unknown()}
	out = encode(t, Encoder{Username: "bob"}, []models.FilmEntry{released, tbd})
	assert.NotContains(t, out, "BEGIN:VEVENT")
}

func TestEncodeEventsPerUpcomingFilm(t *testing.T) {
	out := encode(t, Encoder{Username: "carol"}, []models.FilmEntry{
		upcomingFilm(1, "One", models.NewDate(2026, 2, 1)),
		upcomingFilm(2, "Two", models.NewDate(2026, 12, 31)),
	})
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "DTEND;VALUE=DATE:20270101\r\n")
}

func TestEncodeIsDeterministic(t *testing.T) {
	films := []models.FilmEntry{upcomingFilm(9, "Nine", models.NewDate(2026, 9, 9))}
	assert.Equal(t, encode(t, Encoder{Username: "dan"}, films), encode(t, Encoder{Username: "dan"}, films))
}

func TestEscapeText(t *testing.T) {
	tests := map[string]string{
		`Test\Movie`:          `Test\\Movie`,
		"Test; Movie, Part 2": `Test\; Movie\, Part 2`,
		"line one\nline two":  `line one\nline two`,
		`a\;b`:                `a\\\;b`,
		"plain":               "plain",
	}
	for input, want := range tests {
		got := EscapeText(input)
		if got != want {
			t.Fatalf("EscapeText(%q) = %q, want %q", input, got, want)
		}
		if back := UnescapeText(got); back != input {
			t.Fatalf("UnescapeText(%q) = %q, want %q", got, back, input)
		}
	}
}

func TestEscapeRoundTripThroughFeed(t *testing.T) {
	titles := []string{
		`Back\slash`,
		"Semi; colon, comma",
		"Multi\nline",
		`Mixed \; \, \n literal`,
		"Amélie, ou le fabuleux destin",
	}
	var films []models.FilmEntry
	for i, title := range titles {
		films = append(films, upcomingFilm(int64(i+1), title, models.NewDate(2026, 3, i+1)))
	}

	feed, err := Parse(strings.NewReader(encode(t, Encoder{Username: "eve"}, films)))
	require.NoError(t, err)
	require.Len(t, feed.Events, len(titles))
	for i, title := range titles {
		assert.Equal(t, title+" (UK theatrical release)", feed.Events[i].Summary)
	}
}

func TestFoldLongLines(t *testing.T) {
	title := strings.Repeat("Ünïcödé ", 30)
	out := encode(t, Encoder{Username: "frank"}, []models.FilmEntry{
		upcomingFilm(7, title, models.NewDate(2026, 5, 5)),
	})

	for _, line := range strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n") {
		require.LessOrEqual(t, len(line), 75, "line too long: %q", line)
		require.True(t, utf8.ValidString(line), "fold split a UTF-8 sequence: %q", line)
	}

	feed, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, feed.Events, 1)
	assert.Equal(t, title+" (UK theatrical release)", feed.Events[0].Summary)
}

func TestFoldLineShort(t *testing.T) {
	line := strings.Repeat("a", 75)
	assert.Equal(t, line, FoldLine(line))
	folded := FoldLine(line + "b")
	assert.Equal(t, line+"\r\n b", folded)
}

func TestParseFeed(t *testing.T) {
	out := encode(t, Encoder{Username: "gina", RegionLabel: "IE"}, []models.FilmEntry{
		upcomingFilm(5, "Five", models.NewDate(2026, 6, 30)),
	})

	feed, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "2.0", feed.Property("VERSION"))
	assert.Equal(t, "gina's Film Releases", UnescapeText(feed.Property("X-WR-CALNAME")))
	assert.Equal(t, "IE theatrical releases tracked by gina", UnescapeText(feed.Property("X-WR-CALDESC")))

	require.Len(t, feed.Events, 1)
	ev := feed.Events[0]
	assert.Equal(t, "tmdb-5-gina@film-release-tracker", ev.UID)
	assert.Equal(t, models.NewDate(2026, 6, 30), ev.Start)
	assert.Equal(t, models.NewDate(2026, 7, 1), ev.End)
	assert.Equal(t, "Five (IE theatrical release)", ev.Summary)
	assert.Equal(t, "TMDb: https://www.themoviedb.org/movie/5", ev.Description)
	assert.Equal(t, "CONFIRMED", ev.Status)
	assert.Equal(t, "TRANSPARENT", ev.Transp)
	assert.Equal(t, "20260101T000000Z", ev.DTStamp)
}

func TestParseRejectsMalformedFeeds(t *testing.T) {
	tests := map[string]string{
		"empty":               "",
		"no begin":            "VERSION:2.0\r\nEND:VCALENDAR\r\n",
		"no end":              "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n",
		"open event":          "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nEND:VCALENDAR\r\n",
		"bad date":            "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nDTSTART;VALUE=DATE:2026-01-01\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
		"no separator":        "BEGIN:VCALENDAR\r\nGARBAGE\r\nEND:VCALENDAR\r\n",
		"stray end event":     "BEGIN:VCALENDAR\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
		"raw carriage return": "BEGIN:VCALENDAR\r\nX-WR-CALNAME:a\rb\r\nEND:VCALENDAR\r\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFeed))
		})
	}
}

func TestEscapeTextDropsControlCharacters(t *testing.T) {
	tests := map[string]string{
		"Line one\r\nLine two": `Line one\nLine two`,
		"Old\rMac":             `Old\nMac`,
		"Bell\a and nul\x00":   "Bell and nul",
		"Tab\tkept":            "Tab\tkept",
		"del\x7f":              "del",
		"bad \xff byte":        "bad \uFFFD byte",
	}
	for input, want := range tests {
		if got := EscapeText(input); got != want {
			t.Fatalf("EscapeText(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEncodeNeverEmitsControlCharacters(t *testing.T) {
	film := upcomingFilm(9, "Line one\r\nLine two", models.NewDate(2026, 2, 2))
	out := encode(t, Encoder{Username: "ivy\x01\r\n\x80"}, []models.FilmEntry{film})

	for _, line := range strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n") {
		for _, r := range line {
			require.False(t, r < 0x20 && r != '\t', "control character in %q", line)
		}
		require.True(t, utf8.ValidString(line), "invalid UTF-8 in %q", line)
	}
	assert.Contains(t, out, "SUMMARY:Line one\\nLine two (UK theatrical release)\r\n")

	feed, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, feed.Events, 1)
	assert.Equal(t, "Line one\nLine two (UK theatrical release)", feed.Events[0].Summary)
}

func TestFoldLineInvalidUTF8Terminates(t *testing.T) {
	line := "X-WR-CALNAME:" + strings.Repeat("\x80", 100)

	done := make(chan string, 1)
	go func() { done <- FoldLine(line) }()
	select {
	case folded := <-done:
		assert.Equal(t, line, strings.ReplaceAll(folded, "\r\n ", ""))
		for _, part := range strings.Split(folded, "\r\n") {
			assert.LessOrEqual(t, len(part), 75)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FoldLine did not return")
	}
}

func TestEncodeInvalidUTF8Username(t *testing.T) {
	out := encode(t, Encoder{Username: strings.Repeat("\x80", 100)}, nil)
	feed, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(feed.Property("X-WR-CALNAME")))
}
