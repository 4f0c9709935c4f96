package calendar

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"releasewatch/models"
)

const (
	crlf = "\r\n"

	// maxLineOctets is the folding limit for content lines, excluding CRLF.
	maxLineOctets = 75

	defaultProductName = "Film Release Tracker"
	defaultUIDDomain   = "film-release-tracker"
	defaultRegionLabel = "UK"
)

var ErrMalformedFeed = errors.New("malformed calendar feed")

// Encoder renders upcoming films as an iCalendar feed of all-day events.
type Encoder struct {
	ProductName string
	UIDDomain   string
	RegionLabel string
	Username    string // optional; scopes PRODID, UIDs and calendar name
}

// Encode writes one VEVENT per upcoming film. Entries in any other bucket are
// skipped. DTSTAMP is derived from today so identical inputs give identical bytes.
func (e Encoder) Encode(w io.Writer, upcoming []models.FilmEntry, today models.Date) error {
	product := firstNonEmpty(e.ProductName, defaultProductName)
	domain := firstNonEmpty(e.UIDDomain, defaultUIDDomain)
	region := firstNonEmpty(e.RegionLabel, defaultRegionLabel)
	user := strings.TrimSpace(cleanIdentity(e.Username))

	var b strings.Builder
	line := func(s string) {
		b.WriteString(FoldLine(s))
		b.WriteString(crlf)
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	if user != "" {
		line("PRODID:-//" + cleanIdentity(product) + "//" + user + "//EN")
	} else {
		line("PRODID:-//" + cleanIdentity(product) + "//EN")
	}
	line("CALSCALE:GREGORIAN")
	line("METHOD:PUBLISH")
	if user != "" {
		line("X-WR-CALNAME:" + EscapeText(user+"'s Film Releases"))
		line("X-WR-CALDESC:" + EscapeText(region+" theatrical releases tracked by "+user))
	} else {
		line("X-WR-CALNAME:" + EscapeText("Film Releases"))
		line("X-WR-CALDESC:" + EscapeText(region+" theatrical releases"))
	}

	dtstamp := today.Basic() + "T000000Z"
	for _, film := range upcoming {
		if film.Decision.Kind != models.DecisionUpcoming || film.Decision.Date.IsZero() {
			continue
		}
		start := film.Decision.Date
		uid := "tmdb-" + strconv.FormatInt(film.TMDBID, 10)
		if user != "" {
			uid += "-" + user
		}
		uid += "@" + cleanIdentity(domain)

		line("BEGIN:VEVENT")
		line("UID:" + EscapeText(uid))
		line("DTSTAMP:" + dtstamp)
		line("DTSTART;VALUE=DATE:" + start.Basic())
		line("DTEND;VALUE=DATE:" + start.AddDays(1).Basic())
		line("SUMMARY:" + EscapeText(fmt.Sprintf("%s (%s theatrical release)", film.Title, region)))
		line("DESCRIPTION:" + EscapeText("TMDb: "+film.TMDBURL))
		line("STATUS:CONFIRMED")
		line("TRANSP:TRANSPARENT")
		line("END:VEVENT")
	}

	line("END:VCALENDAR")

	_, err := io.WriteString(w, b.String())
	return err
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	`;`, `\;`,
	`,`, `\,`,
	"\n", `\n`,
)

// EscapeText escapes a TEXT property value. Backslash is handled first, so
// the sequences it introduces are never escaped twice. Invalid UTF-8 is
// replaced, CR and CRLF become a line break, and other control characters
// except HTAB are dropped.
func EscapeText(s string) string {
	return textEscaper.Replace(cleanText(s))
}

func cleanText(s string) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if isContentControl(r) {
			return -1
		}
		return r
	}, s)
}

// cleanIdentity prepares a value written outside TEXT escaping (PRODID, UID
// parts, calendar names from filenames): valid UTF-8 with no control characters.
func cleanIdentity(s string) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// isContentControl reports the CONTROL characters of RFC 5545 other than HTAB.
func isContentControl(r rune) bool {
	return (r < 0x20 && r != '\t') || r == 0x7f
}

// UnescapeText reverses EscapeText. Unknown escape sequences are kept verbatim.
func UnescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch next := s[i+1]; next {
		case '\\', ';', ',':
			b.WriteByte(next)
			i++
		case 'n', 'N':
			b.WriteByte('\n')
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// FoldLine splits a content line longer than 75 octets into CRLF + space
// continuations without breaking a UTF-8 sequence.
func FoldLine(s string) string {
	if len(s) <= maxLineOctets {
		return s
	}
	var b strings.Builder
	limit := maxLineOctets
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			// no rune boundary in reach, as with invalid UTF-8
			cut = limit
		}
		b.WriteString(s[:cut])
		b.WriteString(crlf + " ")
		s = s[cut:]
		// continuation lines carry the leading space
		limit = maxLineOctets - 1
	}
	b.WriteString(s)
	return b.String()
}

// Property is one unfolded content line.
type Property struct {
	Name   string
	Params string
	Value  string
}

// Event is a parsed VEVENT with text values unescaped.
type Event struct {
	UID         string
	DTStamp     string
	Start       models.Date
	End         models.Date
	Summary     string
	Description string
	Status      string
	Transp      string
}

// Feed is a parsed VCALENDAR.
type Feed struct {
	Properties []Property // calendar-level properties, in order
	Events     []Event
}

// Property returns the value of the first calendar-level property with name.
func (f *Feed) Property(name string) string {
	for _, p := range f.Properties {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// Parse reads a feed produced by Encode, or any simple single-calendar feed.
func Parse(r io.Reader) (*Feed, error) {
	lines, err := unfold(r)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 || lines[0] != "BEGIN:VCALENDAR" {
		return nil, fmt.Errorf("%w: missing BEGIN:VCALENDAR", ErrMalformedFeed)
	}

	feed := &Feed{}
	var (
		current *Event
		closed  bool
	)
	for n, raw := range lines[1:] {
		if closed {
			return nil, fmt.Errorf("%w: content after END:VCALENDAR", ErrMalformedFeed)
		}
		if i := strings.IndexFunc(raw, isContentControl); i >= 0 {
			return nil, fmt.Errorf("%w: line %d: control character %U", ErrMalformedFeed, n+2, raw[i])
		}
		prop, err := parseProperty(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedFeed, n+2, err)
		}

		switch {
		case prop.Name == "BEGIN" && prop.Value == "VEVENT":
			if current != nil {
				return nil, fmt.Errorf("%w: nested VEVENT", ErrMalformedFeed)
			}
			current = &Event{}
		case prop.Name == "END" && prop.Value == "VEVENT":
			if current == nil {
				return nil, fmt.Errorf("%w: END:VEVENT without BEGIN", ErrMalformedFeed)
			}
			feed.Events = append(feed.Events, *current)
			current = nil
		case prop.Name == "END" && prop.Value == "VCALENDAR":
			if current != nil {
				return nil, fmt.Errorf("%w: unterminated VEVENT", ErrMalformedFeed)
			}
			closed = true
		case current != nil:
			if err := current.set(prop); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedFeed, n+2, err)
			}
		default:
			feed.Properties = append(feed.Properties, prop)
		}
	}
	if !closed {
		return nil, fmt.Errorf("%w: missing END:VCALENDAR", ErrMalformedFeed)
	}
	return feed, nil
}

func (ev *Event) set(p Property) error {
	switch p.Name {
	case "UID":
		ev.UID = UnescapeText(p.Value)
	case "DTSTAMP":
		ev.DTStamp = p.Value
	case "DTSTART", "DTEND":
		d, err := parseBasicDate(p.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		if p.Name == "DTSTART" {
			ev.Start = d
		} else {
			ev.End = d
		}
	case "SUMMARY":
		ev.Summary = UnescapeText(p.Value)
	case "DESCRIPTION":
		ev.Description = UnescapeText(p.Value)
	case "STATUS":
		ev.Status = p.Value
	case "TRANSP":
		ev.Transp = p.Value
	}
	return nil
}

func parseBasicDate(v string) (models.Date, error) {
	if len(v) != 8 {
		return models.Date{}, fmt.Errorf("date %q is not YYYYMMDD", v)
	}
	return models.ParseDate(v[:4] + "-" + v[4:6] + "-" + v[6:])
}

func parseProperty(line string) (Property, error) {
	inQuotes := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ':':
			if inQuotes {
				continue
			}
			head := line[:i]
			prop := Property{Value: line[i+1:]}
			if semi := strings.IndexByte(head, ';'); semi >= 0 {
				prop.Name, prop.Params = head[:semi], head[semi+1:]
			} else {
				prop.Name = head
			}
			prop.Name = strings.ToUpper(prop.Name)
			if prop.Name == "" {
				return Property{}, errors.New("empty property name")
			}
			return prop, nil
		}
	}
	return Property{}, fmt.Errorf("no value separator in %q", line)
}

// unfold joins continuation lines and drops line terminators. Bare LF is accepted.
func unfold(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var lines []string
	for scanner.Scan() {
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		if (text[0] == ' ' || text[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += text[1:]
			continue
		}
		lines = append(lines, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
