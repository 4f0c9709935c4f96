package publisher

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"github.com/spf13/afero"

	"releasewatch/models"
	"releasewatch/services/calendar"
	"releasewatch/services/dataset"
)

const (
	DatasetFile  = "releases.json"
	CalendarFile = "releases.ics"
	PageFile     = "index.html"
	StylesFile   = "styles.css"
)

var ErrNothingToPublish = errors.New("nothing to publish")

//go:embed templates/*.html templates/*.css
var templatesFS embed.FS

// Options configures site rendering.
type Options struct {
	OutputDir   string
	ProductName string
	RegionLabel string
	Calendar    calendar.Encoder // Username is filled per user
}

// Publisher renders each user's dataset, feed and page and writes the site.
type Publisher struct {
	fs    afero.Fs
	opts  Options
	index *template.Template
	user  *template.Template
}

func New(fs afero.Fs, opts Options) (*Publisher, error) {
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, errors.New("output directory not provided")
	}
	if opts.ProductName == "" {
		opts.ProductName = "Film Release Tracker"
	}
	if opts.RegionLabel == "" {
		opts.RegionLabel = "UK"
	}
	if opts.Calendar.RegionLabel == "" {
		opts.Calendar.RegionLabel = opts.RegionLabel
	}
	if opts.Calendar.ProductName == "" {
		opts.Calendar.ProductName = opts.ProductName
	}

	index, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}
	user, err := template.ParseFS(templatesFS, "templates/user.html")
	if err != nil {
		return nil, fmt.Errorf("parse user template: %w", err)
	}
	return &Publisher{fs: fs, opts: opts, index: index, user: user}, nil
}

// UserSite is the rendered output for one user.
type UserSite struct {
	Username string
	Slug     string
	Stats    string
	Dataset  []byte
	Calendar []byte
	Page     []byte
}

// Site is a fully rendered site, ready to write.
type Site struct {
	Users  []UserSite
	Index  []byte
	Styles []byte
}

// Render builds every artifact in memory. Nothing touches the file system, so a
// failure here leaves any previous site untouched.
func (p *Publisher) Render(datasets []models.PartitionedDataset) (*Site, error) {
	if len(datasets) == 0 {
		return nil, ErrNothingToPublish
	}

	sorted := append([]models.PartitionedDataset(nil), datasets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Username < sorted[j].Username })

	slugs := assignSlugs(sorted)
	site := &Site{Users: make([]UserSite, 0, len(sorted))}
	generated := sorted[0].GeneratedOn
	for _, ds := range sorted {
		rendered, err := p.renderUser(ds, slugs[ds.Username])
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", ds.Username, err)
		}
		site.Users = append(site.Users, rendered)
		if ds.GeneratedOn.After(generated) {
			generated = ds.GeneratedOn
		}
	}

	var index bytes.Buffer
	if err := p.index.Execute(&index, indexPage{
		Product:     p.opts.ProductName,
		RegionLabel: p.opts.RegionLabel,
		GeneratedOn: generated,
		Users:       site.Users,
	}); err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	site.Index = index.Bytes()

	styles, err := templatesFS.ReadFile("templates/styles.css")
	if err != nil {
		return nil, err
	}
	site.Styles = styles
	return site, nil
}

type indexPage struct {
	Product     string
	RegionLabel string
	GeneratedOn models.Date
	Users       []UserSite
}

type userSection struct {
	Heading string
	Films   []models.FilmEntry
}

type userPage struct {
	Product     string
	RegionLabel string
	Username    string
	GeneratedOn models.Date
	Sections    []userSection
}

func (p *Publisher) renderUser(ds models.PartitionedDataset, slug string) (UserSite, error) {
	var data bytes.Buffer
	if err := dataset.Encode(&data, ds); err != nil {
		return UserSite{}, err
	}

	enc := p.opts.Calendar
	enc.Username = ds.Username
	var feed bytes.Buffer
	if err := enc.Encode(&feed, ds.Upcoming, ds.GeneratedOn); err != nil {
		return UserSite{}, fmt.Errorf("encode calendar: %w", err)
	}
	parsed, err := calendar.Parse(bytes.NewReader(feed.Bytes()))
	if err != nil {
		return UserSite{}, fmt.Errorf("verify calendar: %w", err)
	}
	if len(parsed.Events) != len(ds.Upcoming) {
		return UserSite{}, fmt.Errorf("verify calendar: %d events for %d upcoming films", len(parsed.Events), len(ds.Upcoming))
	}

	var page bytes.Buffer
	if err := p.user.Execute(&page, userPage{
		Product:     p.opts.ProductName,
		RegionLabel: p.opts.RegionLabel,
		Username:    ds.Username,
		GeneratedOn: ds.GeneratedOn,
		Sections: []userSection{
			{Heading: "Upcoming", Films: ds.Upcoming},
			{Heading: "Date TBD", Films: ds.TBD},
			{Heading: "Released", Films: ds.Released},
		},
	}); err != nil {
		return UserSite{}, fmt.Errorf("render page: %w", err)
	}

	return UserSite{
		Username: ds.Username,
		Slug:     slug,
		Stats:    StatsLine(ds),
		Dataset:  data.Bytes(),
		Calendar: feed.Bytes(),
		Page:     page.Bytes(),
	}, nil
}

// Write persists a rendered site. Each file is written to a temp name and
// renamed into place.
func (p *Publisher) Write(site *Site) error {
	if site == nil || len(site.Users) == 0 {
		return ErrNothingToPublish
	}
	for _, u := range site.Users {
		dir := filepath.Join(p.opts.OutputDir, u.Slug)
		files := []struct {
			name string
			data []byte
		}{
			{DatasetFile, u.Dataset},
			{CalendarFile, u.Calendar},
			{PageFile, u.Page},
		}
		for _, f := range files {
			path := filepath.Join(dir, f.name)
			if err := writeFileAtomic(p.fs, path, f.data); err != nil {
				return err
			}
			log.Printf("[publisher] wrote %s", path)
		}
		log.Printf("[publisher] %s stats: %s", u.Username, u.Stats)
	}

	if err := writeFileAtomic(p.fs, filepath.Join(p.opts.OutputDir, StylesFile), site.Styles); err != nil {
		return err
	}
	indexPath := filepath.Join(p.opts.OutputDir, PageFile)
	if err := writeFileAtomic(p.fs, indexPath, site.Index); err != nil {
		return err
	}
	log.Printf("[publisher] wrote user directory %s (%d users)", indexPath, len(site.Users))
	return nil
}

// Publish renders then writes. A render failure writes nothing.
func (p *Publisher) Publish(datasets []models.PartitionedDataset) (*Site, error) {
	site, err := p.Render(datasets)
	if err != nil {
		return nil, err
	}
	if err := p.Write(site); err != nil {
		return nil, err
	}
	return site, nil
}

// StatsLine summarises a dataset as "N upcoming, N TBD, N released".
func StatsLine(ds models.PartitionedDataset) string {
	return fmt.Sprintf("%d upcoming, %d TBD, %d released", len(ds.Upcoming), len(ds.TBD), len(ds.Released))
}

// Slug turns a username into a lower-case ASCII path segment.
func Slug(username string) string {
	ascii := strings.ToLower(strings.TrimSpace(unidecode.Unidecode(username)))
	var b strings.Builder
	dash := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "user"
	}
	return slug
}

// assignSlugs gives each user a unique slug; later collisions get a numeric suffix.
func assignSlugs(datasets []models.PartitionedDataset) map[string]string {
	used := make(map[string]bool, len(datasets))
	out := make(map[string]string, len(datasets))
	for _, ds := range datasets {
		base := Slug(ds.Username)
		slug := base
		for n := 2; used[slug]; n++ {
			slug = base + "-" + strconv.Itoa(n)
		}
		used[slug] = true
		out[ds.Username] = slug
	}
	return out
}

func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
