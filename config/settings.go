package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // reference timezone must resolve on hosts without zoneinfo

	"releasewatch/models"
)

// APIKeyEnv overrides provider.apiKey when set.
const APIKeyEnv = "TMDB_API_KEY"

var (
	ErrCredentialMissing = errors.New("TMDB_API_KEY is not set")
	ErrInvalidSettings   = errors.New("invalid settings")
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Provider ProviderSettings `json:"provider"`
	Release  ReleaseSettings  `json:"release"`
	Paths    PathSettings     `json:"paths"`
	Output   OutputSettings   `json:"output"`
	Calendar CalendarSettings `json:"calendar"`
	Server   ServerSettings   `json:"server"`
	Log      LogConfig        `json:"log"`
}

type ProviderSettings struct {
	APIKey            string  `json:"apiKey,omitempty"` // prefer the TMDB_API_KEY env var
	BaseURL           string  `json:"baseUrl"`
	ImageBaseURL      string  `json:"imageBaseUrl"`
	SiteBaseURL       string  `json:"siteBaseUrl"`
	Language          string  `json:"language"`
	TimeoutSeconds    int     `json:"timeoutSeconds"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
	RetryAttempts     int     `json:"retryAttempts"` // 1 = no retry
	RetryDelayMs      int     `json:"retryDelayMs"`
	Concurrency       int     `json:"concurrency"` // 1 = sequential
}

// ReleaseSettings selects which provider records are authoritative.
type ReleaseSettings struct {
	Region      string `json:"region"`      // ISO 3166-1 alpha-2
	Type        int    `json:"type"`        // TMDB release type, 3 = theatrical
	Timezone    string `json:"timezone"`    // civil calendar used for "today"
	RegionLabel string `json:"regionLabel"` // shown in calendar summaries, e.g. "UK"
}

type PathSettings struct {
	WatchlistsDir   string `json:"watchlistsDir"`
	LegacyWatchlist string `json:"legacyWatchlist"`
	OutputDir       string `json:"outputDir"`
}

// TBD ordering choices.
const (
	TBDOrderWatchlist = "watchlist"
	TBDOrderTitle     = "title"
)

type OutputSettings struct {
	TBDOrder  string `json:"tbdOrder"`  // watchlist | title
	Collation string `json:"collation"` // BCP 47 tag used to order titles
}

type CalendarSettings struct {
	ProductName string `json:"productName"`
	UIDDomain   string `json:"uidDomain"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LogConfig mirrors lumberjack's rotation options.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Provider: ProviderSettings{
			BaseURL:           "https://api.themoviedb.org/3",
			ImageBaseURL:      "https://image.tmdb.org/t/p/w342",
			SiteBaseURL:       "https://www.themoviedb.org",
			Language:          "en-GB",
			TimeoutSeconds:    30,
			RequestsPerSecond: 20,
			Burst:             5,
			RetryAttempts:     1,
			RetryDelayMs:      500,
			Concurrency:       1,
		},
		Release: ReleaseSettings{
			Region:      "GB",
			Type:        models.ReleaseTypeTheatrical,
			Timezone:    "Europe/London",
			RegionLabel: "UK",
		},
		Paths: PathSettings{
			WatchlistsDir:   "watchlists",
			LegacyWatchlist: "watchlist.json",
			OutputDir:       "site",
		},
		Output: OutputSettings{
			TBDOrder:  TBDOrderWatchlist,
			Collation: "en-GB",
		},
		Calendar: CalendarSettings{
			ProductName: "Film Release Tracker",
			UIDDomain:   "film-release-tracker",
		},
		Server: ServerSettings{Host: "127.0.0.1", Port: 8080},
		Log: LogConfig{
			File:       "",
			Level:      "info",
			MaxSize:    10,   // MB per file
			MaxBackups: 3,    // keep 3 old files
			MaxAge:     30,   // days
			Compress:   true, // compress old files
		},
	}
}

// Validate rejects settings the run cannot work with.
func (s Settings) Validate() error {
	var problems []string

	if u, err := url.Parse(s.Provider.BaseURL); err != nil || u.Scheme != "https" || u.Host == "" {
		problems = append(problems, "provider.baseUrl must be an https URL")
	}
	if s.Provider.TimeoutSeconds <= 0 {
		problems = append(problems, "provider.timeoutSeconds must be positive")
	}
	if s.Provider.RequestsPerSecond < 0 {
		problems = append(problems, "provider.requestsPerSecond must not be negative")
	}
	if s.Provider.RetryAttempts < 1 {
		problems = append(problems, "provider.retryAttempts must be at least 1")
	}
	if s.Provider.Concurrency < 1 {
		problems = append(problems, "provider.concurrency must be at least 1")
	}
	if len(strings.TrimSpace(s.Release.Region)) != 2 {
		problems = append(problems, "release.region must be a two-letter country code")
	}
	if models.ReleaseTypeName(s.Release.Type) == "" {
		problems = append(problems, fmt.Sprintf("release.type %d is not a TMDB release type", s.Release.Type))
	}
	if _, err := time.LoadLocation(s.Release.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("release.timezone: %v", err))
	}
	switch s.Output.TBDOrder {
	case TBDOrderWatchlist, TBDOrderTitle:
	default:
		problems = append(problems, fmt.Sprintf("output.tbdOrder %q must be %q or %q", s.Output.TBDOrder, TBDOrderWatchlist, TBDOrderTitle))
	}
	if strings.TrimSpace(s.Paths.WatchlistsDir) == "" || strings.TrimSpace(s.Paths.OutputDir) == "" {
		problems = append(problems, "paths.watchlistsDir and paths.outputDir are required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

// ResolveAPIKey returns the credential from the environment, falling back to
// provider.apiKey.
func (s Settings) ResolveAPIKey() (string, error) {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(s.Provider.APIKey); key != "" {
		return key, nil
	}
	return "", ErrCredentialMissing
}

// Location resolves release.timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Release.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Today returns the civil date of now in the reference timezone.
func (s Settings) Today(now time.Time) models.Date {
	return models.DateOf(now.In(s.Location()))
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

func (m *Manager) Path() string {
	return m.path
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings file or creates it with defaults if missing.
// Fields absent from the file keep their default values.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	// Older files kept the key under metadata.tmdbApiKey.
	if metaRaw, ok := raw["metadata"].(map[string]interface{}); ok && strings.TrimSpace(s.Provider.APIKey) == "" {
		if key, _ := metaRaw["tmdbApiKey"].(string); strings.TrimSpace(key) != "" {
			s.Provider.APIKey = strings.TrimSpace(key)
		}
	}

	s.Release.Region = strings.ToUpper(strings.TrimSpace(s.Release.Region))
	s.Output.TBDOrder = strings.ToLower(strings.TrimSpace(s.Output.TBDOrder))
	if s.Output.TBDOrder == "" {
		s.Output.TBDOrder = TBDOrderWatchlist
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
