package watchlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"releasewatch/models"
)

var (
	ErrStorageDirRequired = errors.New("watchlists directory not provided")
	ErrNoWatchlists       = errors.New("no watchlist files found")
	ErrWatchlistEmpty     = errors.New("watchlist is empty")
	ErrWatchlistMalformed = errors.New("watchlist is malformed")
)

// Service reads per-user watchlist files from a directory.
// Each <username>.json, .yaml or .yml file holds an array of entries.
type Service struct {
	fs         afero.Fs
	dir        string
	legacyPath string
}

// NewService prepares the watchlists directory, migrating a legacy single-user
// watchlist file into <dir>/default.json when the directory does not exist yet.
func NewService(fs afero.Fs, dir, legacyPath string) (*Service, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrStorageDirRequired
	}

	svc := &Service{fs: fs, dir: dir, legacyPath: strings.TrimSpace(legacyPath)}
	if err := svc.ensureDir(); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) ensureDir() error {
	exists, err := afero.DirExists(s.fs, s.dir)
	if err != nil {
		return fmt.Errorf("stat watchlists dir: %w", err)
	}
	if exists {
		return nil
	}

	log.Printf("[watchlist] creating watchlists directory: %s", s.dir)
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create watchlists dir: %w", err)
	}

	if s.legacyPath == "" {
		return nil
	}
	data, err := afero.ReadFile(s.fs, s.legacyPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read legacy watchlist: %w", err)
	}

	target := filepath.Join(s.dir, models.DefaultUserID+".json")
	log.Printf("[watchlist] migrating %s to %s", s.legacyPath, target)
	if err := afero.WriteFile(s.fs, target, data, 0o644); err != nil {
		return fmt.Errorf("migrate legacy watchlist: %w", err)
	}
	return nil
}

// Usernames lists the users with a watchlist file, sorted.
func (s *Service) Usernames() ([]string, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LoadAll reads every watchlist in username order. Any malformed or empty
// watchlist fails the whole load.
func (s *Service) LoadAll() ([]models.Watchlist, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoWatchlists, s.dir)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	lists := make([]models.Watchlist, 0, len(names))
	for _, name := range names {
		wl, err := s.loadFile(name, files[name])
		if err != nil {
			return nil, err
		}
		lists = append(lists, wl)
	}
	return lists, nil
}

// Load reads a single user's watchlist.
func (s *Service) Load(username string) (models.Watchlist, error) {
	files, err := s.files()
	if err != nil {
		return models.Watchlist{}, err
	}
	path, ok := files[username]
	if !ok {
		return models.Watchlist{}, fmt.Errorf("watchlist for %q: %w", username, os.ErrNotExist)
	}
	return s.loadFile(username, path)
}

func (s *Service) files() (map[string]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("read watchlists dir: %w", err)
	}

	files := make(map[string]string, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(info.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		username := strings.TrimSpace(strings.TrimSuffix(info.Name(), filepath.Ext(info.Name())))
		if username == "" {
			continue
		}
		if existing, dup := files[username]; dup {
			log.Printf("[watchlist] ignoring %s: %s already defines user %q", info.Name(), filepath.Base(existing), username)
			continue
		}
		files[username] = filepath.Join(s.dir, info.Name())
	}
	return files, nil
}

func (s *Service) loadFile(username, path string) (models.Watchlist, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return models.Watchlist{}, fmt.Errorf("read watchlist %s: %w", path, err)
	}

	entries, err := decodeEntries(path, data)
	if err != nil {
		return models.Watchlist{}, fmt.Errorf("%w: %s: %v", ErrWatchlistMalformed, path, err)
	}

	normalised, err := normaliseEntries(entries)
	if err != nil {
		return models.Watchlist{}, fmt.Errorf("%w: %s: %v", ErrWatchlistMalformed, path, err)
	}
	if len(normalised) == 0 {
		return models.Watchlist{}, fmt.Errorf("%w: %s", ErrWatchlistEmpty, path)
	}

	return models.Watchlist{Username: username, Entries: normalised}, nil
}

func decodeEntries(path string, data []byte) ([]models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// normaliseEntries rejects entries without a TMDB id and drops repeats,
// keeping the first occurrence so watchlist order is preserved.
func normaliseEntries(entries []models.WatchlistEntry) ([]models.WatchlistEntry, error) {
	seen := make(map[int64]struct{}, len(entries))
	out := make([]models.WatchlistEntry, 0, len(entries))
	for i, entry := range entries {
		if entry.TMDBID <= 0 {
			return nil, fmt.Errorf("entry %d: tmdb_id must be a positive integer", i)
		}
		if _, dup := seen[entry.TMDBID]; dup {
			log.Printf("[watchlist] dropping duplicate tmdb_id %d (entry %d)", entry.TMDBID, i)
			continue
		}
		seen[entry.TMDBID] = struct{}{}
		entry.TitleHint = strings.TrimSpace(entry.TitleHint)
		out = append(out, entry)
	}
	return out, nil
}
