package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"releasewatch/models"
	"releasewatch/services/dataset"
	"releasewatch/services/publisher"
)

// SiteHandler serves a generated site directory for local preview.
type SiteHandler struct {
	fs   afero.Fs
	root string
}

func NewSiteHandler(fs afero.Fs, root string) *SiteHandler {
	return &SiteHandler{fs: fs, root: root}
}

// UserSummary is one entry in the /api/users listing.
type UserSummary struct {
	Username    string `json:"username"`
	Slug        string `json:"slug"`
	GeneratedOn string `json:"generated_on"`
	Upcoming    int    `json:"upcoming"`
	TBD         int    `json:"tbd"`
	Released    int    `json:"released"`
	Calendar    string `json:"calendar"`
}

// ListUsers returns every user directory that holds a dataset.
func (h *SiteHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	infos, err := afero.ReadDir(h.fs, h.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		http.Error(w, "unable to read site directory", http.StatusInternalServerError)
		return
	}

	users := make([]UserSummary, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		ds, err := h.loadDataset(info.Name())
		if err != nil {
			continue
		}
		users = append(users, UserSummary{
			Username:    ds.Username,
			Slug:        info.Name(),
			GeneratedOn: ds.GeneratedOn.String(),
			Upcoming:    len(ds.Upcoming),
			TBD:         len(ds.TBD),
			Released:    len(ds.Released),
			Calendar:    "/" + info.Name() + "/" + publisher.CalendarFile,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

// Releases returns a user's dataset, optionally narrowed to one bucket with ?bucket=.
func (h *SiteHandler) Releases(w http.ResponseWriter, r *http.Request) {
	slug, ok := h.slugFromRequest(w, r)
	if !ok {
		return
	}

	ds, err := h.loadDataset(slug)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if bucket := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("bucket"))); bucket != "" {
		kind := models.DecisionKind(bucket)
		if !kind.Valid() {
			http.Error(w, "bucket must be upcoming, tbd or released", http.StatusBadRequest)
			return
		}
		ds = models.PartitionedDataset{
			Username:    ds.Username,
			GeneratedOn: ds.GeneratedOn,
			Upcoming:    pick(kind, models.DecisionUpcoming, ds.Upcoming),
			TBD:         pick(kind, models.DecisionTBD, ds.TBD),
			Released:    pick(kind, models.DecisionReleased, ds.Released),
		}
	}

	var buf bytes.Buffer
	if err := dataset.Encode(&buf, ds); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

func pick(want, have models.DecisionKind, entries []models.FilmEntry) []models.FilmEntry {
	if want == have {
		return entries
	}
	return nil
}

// Calendar serves a user's feed with the iCalendar media type.
func (h *SiteHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	slug, ok := h.slugFromRequest(w, r)
	if !ok {
		return
	}

	data, err := afero.ReadFile(h.fs, filepath.Join(h.root, slug, publisher.CalendarFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "calendar not found", http.StatusNotFound)
			return
		}
		http.Error(w, "unable to read calendar", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+publisher.CalendarFile+`"`)
	w.Write(data)
}

// Static serves the remaining site files.
func (h *SiteHandler) Static() http.Handler {
	return http.FileServer(afero.NewHttpFs(h.fs).Dir(h.root))
}

func (h *SiteHandler) slugFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	slug := strings.TrimSpace(mux.Vars(r)["user"])
	if slug == "" || slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) {
		http.Error(w, "user is required", http.StatusBadRequest)
		return "", false
	}
	return slug, true
}

func (h *SiteHandler) loadDataset(slug string) (models.PartitionedDataset, error) {
	f, err := h.fs.Open(filepath.Join(h.root, slug, publisher.DatasetFile))
	if err != nil {
		return models.PartitionedDataset{}, err
	}
	defer f.Close()
	return dataset.Decode(f)
}
