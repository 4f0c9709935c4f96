package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"releasewatch/api"
	"releasewatch/config"
	"releasewatch/handlers"
	"releasewatch/models"
	"releasewatch/services/calendar"
	"releasewatch/services/classifier"
	"releasewatch/services/metadata"
	"releasewatch/services/publisher"
	"releasewatch/services/watchlist"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configFlag := flag.String("config", "", "path to settings.json (default $RELEASEWATCH_CONFIG or settings.json)")
	serve := flag.Bool("serve", false, "serve the generated site instead of regenerating it")
	portOverride := flag.Int("port", 0, "override server port from config")
	todayFlag := flag.String("today", "", "reference date YYYY-MM-DD (default: today in release.timezone)")
	flag.Parse()

	// Determine config path (flag, env or default)
	configPath := strings.TrimSpace(*configFlag)
	if configPath == "" {
		configPath = os.Getenv("RELEASEWATCH_CONFIG")
	}
	if configPath == "" {
		configPath = "settings.json"
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}
	setupLogging(settings.Log)

	if err := settings.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	if *serve {
		runServer(settings)
		return
	}

	// The credential is checked before any watchlist, network or output work.
	apiKey, err := settings.ResolveAPIKey()
	if err != nil {
		log.Fatalf("%v", err)
	}

	today := settings.Today(time.Now())
	if *todayFlag != "" {
		today, err = models.ParseDate(*todayFlag)
		if err != nil {
			log.Fatalf("invalid -today: %v", err)
		}
	}

	provider, err := metadata.NewTMDBClient(metadata.ClientOptions{
		APIKey:            apiKey,
		BaseURL:           settings.Provider.BaseURL,
		ImageBaseURL:      settings.Provider.ImageBaseURL,
		SiteBaseURL:       settings.Provider.SiteBaseURL,
		Language:          settings.Provider.Language,
		Timeout:           time.Duration(settings.Provider.TimeoutSeconds) * time.Second,
		RequestsPerSecond: settings.Provider.RequestsPerSecond,
		Burst:             settings.Provider.Burst,
		RetryAttempts:     settings.Provider.RetryAttempts,
		RetryDelay:        time.Duration(settings.Provider.RetryDelayMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("failed to create TMDB client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runLogger := slog.With("run_id", uuid.NewString())
	site, err := generate(ctx, runLogger, settings, afero.NewOsFs(), provider, today)
	if err != nil {
		stop()
		log.Fatalf("release run failed: %v", err)
	}
	log.Printf("[releasewatch] done: processed %d user(s) for %s", len(site.Users), today)
}

// generate loads every watchlist, classifies every user and only then writes
// the site. Any fatal error returns before the first output file is written.
// A user whose films all fail is still published with every film in tbd; the
// run fails only when no film for any user could be processed.
func generate(ctx context.Context, logger *slog.Logger, settings config.Settings, fs afero.Fs, provider classifier.Provider, today models.Date) (*publisher.Site, error) {
	wlService, err := watchlist.NewService(fs, settings.Paths.WatchlistsDir, settings.Paths.LegacyWatchlist)
	if err != nil {
		return nil, err
	}
	lists, err := wlService.LoadAll()
	if err != nil {
		return nil, err
	}
	log.Printf("[releasewatch] found %d watchlist(s), today is %s", len(lists), today)

	svc := classifier.NewService(provider, classifier.Config{
		Region:      settings.Release.Region,
		ReleaseType: settings.Release.Type,
		Concurrency: settings.Provider.Concurrency,
		TBDOrder:    settings.Output.TBDOrder,
		Collation:   settings.Output.Collation,
		Logger:      logger,
	})

	var run classifier.Stats
	datasets := make([]models.PartitionedDataset, 0, len(lists))
	for _, list := range lists {
		ds, stats, err := svc.Build(ctx, list.Username, list.Entries, today)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", list.Username, err)
		}
		if stats.Failed > 0 {
			log.Printf("[releasewatch] %s: %d of %d films could not be resolved and are listed as TBD", list.Username, stats.Failed, stats.Total)
		}
		log.Printf("[releasewatch] %s stats: %s", list.Username, stats)
		run.Add(stats)
		datasets = append(datasets, ds)
	}
	if run.Processed() == 0 {
		return nil, fmt.Errorf("%w: all %d films across %d user(s) failed", classifier.ErrNoFilmsProcessed, run.Total, len(lists))
	}

	pub, err := publisher.New(fs, publisher.Options{
		OutputDir:   settings.Paths.OutputDir,
		ProductName: settings.Calendar.ProductName,
		RegionLabel: settings.Release.RegionLabel,
		Calendar: calendar.Encoder{
			ProductName: settings.Calendar.ProductName,
			UIDDomain:   settings.Calendar.UIDDomain,
			RegionLabel: settings.Release.RegionLabel,
		},
	})
	if err != nil {
		return nil, err
	}
	return pub.Publish(datasets)
}

func runServer(settings config.Settings) {
	siteHandler := handlers.NewSiteHandler(afero.NewOsFs(), settings.Paths.OutputDir)
	r := api.NewRouter(siteHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	log.Printf("[server] serving %s on http://%s", settings.Paths.OutputDir, addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("[server] shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown error: %v", err)
	}
}

// setupLogging routes log and slog to stderr, plus a rotating file when configured.
func setupLogging(cfg config.LogConfig) {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		logDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
			out = io.MultiWriter(os.Stderr, fileWriter)
		}
	}

	log.SetOutput(out)
	log.SetFlags(log.LstdFlags)

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))

	if cfg.File != "" {
		log.Printf("Logging to file: %s", cfg.File)
	}
}
