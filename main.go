package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"aniflow/api"
	"aniflow/config"
	"aniflow/handlers"
	"aniflow/internal/cache"
	"aniflow/internal/database"
	"aniflow/internal/pool"
	"aniflow/services/catalog"
	"aniflow/services/library"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 AniFlow Backend Starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("ANIFLOW_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Redirect standard log to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			logFlags := log.LstdFlags
			if settings.Log.DebugEnabled() {
				logFlags |= log.Lshortfile
			}
			log.SetFlags(logFlags)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	// Apply port override if specified
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Provider response cache
	store, err := cache.New(
		afero.NewOsFs(),
		filepath.Join(settings.Cache.Directory, "providers"),
		time.Duration(settings.Cache.TTLHours)*time.Hour,
	)
	if err != nil {
		log.Fatalf("failed to init provider cache: %v", err)
	}

	// Local library database
	db, err := database.Open(settings.Database.Path)
	if err != nil {
		log.Fatalf("failed to open library database: %v", err)
	}
	defer db.Close()

	httpClient := &http.Client{Timeout: time.Duration(settings.Providers.TimeoutSeconds) * time.Second}
	workers := pool.New(settings.Workers.MaxFetchWorkers)

	fetchPolicy := catalog.FetchPolicy{
		Attempts: uint(settings.Providers.RetryAttempts),
		Backoff:  time.Duration(settings.Providers.RetryBackoffMs) * time.Millisecond,
	}
	otakuClient := catalog.NewOtakuClient(httpClient, settings.Providers.OtakuBaseURL, store, fetchPolicy)
	anichinClient := catalog.NewAnichinClient(httpClient, settings.Providers.AnichinBaseURL, store, fetchPolicy)
	catalogSvc := catalog.NewService(otakuClient, anichinClient, workers)
	librarySvc := library.NewService(database.NewLibraryDAO(db),
		settings.Library.MaxWatchlistItems, settings.Library.MaxHistoryItems)

	r := mux.NewRouter()
	api.Register(r,
		handlers.NewCatalogHandler(catalogSvc),
		handlers.NewLibraryHandler(librarySvc),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
