package api

import (
	"net/http"

	"aniflow/handlers"

	"github.com/gorilla/mux"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	catalogHandler *handlers.CatalogHandler,
	libraryHandler *handlers.LibraryHandler,
) {
	api := r.PathPrefix("/api").Subrouter()

	// Add CORS middleware to API subrouter
	api.Use(corsMiddleware)

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	// Catalog
	api.HandleFunc("/home", catalogHandler.Home).Methods(http.MethodGet)
	api.HandleFunc("/home", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/ongoing", catalogHandler.Ongoing).Methods(http.MethodGet)
	api.HandleFunc("/ongoing", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/trending", catalogHandler.Trending).Methods(http.MethodGet)
	api.HandleFunc("/trending", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/top-rated", catalogHandler.TopRated).Methods(http.MethodGet)
	api.HandleFunc("/top-rated", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/search", catalogHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/search", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/genres", catalogHandler.Genres).Methods(http.MethodGet)
	api.HandleFunc("/genres", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/genres/{genre}", catalogHandler.GenreAnime).Methods(http.MethodGet)
	api.HandleFunc("/genres/{genre}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/anime/{slug}", catalogHandler.Detail).Methods(http.MethodGet)
	api.HandleFunc("/anime/{slug}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/episode/{episodeSlug}/stream", catalogHandler.Stream).Methods(http.MethodGet)
	api.HandleFunc("/episode/{episodeSlug}/stream", handleOptions).Methods(http.MethodOptions)

	// Watchlist
	api.HandleFunc("/watchlist", libraryHandler.ListWatchlist).Methods(http.MethodGet)
	api.HandleFunc("/watchlist", libraryHandler.AddWatchlist).Methods(http.MethodPost)
	api.HandleFunc("/watchlist", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/watchlist/toggle", libraryHandler.ToggleWatchlist).Methods(http.MethodPost)
	api.HandleFunc("/watchlist/toggle", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/watchlist/{slug}", libraryHandler.WatchlistContains).Methods(http.MethodGet)
	api.HandleFunc("/watchlist/{slug}", libraryHandler.RemoveWatchlist).Methods(http.MethodDelete)
	api.HandleFunc("/watchlist/{slug}", handleOptions).Methods(http.MethodOptions)

	// History
	api.HandleFunc("/history", libraryHandler.ListHistory).Methods(http.MethodGet)
	api.HandleFunc("/history", libraryHandler.ClearHistory).Methods(http.MethodDelete)
	api.HandleFunc("/history", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/history/progress", libraryHandler.RecordProgress).Methods(http.MethodPost)
	api.HandleFunc("/history/progress", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/history/continue-watching", libraryHandler.ContinueWatching).Methods(http.MethodGet)
	api.HandleFunc("/history/continue-watching", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/history/anime/{slug}", libraryHandler.LatestForAnime).Methods(http.MethodGet)
	api.HandleFunc("/history/anime/{slug}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/history/{id}", libraryHandler.RemoveHistory).Methods(http.MethodDelete)
	api.HandleFunc("/history/{id}", handleOptions).Methods(http.MethodOptions)

	// Downloads
	api.HandleFunc("/downloads", libraryHandler.ListDownloads).Methods(http.MethodGet)
	api.HandleFunc("/downloads", libraryHandler.RegisterDownload).Methods(http.MethodPost)
	api.HandleFunc("/downloads", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/downloads/{id}", libraryHandler.RemoveDownload).Methods(http.MethodDelete)
	api.HandleFunc("/downloads/{id}", handleOptions).Methods(http.MethodOptions)
}
