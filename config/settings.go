package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings   `json:"server"`
	Providers ProviderSettings `json:"providers"`
	Cache     CacheSettings    `json:"cache"`
	Database  DatabaseSettings `json:"database"`
	Library   LibrarySettings  `json:"library"`
	Workers   WorkerSettings   `json:"workers"`
	Log       LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ProviderSettings holds the upstream catalog sources and the retry budget
// shared by their clients.
type ProviderSettings struct {
	OtakuBaseURL   string `json:"otakuBaseUrl"`
	AnichinBaseURL string `json:"anichinBaseUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	RetryAttempts  int    `json:"retryAttempts"`
	RetryBackoffMs int    `json:"retryBackoffMs"`
}

type CacheSettings struct {
	Directory string `json:"directory"`
	TTLHours  int    `json:"ttlHours"`
}

type DatabaseSettings struct {
	Path string `json:"path"`
}

// LibrarySettings bounds the on-device collections.
type LibrarySettings struct {
	MaxWatchlistItems int `json:"maxWatchlistItems"`
	MaxHistoryItems   int `json:"maxHistoryItems"`
}

// WorkerSettings sizes the provider fetch pool.
type WorkerSettings struct {
	MaxFetchWorkers int `json:"maxFetchWorkers"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DebugEnabled reports whether the configured level asks for debug output.
func (l LogConfig) DebugEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(l.Level), "debug")
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7777},
		Providers: ProviderSettings{
			OtakuBaseURL:   "https://otakudesu-api.vercel.app/api",
			AnichinBaseURL: "https://anichin.cafe",
			TimeoutSeconds: 20,
			RetryAttempts:  3,
			RetryBackoffMs: 350,
		},
		Cache:    CacheSettings{Directory: "cache", TTLHours: 24},
		Database: DatabaseSettings{Path: "cache/library.db"},
		Library:  LibrarySettings{MaxWatchlistItems: 200, MaxHistoryItems: 300},
		Workers:  WorkerSettings{MaxFetchWorkers: 4},
		Log: LogConfig{
			File:       "cache/logs/backend.log",
			Level:      "info",
			MaxSize:    50,   // 50 MB per file
			MaxBackups: 3,    // keep 3 old files
			MaxAge:     7,    // 7 days
			Compress:   true, // compress old files
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	// Decode into a raw map first so old flat keys can be migrated.
	var raw map[string]interface{}
	dec := json.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return Settings{}, err
	}

	// Migrate the old flat cacheDir key into the cache section.
	if cacheDir, ok := raw["cacheDir"].(string); ok {
		if cacheRaw, ok := raw["cache"].(map[string]interface{}); ok {
			if _, has := cacheRaw["directory"]; !has {
				cacheRaw["directory"] = cacheDir
			}
		} else {
			raw["cache"] = map[string]interface{}{"directory": cacheDir}
		}
		delete(raw, "cacheDir")
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := json.Unmarshal(rawJSON, &s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for newly introduced settings when config predates them
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Server.Port == 0 {
		s.Server.Port = 7777
	}

	if strings.TrimSpace(s.Providers.OtakuBaseURL) == "" {
		s.Providers.OtakuBaseURL = "https://otakudesu-api.vercel.app/api"
	}
	if strings.TrimSpace(s.Providers.AnichinBaseURL) == "" {
		s.Providers.AnichinBaseURL = "https://anichin.cafe"
	}
	if s.Providers.TimeoutSeconds == 0 {
		s.Providers.TimeoutSeconds = 20
	}
	if s.Providers.RetryAttempts <= 0 {
		s.Providers.RetryAttempts = 3
	}
	if s.Providers.RetryBackoffMs <= 0 {
		s.Providers.RetryBackoffMs = 350
	}

	if strings.TrimSpace(s.Cache.Directory) == "" {
		s.Cache.Directory = "cache"
	}
	if s.Cache.TTLHours == 0 {
		s.Cache.TTLHours = 24
	}

	if strings.TrimSpace(s.Database.Path) == "" {
		s.Database.Path = "cache/library.db"
	}

	if s.Library.MaxWatchlistItems == 0 {
		s.Library.MaxWatchlistItems = 200
	}
	if s.Library.MaxHistoryItems == 0 {
		s.Library.MaxHistoryItems = 300
	}

	if s.Workers.MaxFetchWorkers == 0 {
		s.Workers.MaxFetchWorkers = 4
	}

	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "cache/logs/backend.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
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
