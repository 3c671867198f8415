// Package config resolves where the pipeline reads and writes: the data
// directory for its own cache files, the desktop host's WebKit storage
// root, and the upstream site. Defaults target the macOS menu-bar host
// layout; a TOML file and environment variables can override them, which
// is how tests and diagnostics point the pipeline at fixtures.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for the upstream aggregator and network behavior.
const (
	DefaultBaseURL = "https://simplifi.quicken.com"

	// HTTPTimeout bounds every network call; local reads are untimed.
	HTTPTimeout = 30 * time.Second

	configFileName = "config.toml"
)

// Environment variable overrides.
const (
	EnvDataDir     = "WORTHBAR_DATA_DIR"
	EnvHostStorage = "WORTHBAR_HOST_STORAGE"
	EnvBaseURL     = "WORTHBAR_BASE_URL"
)

// Config holds the resolved locations and upstream settings.
type Config struct {
	// DataDir holds the pipeline-owned files (oauth config cache, token
	// cache, last label).
	DataDir string

	// ContainerDir is the menu-bar host's sandbox container; surfaced in
	// diagnostics only.
	ContainerDir string

	// HostStorage is the WebKit WebsiteData root containing per-origin
	// directories; read-only to this pipeline.
	HostStorage string

	// BaseURL is the aggregator's web origin (bundle scraping).
	BaseURL string

	// Host is the aggregator hostname used for origin matching.
	Host string
}

// fileConfig is the optional on-disk override file, read from
// DataDir/config.toml.
type fileConfig struct {
	HostStorage string `toml:"host_storage"`
	BaseURL     string `toml:"base_url"`
}

// Load resolves the configuration. Precedence: built-in defaults, then the
// TOML file, then environment variables.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}

	container := filepath.Join(home, "Library", "Containers", "com.app.menubarx", "Data")
	cfg := Config{
		DataDir:      filepath.Join(home, "Library", "Application Support", "SimplifiWorthBar"),
		ContainerDir: container,
		HostStorage:  filepath.Join(container, "Library", "WebKit", "WebsiteData", "Default"),
		BaseURL:      DefaultBaseURL,
	}

	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.DataDir = dir
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(filepath.Join(cfg.DataDir, configFileName), &fc); err == nil {
		if fc.HostStorage != "" {
			cfg.HostStorage = fc.HostStorage
		}
		if fc.BaseURL != "" {
			cfg.BaseURL = fc.BaseURL
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	if root := os.Getenv(EnvHostStorage); root != "" {
		cfg.HostStorage = root
	}
	if base := os.Getenv(EnvBaseURL); base != "" {
		cfg.BaseURL = base
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return Config{}, err
	}
	cfg.Host = u.Hostname()

	return cfg, nil
}
