// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	RemoteGitLab = "gitlab"
	RemoteLocal  = "local"
	RemoteGit    = "git"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`

	Database struct {
		Path string `json:"path" yaml:"path"`
	} `json:"database" yaml:"database"`

	Cache struct {
		// Size bounds the lru cache of file reads served by the API and
		// CLI. Planning never uses it. 0 disables the cache.
		Size int `json:"size" yaml:"size"`
	} `json:"cache" yaml:"cache"`

	Remote RemoteConfig `json:"remote" yaml:"remote"`
	Sync   SyncConfig   `json:"sync" yaml:"sync"`

	Environment string `json:"environment" yaml:"environment"` // development, production
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error
}

// RemoteConfig selects and configures the remote file store.
type RemoteConfig struct {
	Kind      string `json:"kind" yaml:"kind"` // gitlab, local, git
	BaseURL   string `json:"base_url" yaml:"base_url"`
	Token     string `json:"token" yaml:"token"`
	ProjectID string `json:"project_id" yaml:"project_id"`
	// RepoPath is the repository directory for the git backend.
	RepoPath string `json:"repo_path" yaml:"repo_path"`
	// TimeoutSeconds bounds every HTTP call of the gitlab backend.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type SyncConfig struct {
	DefaultBranch        string `json:"default_branch" yaml:"default_branch"`
	Concurrency          int    `json:"concurrency" yaml:"concurrency"`
	NormalizeLineEndings bool   `json:"normalize_line_endings" yaml:"normalize_line_endings"`
	WatchDebounceMillis  int    `json:"watch_debounce_ms" yaml:"watch_debounce_ms"`

	// DeepListing trusts a recursive listing to hold the whole subtree.
	// Unset means true for gitlab and false otherwise.
	DeepListing *bool `json:"deep_listing" yaml:"deep_listing"`
}

// Default returns a configuration for a local badger-backed store.
func Default() *Config {
	var cfg Config
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Database.Path = ".treesync"
	cfg.Remote.Kind = RemoteLocal
	cfg.Remote.BaseURL = "https://gitlab.com"
	cfg.Remote.TimeoutSeconds = 30
	cfg.Sync.DefaultBranch = "main"
	cfg.Sync.Concurrency = 4
	cfg.Sync.WatchDebounceMillis = 500
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	return &cfg
}

// ConfigPath returns the per-environment config file, selected by TREESYNC_ENV.
func ConfigPath() string {
	env := os.Getenv("TREESYNC_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads a JSON or YAML config file on top of Default, then applies
// environment overrides. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing json config: %w", err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields Default with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		cfg.ApplyEnv()
		return cfg, nil
	}
	return cfg, err
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TREESYNC_TOKEN"); v != "" {
		c.Remote.Token = v
	}
	if v := os.Getenv("TREESYNC_BASE_URL"); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv("TREESYNC_PROJECT"); v != "" {
		c.Remote.ProjectID = v
	}
	if v := os.Getenv("TREESYNC_REMOTE"); v != "" {
		c.Remote.Kind = v
	}
	if v := os.Getenv("TREESYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TREESYNC_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.Concurrency = n
		}
	}
}

func (c *Config) Validate() error {
	switch c.Remote.Kind {
	case RemoteGitLab:
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required for gitlab")
		}
		if c.Remote.ProjectID == "" {
			return fmt.Errorf("remote.project_id is required for gitlab")
		}
		if c.Remote.Token == "" {
			return fmt.Errorf("remote.token is required for gitlab (or set TREESYNC_TOKEN)")
		}
	case RemoteLocal:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the local remote")
		}
	case RemoteGit:
		if c.Remote.RepoPath == "" {
			return fmt.Errorf("remote.repo_path is required for git")
		}
	default:
		return fmt.Errorf("unknown remote kind %q", c.Remote.Kind)
	}

	if c.Sync.Concurrency < 0 {
		return fmt.Errorf("sync.concurrency must not be negative")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative")
	}
	return nil
}

// UseDeepListing resolves Sync.DeepListing against the remote kind.
func (c *Config) UseDeepListing() bool {
	if c.Sync.DeepListing != nil {
		return *c.Sync.DeepListing
	}
	return c.Remote.Kind == RemoteGitLab
}

// Development reports whether development logging should be used.
func (c *Config) Development() bool {
	return c.Environment == "" || c.Environment == "development" || c.Environment == "dev"
}
