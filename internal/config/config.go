// Package config loads engine configuration from an optional YAML file with
// environment-variable overrides, and supports hot-reload of the file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SUPPORT_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	OpenAI    OpenAIConfig    `koanf:"openai"`
	Chatwoot  ChatwootConfig  `koanf:"chatwoot"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// RateLimit is requests per second allowed on the chat endpoint;
	// 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

type StorageConfig struct {
	SQLitePath string `koanf:"sqlite_path"`
}

type OpenAIConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

type ChatwootConfig struct {
	BaseURL   string `koanf:"base_url"`
	AccountID int    `koanf:"account_id"`
	APIToken  string `koanf:"api_token"`
	// EscalationAgentID is the agent assigned on escalations; 0 leaves the
	// conversation unassigned.
	EscalationAgentID int `koanf:"escalation_agent_id"`
}

type PipelineConfig struct {
	TeamMode bool `koanf:"team_mode"`
	// LinkPassword derives the cancellation-link encryption key. Empty
	// disables cancel links.
	LinkPassword  string `koanf:"link_password"`
	CancelBaseURL string `koanf:"cancel_base_url"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Load reads config.yaml (when present) and applies SUPPORT_-prefixed
// environment overrides, e.g. SUPPORT_SERVER__PORT=9000.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	// Defaults.
	if !k.Exists("server.port") {
		k.Set("server.port", 8081)
	}
	if !k.Exists("server.rate_limit") {
		k.Set("server.rate_limit", 10.0)
	}
	if !k.Exists("server.rate_burst") {
		k.Set("server.rate_burst", 20)
	}
	if !k.Exists("storage.sqlite_path") {
		k.Set("storage.sqlite_path", "support_engine.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Watcher reloads the config file on change and hands the result to a
// callback. Environment overrides are re-applied on every reload.
type Watcher struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	current *Config
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, logger: logger}, nil
}

// Current returns the most recently loaded config, or nil before first load.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Load loads the config and records it as current.
func (w *Watcher) Load() (*Config, error) {
	cfg, err := LoadFile(w.path)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	return cfg, nil
}

// Watch watches the config file and calls onChange with each successfully
// reloaded config until ctx is done.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	w.logger.Info("watching config file for changes", slog.String("path", w.path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write != fsnotify.Write {
					continue
				}

				w.logger.Info("config file changed, reloading", slog.String("path", event.Name))
				cfg, err := w.Load()
				if err != nil {
					w.logger.Error("config reload failed",
						slog.String("path", w.path),
						slog.String("error", err.Error()))
					continue
				}
				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
