// =============================================================================
// FILE: internal/config/config.go
// PURPOSE: Core configuration management. Loads AppConfig from a JSON file,
//          merging with defaults, and validates every field named in the
//          configuration contract before the orchestrator starts.
// =============================================================================

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"harmonydl/internal/hdm/model"
)

// ---------------------------------------------------------------------------
// AppConfig
// ---------------------------------------------------------------------------

// RemoteConfig configures the Remote Transfer Client's HTTP transport.
type RemoteConfig struct {
	BaseURL       string  `json:"base_url"`
	APIKey        string  `json:"api_key,omitempty"`
	TimeoutMS     int     `json:"timeout_ms"`
	MaxAttempts   int     `json:"max_attempts"`
	BackoffBaseMS int     `json:"backoff_base_ms"`
	JitterPct     float64 `json:"jitter_pct"`
}

// AppConfig is the full, validated configuration for an orchestrator
// instance.
type AppConfig struct {
	WorkerConcurrency int     `json:"worker_concurrency"`
	MaxRetries        int     `json:"max_retries"`
	BatchMaxItems     int     `json:"batch_max_items"`
	RetryBaseSeconds  float64 `json:"retry_base_seconds"`
	RetryJitterPct    float64 `json:"retry_jitter_pct"`
	SizeStableSeconds int     `json:"size_stable_seconds"`
	PollIntervalSec   float64 `json:"poll_interval"`
	MoveTemplate      string  `json:"move_template"`

	DownloadsDir string `json:"downloads_dir"`
	MusicDir     string `json:"music_dir"`
	StateDir     string `json:"state_dir"`

	Remote RemoteConfig `json:"remote"`

	LogLevel string `json:"log_level"`
	LogDir   string `json:"log_dir"`
}

// DefaultConfig returns the baseline configuration with every spec.md §6
// default applied.
func DefaultConfig() AppConfig {
	return AppConfig{
		WorkerConcurrency: 4,
		MaxRetries:        3,
		BatchMaxItems:     100,
		RetryBaseSeconds:  0.5,
		RetryJitterPct:    0.2,
		SizeStableSeconds: 3,
		PollIntervalSec:   0.5,
		MoveTemplate:      "{artist}/{album}/{artist} - {title}.{extension}",

		DownloadsDir: "./downloads",
		MusicDir:     "./music",
		StateDir:     "", // derived from DownloadsDir/.harmony when empty

		Remote: RemoteConfig{
			BaseURL:       "http://localhost:5030",
			TimeoutMS:     10_000,
			MaxAttempts:   3,
			BackoffBaseMS: 250,
			JitterPct:     0.2,
		},

		LogLevel: "INFO",
	}
}

// StateDirOrDefault returns the configured StateDir, or
// "<downloads_dir>/.harmony" when unset, per spec.md §6.
func (c *AppConfig) StateDirOrDefault() string {
	if c.StateDir != "" {
		return c.StateDir
	}
	return filepath.Join(c.DownloadsDir, ".harmony")
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

var (
	globalMu     sync.RWMutex
	globalConfig *AppConfig
)

// Load reads a JSON config file at path, merging its values over
// DefaultConfig(), validates the result, and returns it. Passing an empty
// path returns validated defaults. A missing file is not an error; a
// malformed one is.
func Load(path string) (*AppConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetGlobal installs cfg as the process-wide default, retrievable via Get.
func SetGlobal(cfg *AppConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

// Get returns the process-wide configuration, or validated defaults if
// SetGlobal has not been called.
func Get() *AppConfig {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalConfig == nil {
		cfg := DefaultConfig()
		return &cfg
	}
	return globalConfig
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// allowedTemplatePlaceholders is the fixed set of tokens the move_template
// may reference; anything else is a fatal ConfigError.
var allowedTemplatePlaceholders = []string{
	"{artist}", "{album}", "{title}", "{dedupe_key}", "{batch_id}", "{item_id}", "{extension}",
}

// Validate enforces every numeric/path/template bound in spec.md §6 and §7,
// returning a *model.ConfigError on the first violation.
func Validate(c *AppConfig) error {
	if c.WorkerConcurrency <= 0 {
		return &model.ConfigError{Reason: "worker_concurrency must be > 0"}
	}
	if c.MaxRetries <= 0 {
		return &model.ConfigError{Reason: "max_retries must be > 0"}
	}
	if c.BatchMaxItems <= 0 {
		return &model.ConfigError{Reason: "batch_max_items must be > 0"}
	}
	if c.RetryBaseSeconds <= 0 {
		return &model.ConfigError{Reason: "retry_base_seconds must be > 0"}
	}
	if c.RetryJitterPct < 0 {
		return &model.ConfigError{Reason: "retry_jitter_pct must be >= 0"}
	}
	if c.SizeStableSeconds < 1 {
		return &model.ConfigError{Reason: "size_stable_seconds must be >= 1"}
	}
	if c.PollIntervalSec < 0.25 {
		return &model.ConfigError{Reason: "poll_interval must be >= 0.25"}
	}
	if c.DownloadsDir == "" || c.MusicDir == "" {
		return &model.ConfigError{Reason: "downloads_dir and music_dir must be set"}
	}
	if c.Remote.BaseURL == "" {
		return &model.ConfigError{Reason: "remote.base_url must be set"}
	}
	if c.Remote.MaxAttempts <= 0 {
		return &model.ConfigError{Reason: "remote.max_attempts must be > 0"}
	}
	if err := validateTemplate(c.MoveTemplate); err != nil {
		return err
	}
	return nil
}

// validateTemplate scans tpl for "{...}" tokens and rejects any token not in
// allowedTemplatePlaceholders.
func validateTemplate(tpl string) error {
	i := 0
	for i < len(tpl) {
		open := strings.IndexByte(tpl[i:], '{')
		if open < 0 {
			break
		}
		open += i
		close := strings.IndexByte(tpl[open:], '}')
		if close < 0 {
			return &model.ConfigError{Reason: fmt.Sprintf("move_template has unterminated placeholder at %d", open)}
		}
		close += open
		token := tpl[open : close+1]
		if !slices.Contains(allowedTemplatePlaceholders, token) {
			return &model.ConfigError{Reason: fmt.Sprintf("move_template has unknown placeholder %q", token)}
		}
		i = close + 1
	}
	return nil
}
