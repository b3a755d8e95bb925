// Package config loads bakare's configuration with the same
// defaults-then-files-then-flags precedence and JSONC file format the CLI
// has always used: a global user config, an optional project config, and
// finally command-line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

// FileName is the project-local config file name, looked for in the
// current working directory.
const FileName = ".bakare.json"

var (
	// ErrConfigFileNotFound is returned when an explicitly named config
	// file (via --config) does not exist.
	ErrConfigFileNotFound = errors.New("config: file not found")
	// ErrInvalidConfig wraps any JSONC parse or validation failure,
	// naming the offending file.
	ErrInvalidConfig = errors.New("config: invalid config file")
	// ErrRepositoryRequired is returned when no repository path was
	// supplied by any configuration source.
	ErrRepositoryRequired = errors.New("config: repository path is required")
)

// Config holds every tunable the CLI exposes. json tags use snake_case to
// match the on-disk JSONC format.
type Config struct {
	Repository     string        `json:"repository,omitempty"`
	LockTimeout    time.Duration `json:"lock_timeout,omitempty"`
	SaveIndexEvery int           `json:"save_index_every,omitempty"`
	IndexSecretEnv string        `json:"index_secret_env,omitempty"`
	Compress       bool          `json:"compress,omitempty"`
	ScanCache      bool          `json:"scan_cache,omitempty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		LockTimeout:    8192 * time.Millisecond,
		SaveIndexEvery: 16,
	}
}

// Sources records which files, if any, contributed to a loaded Config.
type Sources struct {
	Global  string
	Project string
}

// Load resolves a Config following defaults -> global user config ->
// project config (or an explicit --config path) -> cliOverrides, in that
// order of increasing precedence.
func Load(workDir, explicitConfigPath string, cliOverrides Config, env []string) (Config, Sources, error) {
	cfg := Default()

	var sources Sources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = merge(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, explicitConfigPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = merge(cfg, projectCfg)

	cfg = merge(cfg, cliOverrides)

	if cfg.Repository == "" {
		return Config{}, Sources{}, ErrRepositoryRequired
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, explicitConfigPath string) (Config, string, error) {
	path := filepath.Join(workDir, FileName)
	mustExist := false

	if explicitConfigPath != "" {
		path = explicitConfigPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		mustExist = true
	}

	cfg, loaded, err := loadConfigFile(path, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-controlled by design
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w %s: %w", ErrInvalidConfig, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrInvalidConfig, path, err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrInvalidConfig, path, err)
	}

	return cfg, true, nil
}

func globalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "bakare", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bakare", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "bakare", "config.json")
}

func merge(base, overlay Config) Config {
	if overlay.Repository != "" {
		base.Repository = overlay.Repository
	}

	if overlay.LockTimeout != 0 {
		base.LockTimeout = overlay.LockTimeout
	}

	if overlay.SaveIndexEvery != 0 {
		base.SaveIndexEvery = overlay.SaveIndexEvery
	}

	if overlay.IndexSecretEnv != "" {
		base.IndexSecretEnv = overlay.IndexSecretEnv
	}

	if overlay.Compress {
		base.Compress = true
	}

	if overlay.ScanCache {
		base.ScanCache = true
	}

	return base
}

// IndexSecret resolves the configured environment variable (if any) to
// its value, returning nil when no secret is configured — the default,
// unencrypted index.
func (c Config) IndexSecret(env []string) []byte {
	if c.IndexSecretEnv == "" {
		return nil
	}

	prefix := c.IndexSecretEnv + "="

	for _, e := range env {
		if after, ok := strings.CutPrefix(e, prefix); ok {
			return []byte(after)
		}
	}

	return nil
}

// Format renders cfg as indented JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("config: formatting: %w", err)
	}

	return string(data), nil
}
