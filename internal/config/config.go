// Package config loads foldsyncd's YAML configuration, merging it over a
// set of defaults with dario.cat/mergo. Grounded on cmd/common/config.go's
// LoadConfig (read YAML, unmarshal over defaults, merge, fall back to
// defaults on any error) generalized from onedriver's single CacheDir/auth
// config to foldsyncd's drive/janitor/network settings.
package config

import (
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/foldsync/core/internal/logging"
)

var log = logging.For("config")

// Config is foldsyncd's top-level configuration.
type Config struct {
	DataDir         string        `yaml:"dataDir"`
	LogLevel        string        `yaml:"log"`
	LogPretty       bool          `yaml:"logPretty"`
	JanitorInterval time.Duration `yaml:"janitorInterval"`
	RateLimits      RateLimits    `yaml:"rateLimits"`
}

// RateLimits lets an operator override the ratelimit presets per operation.
type RateLimits struct {
	InviteGenerationPerMinute float64 `yaml:"inviteGenerationPerMinute"`
	FileUploadPerMinute       float64 `yaml:"fileUploadPerMinute"`
	FileDownloadPerMinute     float64 `yaml:"fileDownloadPerMinute"`
	DriveCreationPerMinute    float64 `yaml:"driveCreationPerMinute"`
	GeneralPerMinute          float64 `yaml:"generalPerMinute"`
}

// DefaultConfigPath returns the default config location for foldsyncd.
func DefaultConfigPath() string {
	confDir, err := os.UserConfigDir()
	if err != nil {
		log.Error().Err(err).Msg("could not determine configuration directory")
	}
	return filepath.Join(confDir, "foldsyncd/config.yml")
}

func defaults() Config {
	dataDir, _ := os.UserCacheDir()
	return Config{
		DataDir:         filepath.Join(dataDir, "foldsyncd"),
		LogLevel:        "info",
		LogPretty:       false,
		JanitorInterval: 5 * time.Minute,
		RateLimits: RateLimits{
			InviteGenerationPerMinute: 10,
			FileUploadPerMinute:       100,
			FileDownloadPerMinute:     200,
			DriveCreationPerMinute:    5,
			GeneralPerMinute:          1000,
		},
	}
}

// Load reads path, merging it over the built-in defaults. A missing or
// unparsable file logs and falls back to defaults, matching the teacher's
// "never fail startup over a bad config" behavior.
func Load(path string) Config {
	def := defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("configuration file not found, using defaults")
		return def
	}

	cfg := Config{}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		log.Error().Err(err).Str("path", path).Msg("could not parse configuration file, using defaults")
		return def
	}
	if err := mergo.Merge(&cfg, def); err != nil {
		log.Error().Err(err).Str("path", path).Msg("could not merge configuration with defaults")
	}
	return cfg
}

// Write persists c to path as YAML.
func (c Config) Write(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		log.Error().Err(err).Msg("could not marshal config")
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		log.Error().Err(err).Msg("could not write config to disk")
		return err
	}
	return nil
}
