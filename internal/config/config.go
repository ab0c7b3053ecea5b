// Package config loads tool configuration from an optional YAML file with
// environment-variable overrides. All values are injected explicitly into the
// components that need them; nothing reads the environment after startup.
package config

import (
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "SKUBUNDLER_CONFIG"
	driveAPIKeyEnv = "DRIVE_API_KEY"

	defaultFlatConcurrency  = 16
	defaultDriveConcurrency = 8
)

// Config holds all settings required across the tool.
type Config struct {
	Drive       DriveConfig   `yaml:"drive"`
	Fetch       FetchConfig   `yaml:"fetch"`
	Concurrency Concurrency   `yaml:"concurrency"`
	Upload      UploadConfig  `yaml:"upload"`
	Archive     ArchiveConfig `yaml:"archive"`
}

// DriveConfig describes access to the Drive listing API.
type DriveConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
}

// FetchConfig lists the proxy endpoints used by the fallback chain.
// Each value is a URL prefix the target reference is appended to.
type FetchConfig struct {
	CDNProxy  string `yaml:"cdnProxy"`
	CORSRelay string `yaml:"corsRelay"`
	RawRelay  string `yaml:"rawRelay"`
}

// Concurrency sets worker counts per source kind. Drive crawling uses a
// lower default to stay under the listing API's rate limits.
type Concurrency struct {
	Flat  int `yaml:"flat"`
	Drive int `yaml:"drive"`
}

// UploadConfig describes the optional S3 delivery target.
type UploadConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// ArchiveConfig controls the output package.
type ArchiveConfig struct {
	ReportName string `yaml:"reportName"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Cannot read config file, using defaults")
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Cannot parse config file, using defaults")
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	cfg.fillDefaults()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(driveAPIKeyEnv); v != "" {
		c.Drive.APIKey = v
	}
}

func (c *Config) fillDefaults() {
	def := defaultConfig()
	if c.Drive.BaseURL == "" {
		c.Drive.BaseURL = def.Drive.BaseURL
	}
	if c.Fetch.CDNProxy == "" {
		c.Fetch.CDNProxy = def.Fetch.CDNProxy
	}
	if c.Fetch.CORSRelay == "" {
		c.Fetch.CORSRelay = def.Fetch.CORSRelay
	}
	if c.Fetch.RawRelay == "" {
		c.Fetch.RawRelay = def.Fetch.RawRelay
	}
	if c.Concurrency.Flat <= 0 {
		c.Concurrency.Flat = def.Concurrency.Flat
	}
	if c.Concurrency.Drive <= 0 {
		c.Concurrency.Drive = def.Concurrency.Drive
	}
	if c.Archive.ReportName == "" {
		c.Archive.ReportName = def.Archive.ReportName
	}
}

func defaultConfig() Config {
	return Config{
		Drive: DriveConfig{
			BaseURL: "https://www.googleapis.com/drive/v3",
		},
		Fetch: FetchConfig{
			CDNProxy:  "https://images.weserv.nl/?url=",
			CORSRelay: "https://api.allorigins.win/raw?url=",
			RawRelay:  "https://corsproxy.io/?",
		},
		Concurrency: Concurrency{
			Flat:  defaultFlatConcurrency,
			Drive: defaultDriveConcurrency,
		},
		Archive: ArchiveConfig{
			ReportName: "download_report.csv",
		},
	}
}
