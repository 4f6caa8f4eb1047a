// Package config loads the YAML configuration file and resolves the
// per-OS config and cache directories, with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// Config is the parsed config.yml. All keys are optional.
type Config struct {
	GitHub struct {
		Token string `yaml:"token"`
	} `yaml:"github"`

	HF struct {
		Token string `yaml:"token"`
	} `yaml:"hf"`

	Models struct {
		Embed  string `yaml:"embed"`
		Query  string `yaml:"query"`
		Rerank string `yaml:"rerank"`
	} `yaml:"models"`

	Search struct {
		StrongScore float64 `yaml:"strongScore"`
		StrongGap   float64 `yaml:"strongGap"`
	} `yaml:"search"`

	Proxy struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"proxy"`

	Headless struct {
		Enabled    *bool  `yaml:"enabled"`
		ChromePath string `yaml:"chromePath"`
		Proxy      string `yaml:"proxy"`
		Timeout    int    `yaml:"timeout"`
	} `yaml:"headless"`

	Crawl struct {
		Concurrency         int  `yaml:"concurrency"`
		MinBodyChars        int  `yaml:"minBodyChars"`
		RequireCodeSnippets bool `yaml:"requireCodeSnippets"`
	} `yaml:"crawl"`

	Ingest struct {
		MaxMajorVersions int `yaml:"maxMajorVersions"`
	} `yaml:"ingest"`
}

// HeadlessEnabled reports the headless setting, defaulting to on.
func (c *Config) HeadlessEnabled() bool {
	return c.Headless.Enabled == nil || *c.Headless.Enabled
}

// Load reads config.yml from the config directory. A missing file
// yields a zero config apart from the environment token override.
func Load(configDir string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(filepath.Join(configDir, "config.yml"))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config.yml: %w", err)
		}
	}

	// Environment wins over the file for the token.
	if token := os.Getenv("LIBRARIAN_GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
	return &cfg, nil
}
