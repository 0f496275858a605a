// Package config handles tabweave configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level tabweave configuration.
type Config struct {
	Page     PageConfig            `yaml:"page"`
	Browser  BrowserConfig         `yaml:"browser"`
	Roles    map[string]RoleConfig `yaml:"roles"`
	Debounce DebounceConfig        `yaml:"debounce"`
	Journal  JournalConfig         `yaml:"journal"`
	Status   StatusConfig          `yaml:"status"`
}

// PageConfig identifies the watch page to attach to.
type PageConfig struct {
	URL        string        `yaml:"url"`
	SettleWait time.Duration `yaml:"settle_wait"` // upper bound, post-relocation
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"` // ws:// devtools URL; empty launches
	Stealth         string        `yaml:"stealth"` // headless | headful
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	XvfbDisplay     string        `yaml:"xvfb_display"`
}

// RoleConfig maps a tracked role to its selectors and the extra attributes
// watched on it beyond the built-in allowlist.
type RoleConfig struct {
	Selectors  []string `yaml:"selectors"`
	Attributes []string `yaml:"attributes"`
}

// DebounceConfig controls mutation batching in the injected agent.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// JournalConfig controls the SQLite cycle journal.
type JournalConfig struct {
	Path   string `yaml:"path"` // empty disables
	Buffer int    `yaml:"buffer"`
}

// StatusConfig controls the localhost debug endpoint.
type StatusConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// trackedRoles are the roles the adapter always observes. Extra roles in
// the config are rejected rather than silently ignored.
var trackedRoles = []string{"chat", "comments", "playlist", "related", "description", "root"}

// defaultSelectors cover the stock watch page markup.
var defaultSelectors = map[string][]string{
	"chat":        {"#chat", "#chat-container ytd-live-chat-frame"},
	"comments":    {"#comments", "ytd-comments#comments"},
	"playlist":    {"#playlist", "ytd-playlist-panel-renderer#playlist"},
	"related":     {"#related", "ytd-watch-next-secondary-results-renderer"},
	"description": {"#description", "ytd-watch-metadata #description"},
	"root":        {"ytd-watch-flexy"},
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration usable without a file, attaching to url.
func Default(url string) *Config {
	cfg := &Config{Page: PageConfig{URL: url}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) validate() error {
	for role := range c.Roles {
		known := false
		for _, r := range trackedRoles {
			if role == r {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("config: unknown role %q", role)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Page.SettleWait <= 0 || c.Page.SettleWait > 300*time.Millisecond {
		c.Page.SettleWait = 300 * time.Millisecond
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 250 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 1000
	}
	if c.Journal.Buffer <= 0 {
		c.Journal.Buffer = 256
	}
	if c.Roles == nil {
		c.Roles = make(map[string]RoleConfig)
	}
	for _, role := range trackedRoles {
		rc := c.Roles[role]
		if len(rc.Selectors) == 0 {
			rc.Selectors = defaultSelectors[role]
		}
		c.Roles[role] = rc
	}
}
