// Package config provides YAML-based configuration loading for buildyard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level buildyard configuration, loaded from buildyard.yaml.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Queue        QueueConfig        `yaml:"queue"`
	VCS          VCSConfig          `yaml:"vcs"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Reconcile    ReconcileConfig    `yaml:"reconcile"`
	Notify       NotifyConfig       `yaml:"notify"`
	Log          LogConfig          `yaml:"log"`
	HTTP         HTTPConfig         `yaml:"http"`
	Repositories []RepositoryConfig `yaml:"repositories"`
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// QueueConfig selects where dispatched tasks are published.
type QueueConfig struct {
	Driver        string `yaml:"driver"` // redis or memory
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	StreamPrefix  string `yaml:"stream_prefix"`
}

// VCSConfig controls how references are looked up in version control.
type VCSConfig struct {
	CacheDir     string        `yaml:"cache_dir"`
	Fetch        bool          `yaml:"fetch"`
	GitHubToken  string        `yaml:"github_token"`
	GitHubAPIURL string        `yaml:"github_api_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DispatchConfig tunes build fan-out.
type DispatchConfig struct {
	// GreenAncestor rebases patch builds onto the newest known-green revision.
	GreenAncestor bool `yaml:"green_ancestor"`
}

// ReconcileConfig controls the sweep that re-dispatches committed but
// undispatched builds.
type ReconcileConfig struct {
	Schedule string        `yaml:"schedule"`
	Grace    time.Duration `yaml:"grace"`
	Limit    int           `yaml:"limit"`
}

// NotifyConfig holds chat destinations for operational alerts.
type NotifyConfig struct {
	Slack   ChatConfig `yaml:"slack"`
	Discord ChatConfig `yaml:"discord"`
}

// ChatConfig is a bot token and the channel alerts are posted to.
type ChatConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Enabled reports whether both token and channel are set.
func (c ChatConfig) Enabled() bool {
	return c.BotToken != "" && c.ChannelID != ""
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// HTTPConfig holds settings for the build API server.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// RepositoryConfig declares a repository and the projects that build from it.
type RepositoryConfig struct {
	URL       string          `yaml:"url"`
	Backend   string          `yaml:"backend"`
	Callsigns []string        `yaml:"callsigns"`
	Projects  []ProjectConfig `yaml:"projects"`
}

// ProjectConfig declares a project, its file whitelist and its plans.
type ProjectConfig struct {
	Slug          string       `yaml:"slug"`
	FileWhitelist []string     `yaml:"file_whitelist"`
	Plans         []PlanConfig `yaml:"plans"`
}

// PlanConfig declares a build plan. Config is stored verbatim as the plan's
// JSON data and snapshotted into every job created from it.
type PlanConfig struct {
	Label    string                 `yaml:"label"`
	Inactive bool                   `yaml:"inactive"`
	Config   map[string]interface{} `yaml:"config"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "buildyard.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "buildyard"
		}
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "redis"
	}
	if c.Queue.RedisAddr == "" {
		c.Queue.RedisAddr = "127.0.0.1:6379"
	}
	if c.Queue.StreamPrefix == "" {
		c.Queue.StreamPrefix = "buildyard:tasks"
	}
	if c.VCS.CacheDir == "" {
		c.VCS.CacheDir = ".buildyard/repos"
	}
	if c.VCS.Timeout == 0 {
		c.VCS.Timeout = 30 * time.Second
	}
	if c.Reconcile.Schedule == "" {
		c.Reconcile.Schedule = "*/5 * * * *"
	}
	if c.Reconcile.Grace == 0 {
		c.Reconcile.Grace = 2 * time.Minute
	}
	if c.Reconcile.Limit == 0 {
		c.Reconcile.Limit = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	for i := range c.Repositories {
		if c.Repositories[i].Backend == "" {
			c.Repositories[i].Backend = "git"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	switch c.Queue.Driver {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Sprintf("queue.driver %q must be redis or memory", c.Queue.Driver))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("reconcile.schedule %q: %v", c.Reconcile.Schedule, err))
	}

	seenSlugs := make(map[string]bool)
	for i, r := range c.Repositories {
		if r.URL == "" {
			errs = append(errs, fmt.Sprintf("repositories[%d].url is required", i))
		}
		if r.Backend != "git" && r.Backend != "github" {
			errs = append(errs, fmt.Sprintf("repositories[%d].backend %q must be git or github", i, r.Backend))
		}
		for j, p := range r.Projects {
			if p.Slug == "" {
				errs = append(errs, fmt.Sprintf("repositories[%d].projects[%d].slug is required", i, j))
			} else if seenSlugs[p.Slug] {
				errs = append(errs, fmt.Sprintf("repositories[%d].projects[%d].slug %q is duplicated", i, j, p.Slug))
			}
			seenSlugs[p.Slug] = true
			for k, pl := range p.Plans {
				if pl.Label == "" {
					errs = append(errs, fmt.Sprintf("repositories[%d].projects[%d].plans[%d].label is required", i, j, k))
				}
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
