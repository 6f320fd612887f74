// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all agent configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Element    ElementConfig    `yaml:"element"`
	Collection CollectionConfig `yaml:"collection"`
	Collectors CollectorsConfig `yaml:"collectors"`
	Buffer     BufferConfig     `yaml:"buffer"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds ingestion API connection settings.
type ServerConfig struct {
	URL        string   `yaml:"url"`
	APIKey     string   `yaml:"api_key"`
	CheckURL   string   `yaml:"check_url"`
	Timeout    Duration `yaml:"timeout"`
	Retries    int      `yaml:"retries"`
	RetryDelay Duration `yaml:"retry_delay"`
	KillCodes  []int    `yaml:"kill_codes"`
	Compress   bool     `yaml:"compress"`
}

// PublisherConfig holds batching and backlog settings.
type PublisherConfig struct {
	BatchSize             int      `yaml:"batch_size"`
	MaxBacklogMultiplier  int      `yaml:"max_backlog_multiplier"`
	TrimBacklogMultiplier int      `yaml:"trim_backlog_multiplier"`
	SkewCheckInterval     Duration `yaml:"skew_check_interval"`
	MaxSkew               Duration `yaml:"max_skew"`
	WriteMetricFQNs       bool     `yaml:"write_metric_fqns"`
	MetricFQNsPath        string   `yaml:"metric_fqns_path"`
}

// ElementConfig describes the identity batches are reported under.
type ElementConfig struct {
	// ID defaults to the host name.
	ID        string   `yaml:"id"`
	Location  string   `yaml:"location"`
	Tags      []string `yaml:"tags"`
	Relations []string `yaml:"relations"`
	AWS       bool     `yaml:"aws"`
	Azure     bool     `yaml:"azure"`
	Docker    bool     `yaml:"docker"`
}

// CollectionConfig holds metric collection settings.
type CollectionConfig struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
	// StateTTL evicts counter state of paths not seen for this long.
	StateTTL Duration `yaml:"state_ttl"`
}

// CollectorsConfig enables and configures the built-in collectors.
type CollectorsConfig struct {
	Heartbeat    bool               `yaml:"heartbeat"`
	CPU          bool               `yaml:"cpu"`
	PerCore      bool               `yaml:"per_core"`
	Memory       bool               `yaml:"memory"`
	LoadAvg      bool               `yaml:"loadavg"`
	Uptime       bool               `yaml:"uptime"`
	Network      bool               `yaml:"network"`
	DiskUsage    bool               `yaml:"diskusage"`
	DiskSpace    bool               `yaml:"diskspace"`
	Docker       DockerConfig       `yaml:"docker"`
	Zookeeper    ZookeeperConfig    `yaml:"zookeeper"`
	PortCheck    PortCheckConfig    `yaml:"portcheck"`
	ProcessCheck ProcessCheckConfig `yaml:"processcheck"`
	DNSCheck     DNSCheckConfig     `yaml:"dnscheck"`
}

// DockerConfig configures container statistics.
type DockerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Minimal publishes only CPU and memory percentages per container.
	Minimal bool `yaml:"minimal"`
	Uptime  bool `yaml:"uptime"`
}

// ZookeeperConfig lists the ensemble members to query with "srvr".
type ZookeeperConfig struct {
	Enabled bool     `yaml:"enabled"`
	Servers []string `yaml:"servers"`
}

// PortCheckConfig maps a check name to a port.
type PortCheckConfig struct {
	Enabled bool              `yaml:"enabled"`
	TTL     Duration          `yaml:"ttl"`
	Ports   map[string]PortDef `yaml:"ports"`
}

// PortDef is one watched port.
type PortDef struct {
	Number uint32 `yaml:"number"`
	Proto  string `yaml:"proto"`
}

// ProcessCheckConfig maps a process group to its matchers.
type ProcessCheckConfig struct {
	Enabled   bool                  `yaml:"enabled"`
	TTL       Duration              `yaml:"ttl"`
	Processes map[string]ProcessDef `yaml:"processes"`
}

// ProcessDef holds regular expressions; a process matching any of them
// belongs to the group.
type ProcessDef struct {
	Exe     []string `yaml:"exe"`
	Name    []string `yaml:"name"`
	Cmdline []string `yaml:"cmdline"`
}

// DNSCheckConfig lists names that must resolve.
type DNSCheckConfig struct {
	Enabled  bool     `yaml:"enabled"`
	TTL      Duration `yaml:"ttl"`
	Names    []string `yaml:"names"`
	Resolver string   `yaml:"resolver"`
}

// BufferConfig holds the on-disk spill buffer settings.
type BufferConfig struct {
	MaxSizeMB int    `yaml:"max_size_mb"`
	Dir       string `yaml:"dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// TelemetryConfig controls the agent's own Prometheus metrics.
type TelemetryConfig struct {
	// Listen is the address of the /metrics endpoint; empty disables it.
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:        "https://api.app.netuitive.com/ingest/infrastructure",
			Timeout:    Duration{10 * time.Second},
			Retries:    2,
			RetryDelay: Duration{2 * time.Second},
			KillCodes:  []int{410, 418},
			Compress:   true,
		},
		Publisher: PublisherConfig{
			BatchSize:             100,
			MaxBacklogMultiplier:  5,
			TrimBacklogMultiplier: 4,
			SkewCheckInterval:     Duration{900 * time.Second},
			MaxSkew:               Duration{300 * time.Second},
			MetricFQNsPath:        "./metric_fqns.txt",
		},
		Collection: CollectionConfig{
			Interval: Duration{60 * time.Second},
			Timeout:  Duration{10 * time.Second},
			StateTTL: Duration{time.Hour},
		},
		Collectors: CollectorsConfig{
			Heartbeat: true,
			CPU:       true,
			Memory:    true,
			LoadAvg:   true,
			Uptime:    true,
			Network:   true,
			DiskUsage: true,
			DiskSpace: true,
			PortCheck: PortCheckConfig{TTL: Duration{150 * time.Second}},
			ProcessCheck: ProcessCheckConfig{
				TTL: Duration{150 * time.Second},
			},
			DNSCheck: DNSCheckConfig{TTL: Duration{150 * time.Second}},
		},
		Buffer: BufferConfig{
			MaxSizeMB: 50,
			Dir:       "./buffer",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take highest precedence and override values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// If path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return LoadFromBytes(nil)
	}

	return LoadFromBytes(data)
}

// CLIOverrides holds values from command-line flags.
// Empty strings are treated as "not set" and skipped.
type CLIOverrides struct {
	URL      string
	APIKey   string
	LogLevel string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if cli.URL != "" {
		cfg.Server.URL = cli.URL
	}
	if cli.APIKey != "" {
		cfg.Server.APIKey = cli.APIKey
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies DIAMOND_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("DIAMOND_SERVER_URL"); url != "" {
		cfg.Server.URL = url
	}
	if key := os.Getenv("DIAMOND_API_KEY"); key != "" {
		cfg.Server.APIKey = key
	}
	if level := os.Getenv("DIAMOND_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if id := os.Getenv("DIAMOND_ELEMENT_ID"); id != "" {
		cfg.Element.ID = id
	}
	if size := os.Getenv("DIAMOND_BATCH_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.Publisher.BatchSize = n
		}
	}
}

// Validate checks that the configuration is usable. All problems are
// reported together.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.URL == "" {
		result = multierror.Append(result, errors.New("server URL is required"))
	} else if !strings.HasPrefix(c.Server.URL, "https://") {
		// Allow localhost for development
		if !strings.Contains(c.Server.URL, "localhost") && !strings.Contains(c.Server.URL, "127.0.0.1") {
			result = multierror.Append(result, fmt.Errorf("server URL must use HTTPS (got: %s)", c.Server.URL))
		}
	}
	if c.Server.APIKey == "" {
		result = multierror.Append(result, errors.New("api key is required"))
	}
	if c.Server.Retries < 0 {
		result = multierror.Append(result, errors.New("server retries must not be negative"))
	}
	if c.Server.Timeout.Duration <= 0 {
		result = multierror.Append(result, errors.New("server timeout must be positive"))
	}

	p := c.Publisher
	if p.BatchSize <= 0 {
		result = multierror.Append(result, errors.New("publisher batch_size must be positive"))
	}
	if p.TrimBacklogMultiplier <= 0 {
		result = multierror.Append(result, errors.New("publisher trim_backlog_multiplier must be positive"))
	}
	if p.MaxBacklogMultiplier <= p.TrimBacklogMultiplier {
		result = multierror.Append(result, fmt.Errorf(
			"publisher max_backlog_multiplier (%d) must exceed trim_backlog_multiplier (%d)",
			p.MaxBacklogMultiplier, p.TrimBacklogMultiplier))
	}
	if p.WriteMetricFQNs && p.MetricFQNsPath == "" {
		result = multierror.Append(result, errors.New("publisher metric_fqns_path is required when write_metric_fqns is set"))
	}

	for _, tag := range c.Element.Tags {
		if !strings.Contains(tag, ":") {
			result = multierror.Append(result, fmt.Errorf("element tag %q must be name:value", tag))
		}
	}

	if c.Collection.Interval.Duration <= 0 {
		result = multierror.Append(result, errors.New("collection interval must be positive"))
	}

	return result.ErrorOrNil()
}
