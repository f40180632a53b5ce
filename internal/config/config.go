// Package config loads and validates dbsunset settings from file,
// environment and defaults via viper. Field tags use mapstructure for
// viper unmarshalling.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the top-level configuration struct for dbsunset.
type Config struct {
	Manifest  string          `mapstructure:"manifest"`
	Servers   ServersConfig   `mapstructure:"servers"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Agentic   AgenticConfig   `mapstructure:"agentic"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Slack     SlackConfig     `mapstructure:"slack"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Serve     ServeConfig     `mapstructure:"serve"`
}

// ServersConfig maps the workflow's capability roles onto server names from
// the MCP manifest.
type ServersConfig struct {
	SourceControl string `mapstructure:"source_control"`
	PackGrep      string `mapstructure:"pack_grep"`
	Chat          string `mapstructure:"chat"`
	Filesystem    string `mapstructure:"filesystem"`
}

// DiscoveryConfig holds pattern-discovery knobs.
type DiscoveryConfig struct {
	IncludePatterns []string `mapstructure:"include_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
	RepoWorkers     int      `mapstructure:"repo_workers"`
}

// AgenticConfig holds LLM batch processor knobs.
type AgenticConfig struct {
	BatchSize int    `mapstructure:"batch_size"`
	Workers   int    `mapstructure:"workers"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
}

// PipelineConfig holds step engine knobs. StepTimeout is a Go duration
// string.
type PipelineConfig struct {
	MaxParallelSteps int    `mapstructure:"max_parallel_steps"`
	StepTimeout      string `mapstructure:"step_timeout"`
	RetryCount       int    `mapstructure:"retry_count"`
	StopOnError      bool   `mapstructure:"stop_on_error"`
}

// SlackConfig holds chat notification settings.
type SlackConfig struct {
	Channel string `mapstructure:"channel"`
}

// SnapshotConfig holds workflow log snapshot settings.
type SnapshotConfig struct {
	Dir      string `mapstructure:"dir"`
	Compress bool   `mapstructure:"compress"`
}

// ServeConfig holds dashboard server settings.
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults applied by the loader. Zero values in a loaded Config mean the
// consumer's built-in default applies.
const (
	DefaultManifest = "mcp_servers.json"

	DefaultSourceControlServer = "github"
	DefaultPackGrepServer      = "repopack"
	DefaultChatServer          = "slack"
	DefaultFilesystemServer    = "filesystem"

	DefaultRepoWorkers = 3

	DefaultBatchSize      = 3
	DefaultAgenticWorkers = 3

	DefaultMaxParallelSteps = 4
	DefaultStepTimeout      = "5m"
	DefaultRetryCount       = 2

	DefaultServeAddr = ":8080"
)

// Validation errors.
var (
	ErrInvalidRepoWorkers      = errors.New("config: discovery.repo_workers must not be negative")
	ErrInvalidBatchSize        = errors.New("config: agentic.batch_size must not be negative")
	ErrInvalidAgenticWorkers   = errors.New("config: agentic.workers must not be negative")
	ErrInvalidMaxParallelSteps = errors.New("config: pipeline.max_parallel_steps must not be negative")
	ErrInvalidRetryCount       = errors.New("config: pipeline.retry_count must not be negative")
	ErrInvalidStepTimeout      = errors.New("config: pipeline.step_timeout is not a duration")
)

// Validate checks value ranges. Zero values mean "use the default" and pass.
func (c *Config) Validate() error {
	if c.Discovery.RepoWorkers < 0 {
		return ErrInvalidRepoWorkers
	}

	if c.Agentic.BatchSize < 0 {
		return ErrInvalidBatchSize
	}

	if c.Agentic.Workers < 0 {
		return ErrInvalidAgenticWorkers
	}

	if c.Pipeline.MaxParallelSteps < 0 {
		return ErrInvalidMaxParallelSteps
	}

	if c.Pipeline.RetryCount < 0 {
		return ErrInvalidRetryCount
	}

	if c.Pipeline.StepTimeout != "" {
		if _, err := time.ParseDuration(c.Pipeline.StepTimeout); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidStepTimeout, c.Pipeline.StepTimeout)
		}
	}

	return nil
}

// StepTimeoutDuration parses the configured step timeout, zero when unset.
// Validate has already rejected malformed values.
func (c *Config) StepTimeoutDuration() time.Duration {
	if c.Pipeline.StepTimeout == "" {
		return 0
	}

	parsed, err := time.ParseDuration(c.Pipeline.StepTimeout)
	if err != nil {
		return 0
	}

	return parsed
}
