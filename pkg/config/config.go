package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/visreg/pkg/types"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of one visreg run. It is assembled
// once (defaults, then YAML file, then environment, then CLI flags) and
// validated before any browser session is opened.
type Config struct {
	// Required
	ScreenSize string `yaml:"screen_size" json:"screen_size"`
	IsBaseline *bool  `yaml:"is_baseline" json:"is_baseline"`

	// Capability matrix
	Browsers       []string            `yaml:"browsers" json:"browsers"`
	BrowserVersion string              `yaml:"browser_version" json:"browser_version"`
	Platforms      map[string]string   `yaml:"platforms" json:"platforms"` // engine -> farm platform label
	Viewports      map[string]Viewport `yaml:"viewports" json:"viewports"`
	Build          string              `yaml:"build" json:"build"`
	ProjectName    string              `yaml:"project_name" json:"project_name"` // empty derives <browser>_<screen>
	GithubURL      string              `yaml:"github_url" json:"github_url"`
	ClientVersion  string              `yaml:"playwright_client_version" json:"playwright_client_version"`
	Features       Features            `yaml:"features" json:"features"`
	Credentials    Credentials         `yaml:"-" json:"-"`

	// Farm and site
	Endpoint        string  `yaml:"endpoint" json:"endpoint"`
	BaseURL         string  `yaml:"base_url" json:"base_url"`
	SessionOpenRate float64 `yaml:"session_open_rate" json:"session_open_rate"` // sessions per second, 0 = unlimited

	// Page catalog
	Pages   []string `yaml:"pages" json:"pages"`
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`

	// PageMode is "sequential" or "concurrent".
	PageMode           string `yaml:"page_mode" json:"page_mode"`
	MaxConcurrentPages int    `yaml:"max_concurrent_pages" json:"max_concurrent_pages"`

	Stabilize  StabilizeConfig  `yaml:"stabilize" json:"stabilize"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`
	Artifacts  ArtifactConfig   `yaml:"artifacts" json:"artifacts"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`

	// Timeout bounds the whole run; 0 leaves only the farm's own session timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Viewport is a named browser window size.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Credentials authenticate against the browser farm.
type Credentials struct {
	User      string
	AccessKey string
}

// Features are farm-side capture toggles attached to every session.
type Features struct {
	Network bool `yaml:"network" json:"network"`
	Video   bool `yaml:"video" json:"video"`
	Console bool `yaml:"console" json:"console"`
}

// StabilizeConfig tunes pre-capture normalization.
type StabilizeConfig struct {
	OverlaySelector  string        `yaml:"overlay_selector" json:"overlay_selector"`
	OverlayTimeout   time.Duration `yaml:"overlay_timeout" json:"overlay_timeout"`
	ForceLazyLoad    bool          `yaml:"force_lazy_load" json:"force_lazy_load"`
	ScrollStep       int           `yaml:"scroll_step" json:"scroll_step"`
	ScrollDelay      time.Duration `yaml:"scroll_delay" json:"scroll_delay"`
	SettleMaxRetries int           `yaml:"settle_max_retries" json:"settle_max_retries"`
}

// CheckpointConfig tunes screenshot naming and status polling.
type CheckpointConfig struct {
	ScreenshotPrefix string        `yaml:"screenshot_prefix" json:"screenshot_prefix"`
	MaxPolls         int           `yaml:"max_polls" json:"max_polls"`
	InitialInterval  time.Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval      time.Duration `yaml:"max_interval" json:"max_interval"`
}

// ArtifactConfig defines where screenshots and reports are written
type ArtifactConfig struct {
	ScreenshotDir string   `yaml:"screenshot_dir" json:"screenshot_dir"`
	ReportDir     string   `yaml:"report_dir" json:"report_dir"`
	S3            S3Config `yaml:"s3" json:"s3"`
}

// S3Config enables mirroring screenshots to an S3-compatible bucket when Endpoint is set.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
	AccessKey string `yaml:"-" json:"-"`
	SecretKey string `yaml:"-" json:"-"`
}

// MetricsConfig enables pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url"`
	Job            string `yaml:"job" json:"job"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
	// File additionally writes a per-run log under ~/.visreg/logs
	File bool `yaml:"file" json:"file"`
}

// Page loop modes.
const (
	PageModeSequential = "sequential"
	PageModeConcurrent = "concurrent"
)

// DefaultConfig returns the configuration the production site runs with.
// ScreenSize and IsBaseline are deliberately left unset: they must come from
// the caller.
func DefaultConfig() *Config {
	return &Config{
		Browsers:       []string{"chromium"},
		BrowserVersion: "latest",
		Platforms: map[string]string{
			"chromium": "Windows 10",
			"firefox":  "Windows 10",
			"webkit":   "MacOS Ventura",
		},
		Viewports: map[string]Viewport{
			"mobile":  {Width: 390, Height: 844},
			"desktop": {Width: 1920, Height: 1080},
		},
		Build:         "Playwright SmartUI",
		ClientVersion: "1.52.0",
		Features:      Features{Network: true, Video: true, Console: true},
		Endpoint:      "wss://cdp.lambdatest.com/playwright",
		BaseURL:       "https://erbis.com",
		PageMode:      PageModeSequential,
		Stabilize: StabilizeConfig{
			OverlaySelector:  ".widget-visible",
			OverlayTimeout:   10 * time.Second,
			ForceLazyLoad:    true,
			ScrollStep:       100,
			ScrollDelay:      20 * time.Millisecond,
			SettleMaxRetries: 6,
		},
		Checkpoint: CheckpointConfig{
			ScreenshotPrefix: "erbis",
			MaxPolls:         8,
			InitialInterval:  time.Second,
			MaxInterval:      10 * time.Second,
		},
		Artifacts: ArtifactConfig{
			ScreenshotDir: "./screenshots",
			ReportDir:     "./visreg-report",
		},
		Metrics: MetricsConfig{Job: "visreg"},
		Logging: LoggingConfig{Verbosity: "normal"},
	}
}

// Validate checks the configuration. Every error it returns is a
// configuration error and must stop the run before orchestration.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return types.Wrap(types.KindConfiguration, "validate", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.ScreenSize == "" {
		return fmt.Errorf("screen size is required (one of %s)", strings.Join(c.ViewportNames(), ", "))
	}
	if c.IsBaseline == nil {
		return fmt.Errorf("is_baseline is required")
	}
	if len(c.Browsers) == 0 {
		return fmt.Errorf("at least one browser engine is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("farm endpoint is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}

	switch c.PageMode {
	case PageModeSequential, PageModeConcurrent:
	default:
		return fmt.Errorf("invalid page mode: %s (must be '%s' or '%s')", c.PageMode, PageModeSequential, PageModeConcurrent)
	}

	if c.MaxConcurrentPages < 0 {
		return fmt.Errorf("max_concurrent_pages cannot be negative")
	}
	if c.SessionOpenRate < 0 {
		return fmt.Errorf("session_open_rate cannot be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if c.Stabilize.OverlayTimeout < 0 || c.Stabilize.ScrollDelay < 0 {
		return fmt.Errorf("stabilize durations cannot be negative")
	}
	if c.Stabilize.ForceLazyLoad && c.Stabilize.ScrollStep <= 0 {
		return fmt.Errorf("stabilize.scroll_step must be positive when force_lazy_load is enabled")
	}
	if c.Checkpoint.MaxPolls <= 0 {
		return fmt.Errorf("checkpoint.max_polls must be positive")
	}
	if c.Checkpoint.InitialInterval <= 0 || c.Checkpoint.MaxInterval < c.Checkpoint.InitialInterval {
		return fmt.Errorf("checkpoint intervals must be positive with max_interval >= initial_interval")
	}
	if c.Artifacts.ScreenshotDir == "" {
		return fmt.Errorf("artifacts.screenshot_dir is required")
	}
	if c.Artifacts.S3.Endpoint != "" && c.Artifacts.S3.Bucket == "" {
		return fmt.Errorf("artifacts.s3.bucket is required when an s3 endpoint is set")
	}

	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

// Baseline returns the baseline flag, false when unset.
func (c *Config) Baseline() bool {
	return c.IsBaseline != nil && *c.IsBaseline
}

// ViewportNames returns the known viewport names, sorted.
func (c *Config) ViewportNames() []string {
	names := make([]string, 0, len(c.Viewports))
	for name := range c.Viewports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Wrap(types.KindConfiguration, "load", fmt.Errorf("failed to read config file: %w", err))
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return types.Wrap(types.KindConfiguration, "load", fmt.Errorf("failed to parse config file: %w", err))
	}
	return nil
}

type envOverlay struct {
	User      string `envconfig:"LT_USERNAME"`
	AccessKey string `envconfig:"LT_ACCESS_KEY"`
	GithubURL string `envconfig:"GITHUB_URL"`
	Endpoint  string `envconfig:"VISREG_ENDPOINT"`
	BaseURL   string `envconfig:"VISREG_BASE_URL"`

	PushgatewayURL string `envconfig:"VISREG_PUSHGATEWAY_URL"`

	S3Endpoint  string `envconfig:"VISREG_S3_ENDPOINT"`
	S3Bucket    string `envconfig:"VISREG_S3_BUCKET"`
	S3Region    string `envconfig:"VISREG_S3_REGION"`
	S3UseSSL    bool   `envconfig:"VISREG_S3_USE_SSL"`
	S3AccessKey string `envconfig:"VISREG_S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"VISREG_S3_SECRET_KEY"`
}

// LoadEnv overlays environment variables onto c. Credentials only ever come
// from the environment; the other variables override the file when set.
func (c *Config) LoadEnv() error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return types.Wrap(types.KindConfiguration, "env", err)
	}

	c.Credentials = Credentials{User: env.User, AccessKey: env.AccessKey}
	setIfNotEmpty(&c.GithubURL, env.GithubURL)
	setIfNotEmpty(&c.Endpoint, env.Endpoint)
	setIfNotEmpty(&c.BaseURL, env.BaseURL)
	setIfNotEmpty(&c.Metrics.PushgatewayURL, env.PushgatewayURL)
	setIfNotEmpty(&c.Artifacts.S3.Endpoint, env.S3Endpoint)
	setIfNotEmpty(&c.Artifacts.S3.Bucket, env.S3Bucket)
	setIfNotEmpty(&c.Artifacts.S3.Region, env.S3Region)
	c.Artifacts.S3.UseSSL = c.Artifacts.S3.UseSSL || env.S3UseSSL
	c.Artifacts.S3.AccessKey = env.S3AccessKey
	c.Artifacts.S3.SecretKey = env.S3SecretKey
	return nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
