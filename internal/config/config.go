// Package config initializes and validates configuration via Viper. Settings
// come from an optional config file, ENTITYPROC_* environment variables, and
// defaults; the fixed workflow variables CONTROL_NUMBER and REQUEST_ID are
// read by the CLI directly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/logging"
)

// Config captures every knob that influences a retrieval run.
type Config struct {
	Application ApplicationConfig
	Portal      PortalConfig
	Probe       ProbeConfig
	Browser     BrowserConfig
	Challenge   ChallengeConfig
	Search      SearchConfig
	Extract     ExtractConfig
	Run         RunConfig
	Artifacts   ArtifactsConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// ApplicationConfig identifies the binary in logs and the version endpoint.
type ApplicationConfig struct {
	Name    string
	Version string
}

// PortalConfig locates the registry portal.
type PortalConfig struct {
	SearchURL string
	BaseURL   string
	UserAgent string
}

// ProbeConfig governs the preflight HTTP look at the portal.
type ProbeConfig struct {
	Enabled bool
	Timeout time.Duration
}

// BrowserConfig controls the DevTools session. RemoteURL, when set, attaches
// to an already-running browser instead of launching one.
type BrowserConfig struct {
	RemoteURL    string
	Headless     bool
	NoSandbox    bool
	WindowWidth  int
	WindowHeight int
	NavTimeout   time.Duration
}

// ChallengeConfig bounds the anti-bot gate and tunes its detector.
type ChallengeConfig struct {
	Timeout       time.Duration
	PollInterval  time.Duration
	ReadySelector string
	ClickX        float64
	ClickY        float64
	MinHTMLBytes  int
	Markers       []string
}

// SearchConfig holds the selectors and bounds for the search flow.
type SearchConfig struct {
	InputSelector       string
	ButtonSelector      string
	ResultLinkSelector  string
	NoResultsText       string
	DetailReadySelector string
	ResultTimeout       time.Duration
	PollInterval        time.Duration
}

// ExtractConfig holds the selectors for the extraction pass.
type ExtractConfig struct {
	OfficerGridSelector string
}

// RunConfig is the attempt policy.
type RunConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Budget         time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	OutputDir      string
}

// ArtifactsConfig selects and configures the diagnostics artifact store.
type ArtifactsConfig struct {
	Provider   string
	Dir        string
	TraceSteps bool
	GCSBucket  string
}

// MetricsConfig enables the debug/metrics listener when an address is set.
type MetricsConfig struct {
	ListenAddr string
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool
}

// InitConfig initializes the global Viper instance: search paths, defaults,
// and environment variables. Designed to be called once from a cobra
// OnInitialize hook; a missing config file is not an error.
func InitConfig() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/entityproc/")
	viper.AddConfigPath("$HOME/.entityproc")

	SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("ENTITYPROC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logging.L.Debug("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}

// SetDefaults registers the default for every configuration key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("application.name", "entityproc")
	v.SetDefault("application.version", "dev")

	v.SetDefault("portal.search_url", "https://ecorp.sos.ga.gov/BusinessSearch")
	v.SetDefault("portal.base_url", "https://ecorp.sos.ga.gov")
	v.SetDefault("portal.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")

	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.timeout", "15s")

	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.nav_timeout", "45s")

	v.SetDefault("challenge.timeout", "30s")
	v.SetDefault("challenge.poll_interval", "1s")
	v.SetDefault("challenge.ready_selector", "#txtControlNo")
	// Viewport coordinates of the interactive widget's checkbox. The frame is
	// cross-origin, so a raw click is the only way in.
	v.SetDefault("challenge.click_x", 210)
	v.SetDefault("challenge.click_y", 290)
	v.SetDefault("challenge.min_html_bytes", 2048)
	v.SetDefault("challenge.markers", []string{})

	v.SetDefault("search.input_selector", "#txtControlNo")
	v.SetDefault("search.button_selector", "#btnSearch")
	v.SetDefault("search.result_link_selector", "td > a")
	v.SetDefault("search.no_results_text", "No data found")
	v.SetDefault("search.detail_ready_selector", "table")
	v.SetDefault("search.result_timeout", "20s")
	v.SetDefault("search.poll_interval", "500ms")

	v.SetDefault("extract.officer_grid_selector", "table.gridstyle")

	v.SetDefault("run.max_attempts", 3)
	v.SetDefault("run.attempt_timeout", "3m")
	v.SetDefault("run.budget", "15m")
	v.SetDefault("run.backoff_base", "2s")
	v.SetDefault("run.backoff_max", "15s")
	v.SetDefault("run.output_dir", ".")

	v.SetDefault("artifacts.provider", "local")
	v.SetDefault("artifacts.dir", "logs")
	v.SetDefault("artifacts.trace_steps", false)
	v.SetDefault("artifacts.gcs.bucket", "")

	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("logging.development", false)
}

// Load constructs a Config by reading from Viper and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Application: ApplicationConfig{
			Name:    v.GetString("application.name"),
			Version: v.GetString("application.version"),
		},
		Portal: PortalConfig{
			SearchURL: v.GetString("portal.search_url"),
			BaseURL:   v.GetString("portal.base_url"),
			UserAgent: v.GetString("portal.user_agent"),
		},
		Probe: ProbeConfig{
			Enabled: v.GetBool("probe.enabled"),
			Timeout: v.GetDuration("probe.timeout"),
		},
		Browser: BrowserConfig{
			RemoteURL:    v.GetString("browser.remote_url"),
			Headless:     v.GetBool("browser.headless"),
			NoSandbox:    v.GetBool("browser.no_sandbox"),
			WindowWidth:  v.GetInt("browser.window_width"),
			WindowHeight: v.GetInt("browser.window_height"),
			NavTimeout:   v.GetDuration("browser.nav_timeout"),
		},
		Challenge: ChallengeConfig{
			Timeout:       v.GetDuration("challenge.timeout"),
			PollInterval:  v.GetDuration("challenge.poll_interval"),
			ReadySelector: v.GetString("challenge.ready_selector"),
			ClickX:        v.GetFloat64("challenge.click_x"),
			ClickY:        v.GetFloat64("challenge.click_y"),
			MinHTMLBytes:  v.GetInt("challenge.min_html_bytes"),
			Markers:       v.GetStringSlice("challenge.markers"),
		},
		Search: SearchConfig{
			InputSelector:       v.GetString("search.input_selector"),
			ButtonSelector:      v.GetString("search.button_selector"),
			ResultLinkSelector:  v.GetString("search.result_link_selector"),
			NoResultsText:       v.GetString("search.no_results_text"),
			DetailReadySelector: v.GetString("search.detail_ready_selector"),
			ResultTimeout:       v.GetDuration("search.result_timeout"),
			PollInterval:        v.GetDuration("search.poll_interval"),
		},
		Extract: ExtractConfig{
			OfficerGridSelector: v.GetString("extract.officer_grid_selector"),
		},
		Run: RunConfig{
			MaxAttempts:    v.GetInt("run.max_attempts"),
			AttemptTimeout: v.GetDuration("run.attempt_timeout"),
			Budget:         v.GetDuration("run.budget"),
			BackoffBase:    v.GetDuration("run.backoff_base"),
			BackoffMax:     v.GetDuration("run.backoff_max"),
			OutputDir:      v.GetString("run.output_dir"),
		},
		Artifacts: ArtifactsConfig{
			Provider:   v.GetString("artifacts.provider"),
			Dir:        v.GetString("artifacts.dir"),
			TraceSteps: v.GetBool("artifacts.trace_steps"),
			GCSBucket:  v.GetString("artifacts.gcs.bucket"),
		},
		Metrics: MetricsConfig{
			ListenAddr: v.GetString("metrics.listen_addr"),
		},
		Logging: LoggingConfig{
			Development: v.GetBool("logging.development"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Portal.SearchURL == "" {
		return fmt.Errorf("portal.search_url must be set")
	}
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url must be set")
	}
	if c.Portal.UserAgent == "" {
		return fmt.Errorf("portal.user_agent must be set")
	}
	if c.Probe.Enabled && c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be > 0 when the probe is enabled")
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	if c.Challenge.Timeout <= 0 {
		return fmt.Errorf("challenge.timeout must be > 0")
	}
	if c.Challenge.PollInterval <= 0 {
		return fmt.Errorf("challenge.poll_interval must be > 0")
	}
	if c.Challenge.PollInterval >= c.Challenge.Timeout {
		return fmt.Errorf("challenge.poll_interval must be shorter than challenge.timeout")
	}
	if c.Challenge.ReadySelector == "" {
		return fmt.Errorf("challenge.ready_selector must be set")
	}
	if c.Challenge.MinHTMLBytes < 0 {
		return fmt.Errorf("challenge.min_html_bytes must be >= 0")
	}
	if c.Search.InputSelector == "" || c.Search.ButtonSelector == "" {
		return fmt.Errorf("search.input_selector and search.button_selector must be set")
	}
	if c.Search.ResultLinkSelector == "" {
		return fmt.Errorf("search.result_link_selector must be set")
	}
	if c.Search.DetailReadySelector == "" {
		return fmt.Errorf("search.detail_ready_selector must be set")
	}
	if c.Search.ResultTimeout <= 0 {
		return fmt.Errorf("search.result_timeout must be > 0")
	}
	if c.Search.PollInterval <= 0 {
		return fmt.Errorf("search.poll_interval must be > 0")
	}
	if c.Extract.OfficerGridSelector == "" {
		return fmt.Errorf("extract.officer_grid_selector must be set")
	}
	if c.Run.MaxAttempts <= 0 {
		return fmt.Errorf("run.max_attempts must be > 0")
	}
	if c.Run.AttemptTimeout <= 0 {
		return fmt.Errorf("run.attempt_timeout must be > 0")
	}
	if c.Run.Budget < c.Run.AttemptTimeout {
		return fmt.Errorf("run.budget must be at least run.attempt_timeout")
	}
	if c.Run.BackoffBase <= 0 || c.Run.BackoffMax < c.Run.BackoffBase {
		return fmt.Errorf("run.backoff_base must be > 0 and run.backoff_max must be >= run.backoff_base")
	}
	if c.Run.OutputDir == "" {
		return fmt.Errorf("run.output_dir must be set")
	}
	switch c.Artifacts.Provider {
	case "local":
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts.dir must be set for the local provider")
		}
	case "gcs":
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("artifacts.gcs.bucket must be set for the gcs provider")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown artifacts.provider: %s", c.Artifacts.Provider)
	}
	return nil
}
