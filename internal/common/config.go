package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration.
// Built once at startup and passed by reference into each component
// constructor; never mutated after Load returns.
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Inputs      InputsConfig     `toml:"inputs"`
	Provider    ProviderConfig   `toml:"provider"`
	Pool        PoolConfig       `toml:"pool"`
	Browser     BrowserConfig    `toml:"browser"`
	Campaign    CampaignConfig   `toml:"campaign"`
	Results     ResultsConfig    `toml:"results"`
	Storage     StorageConfig    `toml:"storage"`
	Notify      NotifyConfig     `toml:"notify"`
	Logging     LoggingConfig    `toml:"logging"`
	Strategies  StrategiesConfig `toml:"strategies"`
}

// InputsConfig points at the delimited input files for a run
type InputsConfig struct {
	DomainsFile string `toml:"domains_file" validate:"required"` // One domain per row, header skipped
	EmailsFile  string `toml:"emails_file" validate:"required"`  // One sender address per row, header skipped
}

// ProviderConfig holds remote browser provider API settings
type ProviderConfig struct {
	BaseURL            string        `toml:"base_url" validate:"required,url"` // Session API root
	APIKey             string        `toml:"api_key"`                          // Bearer key, usually from env
	ProjectID          string        `toml:"project_id"`
	RequestTimeout     time.Duration `toml:"request_timeout"`      // HTTP timeout for session create/close calls
	CreateDelay        time.Duration `toml:"create_delay"`         // Minimum delay between session creations (provider RPM quota)
	CreateMaxAttempts  int           `toml:"create_max_attempts"`  // 429 backoff attempt cap before the acquisition fails
	CreateBaseBackoff  time.Duration `toml:"create_base_backoff"`  // Initial backoff after a 429
	VerifyConnectURL   bool          `toml:"verify_connect_url"`   // Probe the CDP websocket endpoint after creation
	ConnectProbeWindow time.Duration `toml:"connect_probe_window"` // Dial timeout for the endpoint probe
}

// PoolConfig bounds the session pool
type PoolConfig struct {
	MaxSize     int `toml:"max_size" validate:"min=1"`    // Max idle sessions retained for reuse
	Concurrency int `toml:"concurrency" validate:"min=1"` // Provider concurrent-session ceiling
}

// BrowserConfig holds the per-attempt page automation settings.
// The fingerprint fields present a consistent, low-suspicion profile
// across every domain attempt.
type BrowserConfig struct {
	NavigationTimeout time.Duration `toml:"navigation_timeout"`
	SettleTime        time.Duration `toml:"settle_time"` // Post-submit wait before success verification
	PopupWait         time.Duration `toml:"popup_wait"`  // Wait after triggering popup-widget APIs
	UserAgent         string        `toml:"user_agent"`
	ViewportWidth     int           `toml:"viewport_width"`
	ViewportHeight    int           `toml:"viewport_height"`
	Locale            string        `toml:"locale"`
	Timezone          string        `toml:"timezone"`
	Latitude          float64       `toml:"latitude"`
	Longitude         float64       `toml:"longitude"`
}

// CampaignConfig drives the batch scheduler and domain processor
type CampaignConfig struct {
	MaxRetries     int           `toml:"max_retries" validate:"min=1"` // Attempts per domain with fresh session + rotated email
	RetryDelay     time.Duration `toml:"retry_delay"`                  // Pause between attempts on the same domain
	BatchSize      int           `toml:"batch_size"`                   // 0 = pool concurrency
	BatchPause     time.Duration `toml:"batch_pause"`                  // Pause between batches
	NotifyEvery    int           `toml:"notify_every"`                 // Progress notification cadence in processed domains
	TrackingParams string        `toml:"tracking_params"`              // Query string appended to every navigation
	Schedule       string        `toml:"schedule"`                     // Optional cron expression for recurring runs
}

// ResultsConfig holds the append-only log and snapshot locations
type ResultsConfig struct {
	Dir          string `toml:"dir"`
	SuccessFile  string `toml:"success_file"`
	FailureFile  string `toml:"failure_file"`
	SnapshotFile string `toml:"snapshot_file"`
}

// StorageConfig holds run-state database settings
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// NotifyConfig holds chat webhook settings. Empty URL disables notifications.
type NotifyConfig struct {
	WebhookURL     string        `toml:"webhook_url"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// StrategiesConfig points at an optional YAML file overriding the built-in
// selector definitions
type StrategiesConfig struct {
	File string `toml:"file"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings should be exposed in ascribo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Inputs: InputsConfig{
			DomainsFile: "./domains.csv",
			EmailsFile:  "./emails.csv",
		},
		Provider: ProviderConfig{
			BaseURL:            "https://api.browser-provider.example",
			RequestTimeout:     30 * time.Second,
			CreateDelay:        1500 * time.Millisecond, // Stays under the provider's per-minute creation quota
			CreateMaxAttempts:  4,
			CreateBaseBackoff:  2 * time.Second,
			VerifyConnectURL:   false,
			ConnectProbeWindow: 5 * time.Second,
		},
		Pool: PoolConfig{
			MaxSize:     10,
			Concurrency: 50, // Observed provider concurrent-session ceiling
		},
		Browser: BrowserConfig{
			NavigationTimeout: 45 * time.Second,
			SettleTime:        3 * time.Second,
			PopupWait:         2 * time.Second,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			ViewportWidth:     1280,
			ViewportHeight:    800,
			Locale:            "en-US",
			Timezone:          "America/New_York",
			Latitude:          40.7128,
			Longitude:         -74.0060,
		},
		Campaign: CampaignConfig{
			MaxRetries:     3,
			RetryDelay:     5 * time.Second,
			BatchSize:      0, // Defaults to pool concurrency
			BatchPause:     10 * time.Second,
			NotifyEvery:    100,
			TrackingParams: "utm_source=newsletter&utm_medium=signup",
		},
		Results: ResultsConfig{
			Dir:          "./results",
			SuccessFile:  "successful_signups.jsonl",
			FailureFile:  "failed_signups.jsonl",
			SnapshotFile: "progress.json",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Notify: NotifyConfig{
			RequestTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against struct tags and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Campaign.Schedule != "" {
		if err := ValidateSchedule(c.Campaign.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ASCRIBO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Inputs
	if domains := os.Getenv("ASCRIBO_DOMAINS_FILE"); domains != "" {
		config.Inputs.DomainsFile = domains
	}
	if emails := os.Getenv("ASCRIBO_EMAILS_FILE"); emails != "" {
		config.Inputs.EmailsFile = emails
	}

	// Provider
	if baseURL := os.Getenv("ASCRIBO_PROVIDER_BASE_URL"); baseURL != "" {
		config.Provider.BaseURL = baseURL
	}
	if apiKey := os.Getenv("ASCRIBO_PROVIDER_API_KEY"); apiKey != "" {
		config.Provider.APIKey = apiKey
	}
	if projectID := os.Getenv("ASCRIBO_PROVIDER_PROJECT_ID"); projectID != "" {
		config.Provider.ProjectID = projectID
	}
	if delay := os.Getenv("ASCRIBO_PROVIDER_CREATE_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Provider.CreateDelay = d
		}
	}
	if attempts := os.Getenv("ASCRIBO_PROVIDER_CREATE_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Provider.CreateMaxAttempts = a
		}
	}

	// Pool
	if maxSize := os.Getenv("ASCRIBO_POOL_MAX_SIZE"); maxSize != "" {
		if s, err := strconv.Atoi(maxSize); err == nil {
			config.Pool.MaxSize = s
		}
	}
	if concurrency := os.Getenv("ASCRIBO_POOL_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Pool.Concurrency = c
		}
	}

	// Campaign
	if retries := os.Getenv("ASCRIBO_CAMPAIGN_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			config.Campaign.MaxRetries = r
		}
	}
	if batchSize := os.Getenv("ASCRIBO_CAMPAIGN_BATCH_SIZE"); batchSize != "" {
		if b, err := strconv.Atoi(batchSize); err == nil {
			config.Campaign.BatchSize = b
		}
	}
	if schedule := os.Getenv("ASCRIBO_CAMPAIGN_SCHEDULE"); schedule != "" {
		config.Campaign.Schedule = schedule
	}

	// Results
	if dir := os.Getenv("ASCRIBO_RESULTS_DIR"); dir != "" {
		config.Results.Dir = dir
	}

	// Storage
	if badgerPath := os.Getenv("ASCRIBO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Notify
	if webhook := os.Getenv("ASCRIBO_NOTIFY_WEBHOOK_URL"); webhook != "" {
		config.Notify.WebhookURL = webhook
	}

	// Logging
	if level := os.Getenv("ASCRIBO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ASCRIBO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Flags have highest priority; zero values leave the config untouched.
func ApplyFlagOverrides(config *Config, domainsFile, emailsFile string, concurrency, batchSize int) {
	if domainsFile != "" {
		config.Inputs.DomainsFile = domainsFile
	}
	if emailsFile != "" {
		config.Inputs.EmailsFile = emailsFile
	}
	if concurrency > 0 {
		config.Pool.Concurrency = concurrency
	}
	if batchSize > 0 {
		config.Campaign.BatchSize = batchSize
	}
}

// EffectiveBatchSize returns the configured batch size, defaulting to the
// session-pool concurrency when unset
func (c *Config) EffectiveBatchSize() int {
	if c.Campaign.BatchSize > 0 {
		return c.Campaign.BatchSize
	}
	return c.Pool.Concurrency
}

// ValidateSchedule validates a cron schedule expression and enforces a
// minimum 5-minute interval so recurring campaigns cannot hammer the provider
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
