package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	ModePrimary       = "primary"
	ModeComprehensive = "comprehensive"

	// ConfigPathEnv names an optional YAML file read instead of the environment.
	ConfigPathEnv = "CAMPAIGN_CONFIG"
)

// Config is the complete runtime configuration. Every field can be supplied
// through the environment (or .env) or through a YAML file.
type Config struct {
	WorkList    string `yaml:"work_list" env:"WORK_LIST" env-default:"Videos List.csv" validate:"required"`
	DownloadDir string `yaml:"download_dir" env:"DOWNLOAD_DIR" env-default:"campaign_downloads" validate:"required"`
	Mode        string `yaml:"mode" env:"EXTRACT_MODE" env-default:"primary" validate:"oneof=primary comprehensive"`
	Resume      bool   `yaml:"resume" env:"RESUME" env-default:"false"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	Fetch    FetchConfig    `yaml:"fetch"`
	Download DownloadConfig `yaml:"download"`
	Pacing   PacingConfig   `yaml:"pacing"`
}

// FetchConfig drives the page fetch chain.
type FetchConfig struct {
	MinContentBytes int           `yaml:"min_content_bytes" env:"FETCH_MIN_CONTENT_BYTES" env-default:"1000" validate:"gte=0"`
	SessionTimeout  time.Duration `yaml:"session_timeout" env:"FETCH_SESSION_TIMEOUT" env-default:"30s" validate:"gt=0"`
	RotatingTimeout time.Duration `yaml:"rotating_timeout" env:"FETCH_ROTATING_TIMEOUT" env-default:"20s" validate:"gt=0"`
	BrowserTimeout  time.Duration `yaml:"browser_timeout" env:"FETCH_BROWSER_TIMEOUT" env-default:"2m" validate:"gt=0"`
	SessionRetries  uint64        `yaml:"session_retries" env:"FETCH_SESSION_RETRIES" env-default:"2"`
	Browsers        bool          `yaml:"browsers" env:"FETCH_BROWSERS" env-default:"true"`
	ChromePath      string        `yaml:"chrome_path" env:"FETCH_CHROME_PATH"`
	RodBrowserPath  string        `yaml:"rod_browser_path" env:"FETCH_ROD_BROWSER_PATH"`
	Referer         string        `yaml:"referer" env:"FETCH_REFERER" env-default:"https://www.kickstarter.com/discover"`

	// ApifyToken enables the remote rendering strategy as a last resort.
	ApifyToken    string        `yaml:"apify_token" env:"APIFY_API_TOKEN"`
	ApifyActor    string        `yaml:"apify_actor" env:"FETCH_APIFY_ACTOR" env-default:"apify~puppeteer-scraper"`
	RemoteTimeout time.Duration `yaml:"remote_timeout" env:"FETCH_REMOTE_TIMEOUT" env-default:"5m" validate:"gt=0"`
}

// DownloadConfig drives the download dispatcher.
type DownloadConfig struct {
	ToolPath        string        `yaml:"tool_path" env:"DOWNLOAD_TOOL_PATH"`
	ToolTimeout     time.Duration `yaml:"tool_timeout" env:"DOWNLOAD_TOOL_TIMEOUT" env-default:"5m" validate:"gt=0"`
	MaxHeight       int           `yaml:"max_height" env:"DOWNLOAD_MAX_HEIGHT" env-default:"720" validate:"gt=0"`
	TransferTimeout time.Duration `yaml:"transfer_timeout" env:"DOWNLOAD_TRANSFER_TIMEOUT" env-default:"10m" validate:"gt=0"`
	Workers         int           `yaml:"workers" env:"DOWNLOAD_WORKERS" env-default:"1" validate:"gte=1,lte=16"`
}

// PacingConfig drives the delays between items and between requests.
type PacingConfig struct {
	MinDelay    time.Duration `yaml:"min_delay" env:"PACING_MIN_DELAY" env-default:"15s" validate:"gte=0"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"PACING_MAX_DELAY" env-default:"30s" validate:"gtefield=MinDelay"`
	HostSpacing time.Duration `yaml:"host_spacing" env:"PACING_HOST_SPACING" env-default:"2s" validate:"gte=0"`
}

// Load reads .env (if present), then the YAML file named by CAMPAIGN_CONFIG
// or the environment, and validates the result.
func Load() (*Config, error) {
	// It's fine for .env to be missing; variables may be set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	if path := os.Getenv(ConfigPathEnv); path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
