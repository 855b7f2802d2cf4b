package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"kintai/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	HR         HRConfig         `yaml:"hr"`
	Automation AutomationConfig `yaml:"automation"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Notify     NotifyConfig     `yaml:"notify"`
	Exports    ExportConfig     `yaml:"exports"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	HeaderAPIKey string   `yaml:"header_api_key"`
	APIKeys      []string `yaml:"api_keys"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// HRConfig configures the OAuth API client against the HR platform.
type HRConfig struct {
	BaseURL      string `yaml:"base_url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	CompanyID    int64  `yaml:"company_id"`
	EmployeeID   int64  `yaml:"employee_id"`
}

// AutomationConfig configures the browser fallback. Username/password empty
// means the web tier of the ladder is unavailable.
type AutomationConfig struct {
	BaseURL       string `yaml:"base_url"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	CompanyName   string `yaml:"company_name"`
	Headless      bool   `yaml:"headless"`
	ArtifactsPath string `yaml:"artifacts_path"`
	TimeoutSec    int    `yaml:"timeout_sec"`
}

// Configured reports whether UI credentials are present.
func (a AutomationConfig) Configured() bool {
	return a.Username != "" && a.Password != ""
}

// ActionSchedule is the per-action schedule configuration.
type ActionSchedule struct {
	Enabled     bool   `yaml:"enabled"`
	Mode        string `yaml:"mode"` // fixed | random
	FixedTime   string `yaml:"fixed_time"`
	WindowStart string `yaml:"window_start"`
	WindowEnd   string `yaml:"window_end"`
}

type ScheduleConfig struct {
	RolloverTime string                               `yaml:"rollover_time"`
	Backend      string                               `yaml:"backend"` // api | browser | mock
	Actions      map[models.ActionType]ActionSchedule `yaml:"actions"`
}

type NotifyConfig struct {
	TelegramEnabled bool   `yaml:"telegram_enabled"`
	TelegramToken   string `yaml:"telegram_token"`
	TelegramChatID  int64  `yaml:"telegram_chat_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; config values reference its variables via ${VAR}.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}

	switch c.Schedule.Backend {
	case "api", "browser", "mock":
	default:
		return fmt.Errorf("unknown schedule backend %q (want api, browser or mock)", c.Schedule.Backend)
	}

	if _, err := time.Parse("15:04", c.Schedule.RolloverTime); err != nil {
		return fmt.Errorf("invalid rollover_time %q: %w", c.Schedule.RolloverTime, err)
	}

	for action, sched := range c.Schedule.Actions {
		if !action.Valid() {
			return fmt.Errorf("unknown schedule action %q", action)
		}
		if err := validateActionSchedule(action, sched); err != nil {
			return err
		}
	}

	if c.Notify.TelegramEnabled && c.Notify.TelegramToken == "" {
		return errors.New("notify.telegram_token is required when telegram is enabled")
	}

	return nil
}

func validateActionSchedule(action models.ActionType, sched ActionSchedule) error {
	if !sched.Enabled {
		return nil
	}
	switch sched.Mode {
	case "fixed":
		if _, err := time.Parse("15:04", sched.FixedTime); err != nil {
			return fmt.Errorf("action %s: invalid fixed_time %q", action, sched.FixedTime)
		}
	case "random":
		start, err := time.Parse("15:04", sched.WindowStart)
		if err != nil {
			return fmt.Errorf("action %s: invalid window_start %q", action, sched.WindowStart)
		}
		end, err := time.Parse("15:04", sched.WindowEnd)
		if err != nil {
			return fmt.Errorf("action %s: invalid window_end %q", action, sched.WindowEnd)
		}
		if !end.After(start) {
			return fmt.Errorf("action %s: window_end must be after window_start", action)
		}
	default:
		return fmt.Errorf("action %s: unknown mode %q (want fixed or random)", action, sched.Mode)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "kintai"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "Asia/Tokyo"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 5
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 10
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Schedule.RolloverTime == "" {
		c.Schedule.RolloverTime = models.DefaultRolloverTime
	}
	if c.Schedule.Backend == "" {
		c.Schedule.Backend = "api"
	}
	if c.Automation.TimeoutSec == 0 {
		c.Automation.TimeoutSec = 90
	}
	if c.Automation.ArtifactsPath == "" {
		c.Automation.ArtifactsPath = "artifacts"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

// Location resolves the configured timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
