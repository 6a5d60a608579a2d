package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"studiodesk/internal/billing"
	"studiodesk/internal/models"
	"studiodesk/internal/schedule"
	"studiodesk/internal/workflow"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
	Studio     StudioConfig     `yaml:"studio"`
}

// StudioConfig is the studio-wide engine configuration. It is read once at
// startup and handed to the engine as an immutable value.
type StudioConfig struct {
	BufferMinutes   int                   `yaml:"buffer_minutes"`
	TaxRate         float64               `yaml:"tax_rate"`
	SettleTolerance int64                 `yaml:"settle_tolerance"`
	DedupeTasks     bool                  `yaml:"dedupe_tasks"`
	Rooms           []models.Room         `yaml:"rooms"`
	Equipment       []models.Equipment    `yaml:"equipment"`
	Packages        []models.Package      `yaml:"packages"`
	WorkflowRules   []models.WorkflowRule `yaml:"workflow_rules"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// TelegramConfig routes outbox notifications to a staff chat. Empty token disables it.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

// GoogleConfig enables the shared booking board spreadsheet.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"bookings_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	DraftTTL int    `yaml:"draft_ttl"` // seconds
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type OutboxConfig struct {
	Enabled       bool    `yaml:"enabled"`
	QueueKey      string  `yaml:"queue_key"`
	PollInterval  string  `yaml:"poll_interval"`
	BatchSize     int     `yaml:"batch_size"`
	MaxRetries    int     `yaml:"max_retries"`
	InitialDelay  string  `yaml:"initial_delay"`
	MaxDelay      string  `yaml:"max_delay"`
	BackoffFactor float64 `yaml:"backoff_factor"`
}

// OutboxIntervals are the parsed outbox durations. Unset values stay zero.
type OutboxIntervals struct {
	Poll    time.Duration
	Initial time.Duration
	Max     time.Duration
}

func (o *OutboxConfig) Intervals() (OutboxIntervals, error) {
	var (
		out OutboxIntervals
		err error
	)
	if out.Poll, err = parseDuration("outbox.poll_interval", o.PollInterval); err != nil {
		return out, err
	}
	if out.Initial, err = parseDuration("outbox.initial_delay", o.InitialDelay); err != nil {
		return out, err
	}
	if out.Max, err = parseDuration("outbox.max_delay", o.MaxDelay); err != nil {
		return out, err
	}
	return out, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// ${VAR} placeholders are resolved before parsing
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
	if _, err := c.Outbox.Intervals(); err != nil {
		return err
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required when bot_token is set")
	}

	return c.Studio.Validate()
}

// Validate checks the studio section for values the engine cannot work with.
func (s *StudioConfig) Validate() error {
	if s.BufferMinutes < 0 {
		return errors.New("studio.buffer_minutes must not be negative")
	}
	if s.TaxRate < 0 || s.TaxRate > 100 {
		return fmt.Errorf("studio.tax_rate %v out of range 0..100", s.TaxRate)
	}

	rooms := make(map[string]bool, len(s.Rooms))
	for _, r := range s.Rooms {
		if r.ID == "" {
			return fmt.Errorf("room '%s' has empty ID", r.Name)
		}
		if rooms[r.ID] {
			return fmt.Errorf("duplicate room ID found: %s", r.ID)
		}
		rooms[r.ID] = true
	}

	equipment := make(map[string]bool, len(s.Equipment))
	for _, e := range s.Equipment {
		if e.ID == "" {
			return fmt.Errorf("equipment '%s' has empty ID", e.Name)
		}
		if equipment[e.ID] {
			return fmt.Errorf("duplicate equipment ID found: %s", e.ID)
		}
		equipment[e.ID] = true
	}

	packages := make(map[string]bool, len(s.Packages))
	for _, p := range s.Packages {
		if p.ID == "" {
			return fmt.Errorf("package '%s' has empty ID", p.Name)
		}
		if packages[p.ID] {
			return fmt.Errorf("duplicate package ID found: %s", p.ID)
		}
		packages[p.ID] = true
		for _, id := range p.EquipmentIDs {
			if !equipment[id] {
				return fmt.Errorf("package %s references unknown equipment %s", p.ID, id)
			}
		}
	}

	for _, rule := range s.WorkflowRules {
		if !rule.Status.Valid() {
			return fmt.Errorf("workflow rule for unknown status %q", rule.Status)
		}
	}
	return nil
}

// ScheduleSettings is the conflict detector's view of the studio.
func (s *StudioConfig) ScheduleSettings() schedule.Settings {
	return schedule.Settings{
		BufferMinutes: s.BufferMinutes,
		Catalog:       schedule.NewCatalog(s.Rooms, s.Equipment, s.Packages),
	}
}

// BillingPolicy is the calculator's view of the studio.
func (s *StudioConfig) BillingPolicy() billing.Policy {
	return billing.Policy{TaxRate: s.TaxRate, Tolerance: s.SettleTolerance}
}

// Workflow indexes the configured status automation.
func (s *StudioConfig) Workflow() *workflow.Rules {
	return workflow.NewRules(s.WorkflowRules, s.DedupeTasks)
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Redis.DraftTTL == 0 {
		c.Redis.DraftTTL = models.DefaultDraftTTL
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}

	// Studio defaults
	if c.Studio.SettleTolerance == 0 {
		c.Studio.SettleTolerance = models.DefaultSettleTolerance
	}

	// Outbox defaults
	if c.Outbox.QueueKey == "" {
		c.Outbox.QueueKey = "studio:notifications"
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 20
	}
}
