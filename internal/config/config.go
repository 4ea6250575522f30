package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"installbot/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig            `yaml:"app"`
	Database      DatabaseConfig       `yaml:"database"`
	Redis         RedisConfig          `yaml:"redis"`
	Backup        BackupConfig         `yaml:"backup"`
	Monitoring    MonitoringConfig     `yaml:"monitoring"`
	Logging       LoggingConfig        `yaml:"logging"`
	API           APIConfig            `yaml:"api"`
	Bot           BotConfig            `yaml:"bot"`
	Notifications NotificationsConfig  `yaml:"notifications"`
	Services      []models.ServiceType `yaml:"services"`
}

type BotConfig struct {
	RestartKeywords   []string `yaml:"restart_keywords"`
	HorizonDays       int      `yaml:"horizon_days" validate:"gte=1,lte=60"`
	ClosedWeekday     string   `yaml:"closed_weekday"`
	TimeSlots         []string `yaml:"time_slots" validate:"min=1,dive,required"`
	ReminderTime      string   `yaml:"reminder_time" validate:"hhmm"`
	SummaryTime       string   `yaml:"summary_time" validate:"hhmm"`
	Timezone          string   `yaml:"timezone"`
	SessionIdleDays   int      `yaml:"session_idle_days" validate:"gte=1"`
	SessionCacheSize  int      `yaml:"session_cache_size" validate:"gte=1"`
	RateLimitMessages int      `yaml:"rate_limit_messages"`
	RateLimitWindow   int      `yaml:"rate_limit_window"`
}

type NotificationsConfig struct {
	Timeout       time.Duration  `yaml:"timeout"`
	PoolSize      int            `yaml:"pool_size"`
	QueueSize     int            `yaml:"queue_size"`
	Retry         RetryConfig    `yaml:"retry"`
	StaffNumbers  []string       `yaml:"staff_numbers"`
	StaffEmail    string         `yaml:"staff_email" validate:"omitempty,email"`
	WebhookURL    string         `yaml:"webhook_url" validate:"omitempty,url"`
	Outbound      OutboundConfig `yaml:"outbound"`
	SMTP          SMTPConfig     `yaml:"smtp"`
	CompanyName   string         `yaml:"company_name"`
	SupportNumber string         `yaml:"support_number"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// OutboundConfig describes the HTTP messaging provider used for customer and staff messages.
type OutboundConfig struct {
	URL   string `yaml:"url" validate:"omitempty,url"`
	Token string `yaml:"token"`
	From  string `yaml:"from"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from" validate:"omitempty,email"`
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
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
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

func Load(configPath string) (*Config, error) {
	// .env необязателен, переменные могут прийти из окружения
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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

	if err := structValidator().Struct(c.Bot); err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	if err := structValidator().Struct(c.Notifications); err != nil {
		return fmt.Errorf("notifications: %w", err)
	}

	if c.Bot.ClosedWeekday != "" {
		if _, err := ParseWeekday(c.Bot.ClosedWeekday); err != nil {
			return err
		}
	}
	if c.Bot.Timezone != "" {
		if _, err := time.LoadLocation(c.Bot.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Bot.Timezone, err)
		}
	}

	return ValidateServices(c.Services)
}

func ValidateServices(services []models.ServiceType) error {
	if len(services) == 0 {
		return errors.New("at least one service type is required")
	}
	codes := make(map[string]bool)
	for _, s := range services {
		if strings.TrimSpace(s.Code) == "" {
			return fmt.Errorf("service '%s' has empty code", s.Name)
		}
		if s.Name == "" {
			return fmt.Errorf("service with code %s has empty name", s.Code)
		}
		if codes[s.Code] {
			return fmt.Errorf("duplicate service code found: %s", s.Code)
		}
		codes[s.Code] = true
	}
	return nil
}

// ParseWeekday accepts an English weekday name, full or three-letter.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", name)
}

// Location returns the configured scheduling timezone, local time by default.
func (c *Config) Location() *time.Location {
	if c.Bot.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Bot.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
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

	// Bot defaults
	if len(c.Bot.RestartKeywords) == 0 {
		c.Bot.RestartKeywords = append([]string(nil), models.DefaultRestartKeywords...)
	}
	if c.Bot.HorizonDays == 0 {
		c.Bot.HorizonDays = models.DefaultHorizonDays
	}
	if c.Bot.ClosedWeekday == "" {
		c.Bot.ClosedWeekday = "sunday"
	}
	if len(c.Bot.TimeSlots) == 0 {
		c.Bot.TimeSlots = append([]string(nil), models.DefaultTimeSlots...)
	}
	if c.Bot.ReminderTime == "" {
		c.Bot.ReminderTime = fmt.Sprintf("%02d:00", models.ReminderHour)
	}
	if c.Bot.SummaryTime == "" {
		c.Bot.SummaryTime = fmt.Sprintf("%02d:00", models.SummaryHour)
	}
	if c.Bot.SessionIdleDays == 0 {
		c.Bot.SessionIdleDays = models.DefaultSessionIdleDays
	}
	if c.Bot.SessionCacheSize == 0 {
		c.Bot.SessionCacheSize = models.DefaultSessionCacheSize
	}
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = models.RateLimitMessages
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = models.RateLimitWindow
	}

	// Notification defaults
	n := &c.Notifications
	if n.Timeout == 0 {
		n.Timeout = 10 * time.Second
	}
	if n.PoolSize == 0 {
		n.PoolSize = 32
	}
	if n.QueueSize == 0 {
		n.QueueSize = models.NotificationQueueSize
	}
	if n.Retry.MaxRetries == 0 {
		n.Retry.MaxRetries = 3
	}
	if n.Retry.InitialDelay == 0 {
		n.Retry.InitialDelay = 500 * time.Millisecond
	}
	if n.Retry.MaxDelay == 0 {
		n.Retry.MaxDelay = 10 * time.Second
	}
	if n.Retry.BackoffFactor == 0 {
		n.Retry.BackoffFactor = 2
	}
	if n.SMTP.Port == 0 {
		n.SMTP.Port = 587
	}
	if n.CompanyName == "" {
		n.CompanyName = "Installation Service"
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}

	if len(c.Services) == 0 {
		c.Services = append([]models.ServiceType(nil), models.DefaultServiceTypes...)
	}
}
