package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"installbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("INSTALLBOT_SMTP_PASSWORD", "s3cret")

	yamlContent := `
database:
  path: "test.db"
bot:
  horizon_days: 5
  closed_weekday: "sun"
notifications:
  timeout: 3s
  staff_numbers: ["+15550000001"]
  smtp:
    host: "smtp.example.com"
    password: "${INSTALLBOT_SMTP_PASSWORD}"
services:
  - code: "1"
    name: "Solar Panel Installation"
    active: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "test.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Bot.HorizonDays)
	assert.Equal(t, 3*time.Second, cfg.Notifications.Timeout)
	assert.Equal(t, "s3cret", cfg.Notifications.SMTP.Password)
	assert.Equal(t, []string{"+15550000001"}, cfg.Notifications.StaffNumbers)
	require.Len(t, cfg.Services, 1)
	assert.Equal(t, "Solar Panel Installation", cfg.Services[0].Name)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "bad reminder time", mutate: func(c *Config) { c.Bot.ReminderTime = "9am" }, wantErr: true},
		{name: "bad closed weekday", mutate: func(c *Config) { c.Bot.ClosedWeekday = "someday" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Bot.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "bad staff email", mutate: func(c *Config) { c.Notifications.StaffEmail = "staff" }, wantErr: true},
		{name: "bad webhook url", mutate: func(c *Config) { c.Notifications.WebhookURL = "::" }, wantErr: true},
		{name: "empty slot", mutate: func(c *Config) { c.Bot.TimeSlots = []string{"09:00 AM", ""} }, wantErr: true},
		{
			name: "duplicate service code",
			mutate: func(c *Config) {
				c.Services = []models.ServiceType{{Code: "1", Name: "A"}, {Code: "1", Name: "B"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, "09:00", cfg.Bot.ReminderTime)
	assert.Equal(t, "08:00", cfg.Bot.SummaryTime)
	assert.Equal(t, models.DefaultHorizonDays, cfg.Bot.HorizonDays)
	assert.Equal(t, models.DefaultSessionIdleDays, cfg.Bot.SessionIdleDays)
	assert.Equal(t, models.DefaultTimeSlots, cfg.Bot.TimeSlots)
	assert.Equal(t, []string{"start", "restart", "begin"}, cfg.Bot.RestartKeywords)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Len(t, cfg.Services, 5)
	assert.Equal(t, 3, cfg.Notifications.Retry.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Notifications.Timeout)

	// defaults must not alias the package level slices
	cfg.Bot.TimeSlots[0] = "changed"
	assert.Equal(t, "09:00 AM", models.DefaultTimeSlots[0])
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Sunday")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	d, err = ParseWeekday("sat")
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, d)

	_, err = ParseWeekday("")
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Bot.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}
