package config

import (
	"os"
	"path/filepath"
	"testing"

	"kintai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
app:
  name: kintai
  environment: test
  timezone: Asia/Tokyo

database:
  path: data/agent.db

hr:
  base_url: https://api.example.com
  token_url: https://accounts.example.com/oauth/token
  client_id: ${HR_CLIENT_ID}
  client_secret: secret
  refresh_token: refresh
  company_id: 100
  employee_id: 200

schedule:
  rollover_time: "00:05"
  backend: api
  actions:
    checkin:
      enabled: true
      mode: random
      window_start: "08:50"
      window_end: "09:10"
    checkout:
      enabled: true
      mode: fixed
      fixed_time: "18:00"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("HR_CLIENT_ID", "env-client-id")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "kintai", cfg.App.Name)
	assert.Equal(t, "data/agent.db", cfg.Database.Path)
	assert.Equal(t, "env-client-id", cfg.HR.ClientID)
	assert.Equal(t, int64(200), cfg.HR.EmployeeID)

	checkin := cfg.Schedule.Actions[models.ActionCheckin]
	assert.True(t, checkin.Enabled)
	assert.Equal(t, "random", checkin.Mode)
	assert.Equal(t, "08:50", checkin.WindowStart)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  path: data/agent.db\n"))
	require.NoError(t, err)

	assert.Equal(t, "kintai", cfg.App.Name)
	assert.Equal(t, "Asia/Tokyo", cfg.App.Timezone)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, models.DefaultRolloverTime, cfg.Schedule.RolloverTime)
	assert.Equal(t, "api", cfg.Schedule.Backend)
	assert.Equal(t, "exports", cfg.Exports.Path)
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Database.Path = "data/agent.db"
		cfg.applyDefaults()
		return cfg
	}

	t.Run("MissingDatabasePath", func(t *testing.T) {
		cfg := base()
		cfg.Database.Path = ""
		assert.ErrorContains(t, cfg.Validate(), "database path")
	})

	t.Run("BadTimezone", func(t *testing.T) {
		cfg := base()
		cfg.App.Timezone = "Mars/Olympus"
		assert.ErrorContains(t, cfg.Validate(), "timezone")
	})

	t.Run("BadBackend", func(t *testing.T) {
		cfg := base()
		cfg.Schedule.Backend = "carrier-pigeon"
		assert.ErrorContains(t, cfg.Validate(), "backend")
	})

	t.Run("BadRolloverTime", func(t *testing.T) {
		cfg := base()
		cfg.Schedule.RolloverTime = "25:99"
		assert.ErrorContains(t, cfg.Validate(), "rollover_time")
	})

	t.Run("BadActionMode", func(t *testing.T) {
		cfg := base()
		cfg.Schedule.Actions = map[models.ActionType]ActionSchedule{
			models.ActionCheckin: {Enabled: true, Mode: "sometimes"},
		}
		assert.ErrorContains(t, cfg.Validate(), "unknown mode")
	})

	t.Run("EmptyRandomWindow", func(t *testing.T) {
		cfg := base()
		cfg.Schedule.Actions = map[models.ActionType]ActionSchedule{
			models.ActionCheckin: {Enabled: true, Mode: "random", WindowStart: "09:00", WindowEnd: "09:00"},
		}
		assert.ErrorContains(t, cfg.Validate(), "window_end")
	})

	t.Run("UnknownAction", func(t *testing.T) {
		cfg := base()
		cfg.Schedule.Actions = map[models.ActionType]ActionSchedule{
			models.ActionType("nap"): {Enabled: true, Mode: "fixed", FixedTime: "14:00"},
		}
		assert.ErrorContains(t, cfg.Validate(), "unknown schedule action")
	})

	t.Run("DisabledActionNotValidated", func(t *testing.T) {
		cfg := base()
		cfg.Schedule.Actions = map[models.ActionType]ActionSchedule{
			models.ActionCheckin: {Enabled: false, Mode: "sometimes"},
		}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("TelegramNeedsToken", func(t *testing.T) {
		cfg := base()
		cfg.Notify.TelegramEnabled = true
		assert.ErrorContains(t, cfg.Validate(), "telegram_token")
	})
}

func TestAutomationConfigured(t *testing.T) {
	assert.False(t, AutomationConfig{}.Configured())
	assert.False(t, AutomationConfig{Username: "u"}.Configured())
	assert.True(t, AutomationConfig{Username: "u", Password: "p"}.Configured())
}
