package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Reminder.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Reminder.Lookahead)
	assert.Equal(t, 30*time.Second, cfg.Reminder.SendTimeout)
	assert.True(t, cfg.Reminder.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Security.TokenTTL)
	assert.False(t, cfg.Email.Enabled())
}

func TestLoadFileWithDurationStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"app": {"http_addr": ":9000", "shutdown_timeout": "3s"},
		"security": {"jwt_secret": "file-secret", "token_ttl": "2h"},
		"reminder": {"interval": "30m", "send_timeout": "5s", "workers": 2}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.App.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.App.ShutdownTimeout)
	assert.Equal(t, "file-secret", cfg.Security.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Security.TokenTTL)
	assert.Equal(t, 30*time.Minute, cfg.Reminder.Interval)
	assert.Equal(t, 5*time.Second, cfg.Reminder.SendTimeout)
	assert.Equal(t, 2, cfg.Reminder.Workers)
	// 未出现在文件中的字段保持默认值
	assert.Equal(t, 24*time.Hour, cfg.Reminder.Lookahead)
	assert.True(t, cfg.Reminder.Enabled)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"reminder": {"interval": "hourly"}}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("REMINDER_ENABLED", "false")
	t.Setenv("REMINDER_LOOKAHEAD", "12h")
	t.Setenv("REDIS_ADDR", "none")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USER", "bot")
	t.Setenv("SMTP_PASS", "pw")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Security.JWTSecret)
	assert.False(t, cfg.Reminder.Enabled)
	assert.Equal(t, 12*time.Hour, cfg.Reminder.Lookahead)
	assert.Empty(t, cfg.Redis.Addr)
	assert.True(t, cfg.Email.Enabled())
}

func TestEnvComposesMySQLDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_USER", "tracker")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "tasks")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	parsed := parseMySQLDSN(cfg.MySQL.DSN)
	assert.Equal(t, "db.internal:3307", parsed.Addr)
	assert.Equal(t, "tracker", parsed.User)
	assert.Equal(t, "secret", parsed.Passwd)
	assert.Equal(t, "tasks", parsed.DBName)
	assert.True(t, parsed.ParseTime)
}
