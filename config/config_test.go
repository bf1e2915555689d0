package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "user-auth-service", cfg.AppName)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 48*time.Hour, cfg.RefreshTTL)
	require.Equal(t, "db/migrations", cfg.MigrationsDir)
	require.Equal(t, "users", cfg.ESUsersIndex)
	require.True(t, cfg.MailSendEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("ACCESS_TOKEN_SECRET", "s1")
	t.Setenv("REFRESH_TOKEN_SECRET", "s2")
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("MAIL_SEND_ENABLED", "false")

	cfg := Load()
	require.Equal(t, "9191", cfg.Port)
	require.Equal(t, "s1", cfg.JWTAccessSecret)
	require.Equal(t, "s2", cfg.JWTRefreshSecret)
	require.Equal(t, 30*time.Minute, cfg.AccessTTL)
	require.Equal(t, 12, cfg.BcryptCost)
	require.False(t, cfg.MailSendEnabled)
}

func TestLoadToleratesMalformedValues(t *testing.T) {
	t.Setenv("JWT_ACCESS_TTL", "soon")
	t.Setenv("BCRYPT_COST", "many")
	t.Setenv("MAIL_SEND_ENABLED", "kinda")

	cfg := Load()
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.True(t, cfg.MailSendEnabled)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "5432", DBName: "d", DBSSLMode: "disable"}
	require.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", cfg.PostgresDSN())
}

func TestSplitCSV(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, splitCSV(" a , b ,"))
	require.Empty(t, splitCSV(""))
}
