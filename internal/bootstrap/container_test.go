package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/config"
	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/resilience"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Capture.DBPath = filepath.Join(dir, "journal.db")
	cfg.Capture.JournalDir = filepath.Join(dir, "uploads")
	cfg.Security.AuditPath = filepath.Join(dir, "logs", "audit.log")
	return cfg
}

func newContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	c, err := NewContainer(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewContainer_LocalJournal(t *testing.T) {
	c := newContainer(t, testConfig(t))

	require.NotNil(t, c.Local)
	assert.Same(t, c.Local, c.Sessions)
	assert.Nil(t, c.Tokens)
	assert.Nil(t, c.Telegram)
	assert.NotNil(t, c.Auditor)
	assert.NotNil(t, c.Capture)
	assert.NotNil(t, c.Worker)

	deps := c.ServerDeps()
	assert.Nil(t, deps.Connector)
	assert.Nil(t, deps.Telegram)
	assert.NotNil(t, deps.Jobs)
	assert.NotNil(t, deps.Auditor)

	health := c.Health.Check(context.Background())
	assert.Equal(t, resilience.HealthStatusHealthy, health.Status)
	require.Len(t, health.Components, 2)
	assert.Equal(t, "database", health.Components[0].Name)
	assert.Equal(t, "model", health.Components[1].Name)
}

func TestNewContainer_MemoryBackendKeepsLocalJournal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.Backend = "memory"
	cfg.Security.AuditEnabled = false

	c := newContainer(t, cfg)

	require.NotNil(t, c.Local)
	assert.NotSame(t, c.Local, c.Sessions)
	assert.Nil(t, c.Auditor)
	assert.Nil(t, c.ServerDeps().Auditor)
}

func TestNewContainer_GoogleAndTelegram(t *testing.T) {
	cfg := testConfig(t)
	cfg.Google.ClientID = "client"
	cfg.Google.ClientSecret = "secret"
	cfg.Security.TokenKey = "token-key"
	cfg.Telegram.BotToken = "bot-token"
	cfg.Capture.Backend = "memory"

	c := newContainer(t, cfg)

	assert.NotNil(t, c.Tokens)
	assert.Nil(t, c.Local)
	assert.NotNil(t, c.Bot)
	assert.NotNil(t, c.Telegram)

	deps := c.ServerDeps()
	assert.NotNil(t, deps.Connector)
	assert.NotNil(t, deps.Telegram)
}

func TestNewContainer_GoogleRequiresTokenKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Google.ClientID = "client"
	cfg.Google.ClientSecret = "secret"

	c, err := NewContainer(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}
