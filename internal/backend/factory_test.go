package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/config"
	"gagyebu/internal/log"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.ErrorContains(t, err, "invalid backend type")

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:  "postgres",
		DatabaseURL:  "postgres://db/ledger",
		AMQPURL:      "amqp://localhost:5672/",
		AMQPExchange: "gagyebu",
		AMQPQueue:    "generated_transactions",
	})
	require.NoError(t, err)
	assert.Equal(t, PostgresBackend, cfg.Type)
	assert.Equal(t, "postgres://db/ledger", cfg.DatabaseURL)
	assert.Equal(t, "generated_transactions", cfg.AMQPQueue)
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{Type: "sheets"}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: PostgresBackend}.Validate())
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
	assert.Equal(t, []string{"sqlite", "postgres", "memory"}, GetBackendTypeStrings())
}

func TestCreateBackend_Memory(t *testing.T) {
	f := NewFactory(log.Discard())
	res, err := f.CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)

	assert.NotNil(t, res.Repository)
	assert.Nil(t, res.AMQP)
	assert.Nil(t, res.Publisher(), "no broker means no publisher, not a typed nil")
	assert.NoError(t, res.Repository.Ping(context.Background()))
	assert.NoError(t, res.Cleanup())
}

func TestCreateBackend_SQLite(t *testing.T) {
	f := NewFactory(log.Discard())
	res, err := f.CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"),
	})
	require.NoError(t, err)
	defer res.Cleanup()

	assert.NoError(t, res.Repository.Ping(context.Background()))
}

func TestCreateBackend_Invalid(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.CreateBackend(context.Background(), Config{Type: "sheets"})
	assert.Error(t, err)
}
