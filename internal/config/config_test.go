package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
	assert.Equal(t, 5, cfg.Chat.MaxAttachments)
	assert.Equal(t, 5*time.Second, cfg.Chat.TxTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sail.yaml")
	body := []byte(`
database:
  driver: postgres
  dsn: host=db user=sail dbname=sail
chat:
  tx_timeout: 2s
notify:
  workers: 8
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("SAIL_RABBITMQ_QUEUE", "chat.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db user=sail dbname=sail", cfg.Database.DSN)
	assert.Equal(t, 2*time.Second, cfg.Chat.TxTimeout)
	assert.Equal(t, 8, cfg.Notify.Workers)
	assert.Equal(t, "chat.test", cfg.RabbitMQ.Queue)
	// 未覆盖的值保持默认
	assert.Equal(t, 1024, cfg.Notify.Buffer)
}

func TestServerAddrDefaultsHost(t *testing.T) {
	assert.Equal(t, "0.0.0.0:9000", ServerConfig{Port: 9000}.Addr())
}
