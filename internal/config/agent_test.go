package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAgentConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server_url: https://sync.example.com
token: test-token
database_path: /var/lib/agent/client.db
`)

	cfg, err := LoadAgentConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncInterval, cfg.SyncInterval)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultBackoffBase, cfg.BackoffBase)
	assert.Equal(t, DefaultBackoffCap, cfg.BackoffCap)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
}

func TestLoadAgentConfig_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server_url: https://sync.example.com
token: test-token
database_path: client.db
sync_interval: 10s
batch_size: 25
max_attempts: 3
backoff_base: 1s
backoff_cap: 2m
request_timeout: 15s
`)

	cfg, err := LoadAgentConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.SyncInterval)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BackoffBase)
	assert.Equal(t, 2*time.Minute, cfg.BackoffCap)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestLoadAgentConfig_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no server_url", "token: x\ndatabase_path: db\n"},
		{"no token", "server_url: https://x\ndatabase_path: db\n"},
		{"no database_path", "server_url: https://x\ntoken: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAgentConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

// The server caps batches at 100; a bigger client batch would be
// rejected on every sync, so refuse it at startup.
func TestLoadAgentConfig_BatchSizeAboveServerLimit(t *testing.T) {
	path := writeConfig(t, `
server_url: https://sync.example.com
token: test-token
database_path: client.db
batch_size: 250
`)

	_, err := LoadAgentConfig(path)
	assert.Error(t, err)
}

func TestLoadAgentConfig_MissingFile(t *testing.T) {
	_, err := LoadAgentConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
