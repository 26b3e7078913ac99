package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage_mode: mongo
mongo_url: mongodb://file:27017
mongo_db_name: from_file
http_addr: 127.0.0.1:9000
`), 0o600))

	cfg, err := Load(path, env(map[string]string{
		"MONGO_URL": "mongodb://env:27017",
		"LOG_LEVEL": "",
	}))
	require.NoError(t, err)
	assert.Equal(t, ModeMongo, cfg.StorageMode)
	assert.Equal(t, "mongodb://env:27017", cfg.MongoURL)
	assert.Equal(t, "from_file", cfg.MongoDBName)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	// empty variables do not clear values
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage_mode: [unclosed"), 0o600))
	_, err = Load(path, nil)
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"inmemory", Config{StorageMode: ModeInMemory}, ""},
		{"unknown mode", Config{StorageMode: "etcd"}, `invalid storage mode "etcd"`},
		{"sqlite without path", Config{StorageMode: ModeSQLite}, "requires sqlite_path"},
		{"postgres without url", Config{StorageMode: ModePostgres}, "requires postgres_url"},
		{"redis without url", Config{StorageMode: ModeRedis}, "requires redis_url"},
		{"cached without redis", Config{StorageMode: ModeCached, MongoURL: "m", MongoDBName: "d"}, "requires mongo_url, mongo_db_name and redis_url"},
		{"events without redis", Config{StorageMode: ModeInMemory, EventsChannel: "ev"}, "events_channel requires redis_url"},
		{"redis with events", Config{StorageMode: ModeRedis, RedisURL: "localhost:6379", EventsChannel: "ev"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
