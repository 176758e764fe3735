package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 62*time.Second, cfg.Cooldowns.FollowerPage)
	assert.Equal(t, 62*time.Second, cfg.Cooldowns.FriendPage)
	assert.Equal(t, 2*time.Second, cfg.Cooldowns.UserLookup)
	assert.Equal(t, 5*time.Second, cfg.Cooldowns.Relationship)

	assert.Equal(t, 10, cfg.Crawl.SavePoint)
	assert.Equal(t, 11, cfg.Crawl.SliceCount)
	assert.Equal(t, 15*time.Second, cfg.Crawl.PagePollInterval)
	assert.Equal(t, 3*time.Second, cfg.Crawl.RelationshipPollInterval)
	assert.Equal(t, 60*time.Second, cfg.Crawl.SinglePageInterval)

	assert.Equal(t, 10000, cfg.Matrix.BatchSize)
	assert.Equal(t, "adj", cfg.Matrix.FilePrefix)
	assert.Equal(t, int8(-42), cfg.Matrix.InitialValue)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FOLLOWGRAPH_DIRECTION", "FRIEND")
	t.Setenv("FOLLOWGRAPH_SAVE_POINT", "1000")
	t.Setenv("FOLLOWGRAPH_SLICE_COUNT", "7")
	t.Setenv("FOLLOWGRAPH_CREDENTIAL_FILES", "a.ini, b.ini,")
	t.Setenv("FOLLOWGRAPH_STORAGE_BACKEND", "badger")
	t.Setenv("FOLLOWGRAPH_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "friend", cfg.Crawl.Direction)
	assert.Equal(t, 1000, cfg.Crawl.SavePoint)
	assert.Equal(t, 7, cfg.Crawl.SliceCount)
	assert.Equal(t, []string{"a.ini", "b.ini"}, cfg.API.CredentialFiles)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("FOLLOWGRAPH_SAVE_POINT", "lots")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOLLOWGRAPH_SAVE_POINT")
	assert.Equal(t, 10, cfg.Crawl.SavePoint)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad direction", func(c *Config) { c.Crawl.Direction = "sideways" }, "Direction"},
		{"zero save point", func(c *Config) { c.Crawl.SavePoint = 0 }, "SavePoint"},
		{"zero slices", func(c *Config) { c.Crawl.SliceCount = 0 }, "SliceCount"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "tape" }, "Backend"},
		{"minio without bucket", func(c *Config) {
			c.Storage.Backend = "minio"
			c.Storage.Minio.Endpoint = "localhost:9000"
		}, "minio endpoint and bucket"},
		{"bad relation source", func(c *Config) { c.Matrix.RelationSource = "oracle" }, "RelationSource"},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Crawl.Direction = "friend"
	cfg.Cooldowns.Relationship = 7 * time.Second
	cfg.API.CredentialFiles = []string{"config/config_01.ini"}
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "friend", loaded.Crawl.Direction)
	assert.Equal(t, 7*time.Second, loaded.Cooldowns.Relationship)
	assert.Equal(t, []string{"config/config_01.ini"}, loaded.API.CredentialFiles)
}

func TestLoadFromFileParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
cooldowns:
  follower_page: 90s
crawl:
  direction: friend
  save_point: 1000
matrix:
  batch_size: 2
  relation_source: live
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, 90*time.Second, cfg.Cooldowns.FollowerPage)
	assert.Equal(t, 62*time.Second, cfg.Cooldowns.FriendPage)
	assert.Equal(t, 1000, cfg.Crawl.SavePoint)
	assert.Equal(t, 2, cfg.Matrix.BatchSize)
	assert.Equal(t, "live", cfg.Matrix.RelationSource)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"direction":  "friend",
		"save-point": 0,
		"batch-size": 500,
		"prefix":     "sample_adj",
		"log-level":  "",
	})

	assert.Equal(t, "friend", cfg.Crawl.Direction)
	assert.Equal(t, 10, cfg.Crawl.SavePoint)
	assert.Equal(t, 500, cfg.Matrix.BatchSize)
	assert.Equal(t, "sample_adj", cfg.Matrix.FilePrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawl:\n  save_point: 50\n  slice_count: 3\n"), 0644))

	t.Setenv("HOME", dir)
	t.Setenv("FOLLOWGRAPH_SAVE_POINT", "75")

	cfg, err := Load(path, map[string]interface{}{"slices": 5})
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Crawl.SavePoint)
	assert.Equal(t, 5, cfg.Crawl.SliceCount)
}
