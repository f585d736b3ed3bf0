// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-xmss.
//
// go-xmss is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-xmss/pkg/adapters/logger"
	"github.com/jeremyhahn/go-xmss/pkg/metrics"
	"github.com/jeremyhahn/go-xmss/pkg/ratelimit"
	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
	"github.com/jeremyhahn/go-xmss/pkg/xmss"
)

var envVars = []string{
	"XMSS_LOG_LEVEL", "XMSS_LOG_FORMAT", "XMSS_PARAMETER_SET", "XMSS_PARTITIONS",
	"XMSS_STORE_BACKEND", "XMSS_STORE_PATH", "REDIS_ADDR", "REDIS_PASSWORD",
	"VAULT_ADDR", "VAULT_TOKEN", "VAULT_NAMESPACE",
}

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
	}
}

func TestLoad_Success(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"
  format: "json"
  driver: "zap"

key:
  name: "signer"
  parameter_set: "XMSS-SHAKE256_16_256"
  partitions: 8
  rate_limit:
    enabled: true
    signatures_per_minute: 120

store:
  backend: "file"
  path: "/var/lib/xmss"
  redis:
    addr: "localhost:6379"
    dial_timeout: 2s

metrics:
  enabled: false
  collect_interval: 30s
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "zap", cfg.Logging.Driver)
	assert.Equal(t, 100, cfg.Logging.MaxSizeMB, "unset fields keep defaults")

	assert.Equal(t, "signer", cfg.Key.Name)
	assert.Equal(t, 8, cfg.Key.Partitions)
	assert.True(t, cfg.Key.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.Key.RateLimit.SignaturesPerMinute)
	opts, closer := cfg.Key.Options()
	assert.Len(t, opts, 3)
	require.NoError(t, closer.Close())
	ps, err := cfg.Key.Parameters()
	require.NoError(t, err)
	assert.Equal(t, types.XMSS_SHAKE256_16_256, ps)

	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/xmss", cfg.Store.Path)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2*time.Second, cfg.Store.Redis.DialTimeout)

	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Metrics.CollectInterval)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	_, err := Load(filepath.Join(tmpDir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("logging: [unterminated"), 0600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config file")

	invalid := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("store:\n  backend: floppy\n"), 0600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestParse_Empty(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("XMSS_LOG_LEVEL", "warn")
	t.Setenv("XMSS_LOG_FORMAT", "json")
	t.Setenv("XMSS_PARAMETER_SET", "XMSS_SHA2_16_256")
	t.Setenv("XMSS_PARTITIONS", "12")
	t.Setenv("XMSS_STORE_BACKEND", "vault")
	t.Setenv("XMSS_STORE_PATH", "/srv/xmss")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("VAULT_ADDR", "http://vault:8200")
	t.Setenv("VAULT_TOKEN", "s.token")
	t.Setenv("VAULT_NAMESPACE", "team")

	cfg, err := Parse([]byte("store:\n  backend: memory\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "XMSS_SHA2_16_256", cfg.Key.ParameterSet)
	assert.Equal(t, 12, cfg.Key.Partitions)
	assert.Equal(t, BackendVault, cfg.Store.Backend)
	assert.Equal(t, "/srv/xmss", cfg.Store.Path)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Store.Redis.Password)
	assert.Equal(t, "http://vault:8200", cfg.Store.Vault.Address)
	assert.Equal(t, "s.token", cfg.Store.Vault.Token)
	assert.Equal(t, "team", cfg.Store.Vault.Namespace)
}

func TestEnvOverrides_InvalidPartitions(t *testing.T) {
	clearEnv(t)
	t.Setenv("XMSS_PARTITIONS", "-3")

	cfg, err := Parse([]byte("key:\n  partitions: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Key.Partitions)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad driver", func(c *Config) { c.Logging.Driver = "logrus" }, "invalid log driver"},
		{"bad parameter set", func(c *Config) { c.Key.ParameterSet = "XMSS-MD5_10_128" }, "unknown XMSS parameter set"},
		{"negative partitions", func(c *Config) { c.Key.Partitions = -1 }, "cannot be negative"},
		{"rate limit without rate", func(c *Config) { c.Key.RateLimit.Enabled = true }, "signatures_per_minute"},
		{"empty backend", func(c *Config) { c.Store.Backend = "" }, "must be specified"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "tape" }, "unknown store backend"},
		{"file without path", func(c *Config) { c.Store.Backend = BackendFile }, "store path"},
		{"file with path", func(c *Config) {
			c.Store.Backend = BackendFile
			c.Store.Path = "/tmp/xmss"
		}, ""},
		{"badger without path", func(c *Config) { c.Store.Backend = BackendBadger }, "store path"},
		{"badger in memory", func(c *Config) {
			c.Store.Backend = BackendBadger
			c.Store.Badger.InMemory = true
		}, ""},
		{"redis without addr", func(c *Config) { c.Store.Backend = BackendRedis }, "redis address"},
		{"vault without address", func(c *Config) { c.Store.Backend = BackendVault }, "vault address"},
		{"vault without token", func(c *Config) {
			c.Store.Backend = BackendVault
			c.Store.Vault.Address = "http://vault:8200"
		}, "vault token"},
		{"backend is case-insensitive", func(c *Config) { c.Store.Backend = "MEMORY" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestKeyConfig(t *testing.T) {
	k := KeyConfig{}
	ps, err := k.Parameters()
	require.NoError(t, err)
	assert.Equal(t, types.XMSS_SHA2_10_256, ps)

	k = KeyConfig{Name: "signer", Partitions: 2}
	opts, closer := k.Options()
	key := xmss.New(opts...)
	defer key.Close()
	assert.Equal(t, "signer", key.Name())
	assert.NoError(t, closer.Close())

	opts, closer = (&KeyConfig{}).Options()
	unnamed := xmss.New(opts...)
	defer unnamed.Close()
	assert.Equal(t, xmss.DefaultName, unnamed.Name())
	assert.NoError(t, closer.Close())
}

func TestKeyConfig_OptionsRateLimit(t *testing.T) {
	k := KeyConfig{
		Name:      "limited",
		RateLimit: ratelimit.Config{Enabled: true, SignaturesPerMinute: 60, Burst: 1},
	}
	opts, closer := k.Options()
	require.Len(t, opts, 3)

	limiter, ok := closer.(*ratelimit.Limiter)
	require.True(t, ok, "closer must own the limiter")
	assert.True(t, limiter.IsEnabled())
	assert.True(t, limiter.Allow("limited"))
	assert.False(t, limiter.Allow("limited"))

	require.NoError(t, closer.Close())
	require.NoError(t, closer.Close())
}

func TestOpenStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := OpenStore(StoreConfig{Backend: BackendMemory}, "k")
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &storage.MemoryStore{}, store)
	})

	t.Run("file", func(t *testing.T) {
		root := t.TempDir()
		store, err := OpenStore(StoreConfig{Backend: BackendFile, Path: root}, "signer")
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Store(types.Public, []byte("pk")))
		_, err = os.Stat(filepath.Join(root, "signer"))
		assert.NoError(t, err)
	})

	t.Run("badger in memory", func(t *testing.T) {
		cfg := StoreConfig{Backend: BackendBadger}
		cfg.Badger.InMemory = true
		store, err := OpenStore(cfg, "signer")
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Store(types.PrivateStateless, []byte("sk")))
		got, err := store.Load(types.PrivateStateless)
		require.NoError(t, err)
		assert.Equal(t, []byte("sk"), got)
	})

	t.Run("badger uses store path", func(t *testing.T) {
		dir := t.TempDir()
		store, err := OpenStore(StoreConfig{Backend: BackendBadger, Path: dir}, "signer")
		require.NoError(t, err)
		require.NoError(t, store.Close())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	})

	t.Run("invalid key name", func(t *testing.T) {
		_, err := OpenStore(StoreConfig{Backend: BackendFile, Path: t.TempDir()}, "../escape")
		assert.ErrorIs(t, err, storage.ErrInvalidID)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := OpenStore(StoreConfig{Backend: BackendVault}, "signer")
		assert.ErrorContains(t, err, "vault address")
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("slog json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "xmss.log")
		log, closer, err := NewLogger(LoggingConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
		require.NoError(t, err)

		log.Debug("hidden")
		log.Info("signed", logger.Uint64("remaining", 42))
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		out := string(data)
		assert.Contains(t, out, `"msg":"signed"`)
		assert.Contains(t, out, `"remaining":42`)
		assert.NotContains(t, out, "hidden")
	})

	t.Run("slog text", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "xmss.log")
		log, closer, err := NewLogger(LoggingConfig{Level: "debug", Format: "text", File: path})
		require.NoError(t, err)

		log.Debug("reserved", logger.Int("count", 3))
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "msg=reserved count=3")
	})

	t.Run("zap to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "xmss.log")
		log, closer, err := NewLogger(LoggingConfig{Level: "warn", Driver: "zap", File: path})
		require.NoError(t, err)
		assert.IsType(t, &logger.ZapAdapter{}, log)

		log.Info("hidden")
		log.Warn("low budget", logger.String("key", "signer"))
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], `"msg":"low budget"`)
		assert.Contains(t, lines[0], `"key":"signer"`)
	})

	t.Run("stderr", func(t *testing.T) {
		log, closer, err := NewLogger(LoggingConfig{Level: "error"})
		require.NoError(t, err)
		assert.IsType(t, &logger.SlogAdapter{}, log)
		assert.NoError(t, closer.Close())
	})

	t.Run("invalid level", func(t *testing.T) {
		_, _, err := NewLogger(LoggingConfig{Level: "chatty"})
		assert.Error(t, err)
	})
}

func TestMetricsConfig_Apply(t *testing.T) {
	t.Cleanup(metrics.Enable)

	assert.Nil(t, MetricsConfig{Enabled: false}.Apply(context.Background()))
	assert.False(t, metrics.IsEnabled())

	assert.Nil(t, MetricsConfig{Enabled: true}.Apply(context.Background()))
	assert.True(t, metrics.IsEnabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	collector := MetricsConfig{Enabled: true, CollectInterval: time.Hour}.Apply(ctx)
	require.NotNil(t, collector)
	collector.Stop()
}
