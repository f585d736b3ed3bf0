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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jeremyhahn/go-xmss/pkg/adapters/logger"
	"github.com/jeremyhahn/go-xmss/pkg/metrics"
	"github.com/jeremyhahn/go-xmss/pkg/ratelimit"
	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/storage/badger"
	"github.com/jeremyhahn/go-xmss/pkg/storage/file"
	"github.com/jeremyhahn/go-xmss/pkg/storage/redis"
	"github.com/jeremyhahn/go-xmss/pkg/storage/vault"
	"github.com/jeremyhahn/go-xmss/pkg/xmss"
)

// OpenStore opens the state store for the key called keyName on the
// configured backend. The caller owns the returned store and must close it.
func OpenStore(cfg StoreConfig, keyName string) (storage.StateStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store storage.StateStore
		err   error
	)
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		store = storage.NewMemoryStore()
	case BackendFile:
		store, err = file.New(cfg.Path, keyName)
	case BackendBadger:
		bc := cfg.Badger
		if bc.Dir == "" {
			bc.Dir = cfg.Path
		}
		store, err = badger.Open(bc, keyName)
	case BackendRedis:
		rc := cfg.Redis
		store, err = redis.New(&rc, keyName)
	case BackendVault:
		vc := cfg.Vault
		store, err = vault.New(&vc, keyName)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewLogger builds the configured logger. The returned closer flushes and
// releases the log file; it is a no-op when logging to stderr.
func NewLogger(cfg LoggingConfig) (logger.Logger, io.Closer, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays, // days
			Compress:   cfg.Compress,
		}
		out, closer = rotating, rotating
	}

	if strings.EqualFold(cfg.Driver, "zap") {
		zl := logger.NewZapProduction(level, zapcore.Lock(zapcore.AddSync(out)))
		return zl, closeFunc(func() error {
			_ = zl.Sync()
			return closer.Close()
		}), nil
	}

	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return logger.NewSlogAdapter(&logger.SlogConfig{Handler: handler, Level: level}), closer, nil
}

// Options returns the handle options described by the key settings. An
// enabled rate limit gets its own limiter; the returned closer stops its
// cleanup worker and must be closed once the handle is no longer used.
func (k *KeyConfig) Options() ([]xmss.Option, io.Closer) {
	opts := []xmss.Option{
		xmss.WithName(k.Name),
		xmss.WithPartitions(k.Partitions),
	}
	if !k.RateLimit.Enabled {
		return opts, nopCloser{}
	}
	rl := k.RateLimit
	limiter := ratelimit.New(&rl)
	return append(opts, xmss.WithSignLimiter(limiter)), limiter
}

// Apply switches metric recording on or off and, when enabled with a
// positive interval, starts the resource collector. The collector stops
// with ctx. A nil collector is returned when none was started.
func (m MetricsConfig) Apply(ctx context.Context) *metrics.ResourceCollector {
	if !m.Enabled {
		metrics.Disable()
		return nil
	}
	metrics.Enable()
	if m.CollectInterval <= 0 {
		return nil
	}
	return metrics.StartResourceCollector(ctx, m.CollectInterval)
}

func slogLevel(level logger.Level) slog.Level {
	switch level {
	case logger.LevelDebug:
		return slog.LevelDebug
	case logger.LevelWarn:
		return slog.LevelWarn
	case logger.LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closeFunc func() error

func (f closeFunc) Close() error { return f() }
