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

package logger

import (
	"errors"
	"testing"
	"time"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" Warn ", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFieldHelpers(t *testing.T) {
	err := errors.New("boom")
	tests := []struct {
		field Field
		key   string
		value interface{}
	}{
		{String("key", "value"), "key", "value"},
		{Int("count", 42), "count", 42},
		{Int64("big", int64(1) << 40), "big", int64(1) << 40},
		{Uint64("remaining", 1024), "remaining", uint64(1024)},
		{Float64("pct", 12.5), "pct", 12.5},
		{Bool("ephemeral", true), "ephemeral", true},
		{Duration("elapsed", time.Second), "elapsed", time.Second},
		{Error(err), "error", err},
		{Any("ranges", []int{1, 2}), "ranges", []int{1, 2}},
		{Stringer("level", LevelWarn), "level", "WARN"},
	}

	for _, tt := range tests {
		if tt.field.Key != tt.key {
			t.Errorf("Key = %v, want %v", tt.field.Key, tt.key)
		}
		if _, isSlice := tt.value.([]int); isSlice {
			continue
		}
		if tt.field.Value != tt.value {
			t.Errorf("%s: Value = %v, want %v", tt.key, tt.field.Value, tt.value)
		}
	}
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NewNoop()
	l.Debug("x")
	l.Info("x", String("k", "v"))
	l.Warn("x")
	l.Error("x", Error(errors.New("boom")))

	if l.With(String("k", "v")) == nil {
		t.Error("With() returned nil")
	}
	if l.WithError(errors.New("boom")) == nil {
		t.Error("WithError() returned nil")
	}
}
