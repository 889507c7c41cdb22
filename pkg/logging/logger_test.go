// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"nonsense", LevelInfo},
		{"  debug  ", LevelDebug},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "input %q", tt.input)
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestNew_FileLoggingWritesJSON(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, Service: "blueprint", LogDir: dir})

	logger.Info("profile generated", "subject_id", "subj-1")
	require.NoError(t, logger.Close())

	name := "blueprint_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "profile generated", record["msg"])
	assert.Equal(t, "subj-1", record["subject_id"])
	assert.Equal(t, "blueprint", record["service"])
}

func TestNew_LevelFiltersFileOutput(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelWarn, Service: "blueprint", LogDir: dir})

	logger.Info("filtered")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	name := "blueprint_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered")
	assert.Contains(t, string(data), "kept")
}

func TestNew_BadLogDirDegradesToStderr(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	// LogDir points at a plain file; MkdirAll fails, logging continues.
	logger := New(Config{Level: LevelInfo, LogDir: file})
	logger.Info("still works")
	assert.NoError(t, logger.Close())
}

func TestClose_IdempotentAndSafeWithoutFile(t *testing.T) {
	logger := Default()
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())

	dir := t.TempDir()
	fileLogger := New(Config{Level: LevelInfo, Service: "blueprint", LogDir: dir})
	assert.NoError(t, fileLogger.Close())
	assert.NoError(t, fileLogger.Close())
}

func TestWith_DoesNotOwnParentFile(t *testing.T) {
	dir := t.TempDir()
	parent := New(Config{Level: LevelInfo, Service: "blueprint", LogDir: dir})
	child := parent.With("component", "store")

	child.Info("child writes through parent handlers")
	assert.NoError(t, child.Close())

	// Parent file must still be open for writes after the child closes.
	parent.Info("parent still writes")
	require.NoError(t, parent.Close())

	name := "blueprint_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), "child writes through parent handlers")
	assert.Contains(t, string(data), "parent still writes")
}
