// SPDX-License-Identifier: BSD-3-Clause

//go:build linux
// +build linux

package shm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoDevShm(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/shm"); err != nil {
		t.Skip("no /dev/shm available in this environment")
	}
}

func TestNormalizeShmName(t *testing.T) {
	assert.Equal(t, "/lfc.telemetry", NormalizeShmName(""))
	assert.Equal(t, "/custom", NormalizeShmName("custom"))
	assert.Equal(t, "/custom", NormalizeShmName("/custom"))
	assert.Equal(t, "", NormalizeShmName("/dev/shm/custom"))
}

func TestDefaultFallbackForShm(t *testing.T) {
	assert.Equal(t, filepath.FromSlash("/dev/shm/lfc.telemetry"), DefaultFallbackForShm("/lfc.telemetry"))
	assert.Equal(t, filepath.FromSlash("/dev/shm/foo"), DefaultFallbackForShm("/foo"))
}

func TestPublisher_PublishSnapshotFileFallback(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "telemetry.json")
	p := NewPublisherWithFallback("/dev/shm/unused-in-this-test", fallback)
	p.shmName = "" // force file-only path without touching real /dev/shm

	require.NoError(t, p.PublishSnapshot(map[string]any{"engineEnabled": true}))

	data, err := os.ReadFile(fallback)
	require.NoError(t, err)
	assert.Contains(t, string(data), "engineEnabled")
}

func TestPublisher_PublishSnapshotShm(t *testing.T) {
	skipIfNoDevShm(t)
	name := "lfcd-test-telemetry"
	p := NewPublisher(name)
	defer os.Remove(filepath.Join("/dev/shm", name))

	require.NoError(t, p.PublishSnapshot(map[string]any{"version": "1"}))

	data, err := os.ReadFile(filepath.Join("/dev/shm", name))
	require.NoError(t, err)
	assert.Contains(t, string(data), "version")
}
