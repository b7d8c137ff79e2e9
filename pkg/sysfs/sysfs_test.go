// SPDX-License-Identifier: BSD-3-Clause

package sysfs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteTextRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attr")
	require.NoError(t, WriteText(context.Background(), path, "hello"))

	got, err := ReadText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestReadTextStripsTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attr")
	require.NoError(t, WriteText(context.Background(), path, "128\n"))

	got, err := ReadText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "128", got)
}

func TestReadTextNotFound(t *testing.T) {
	_, err := ReadText(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadTextEmptyPath(t *testing.T) {
	_, err := ReadText(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestReadIntInvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attr")
	require.NoError(t, WriteText(context.Background(), path, "not-a-number"))

	_, err := ReadInt(context.Background(), path)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestReadTempC_WholeDegreesBelowThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp1_input")
	require.NoError(t, WriteInt(context.Background(), path, 45))

	got, err := ReadTempC(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 45.0, got)
}

func TestReadTempC_MilliDegreesAboveThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp1_input")
	require.NoError(t, WriteInt(context.Background(), path, 45123))

	got, err := ReadTempC(context.Background(), path)
	require.NoError(t, err)
	assert.InDelta(t, 45.123, got, 1e-9)
}

func TestReadTempC_NegativeMilliDegrees(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp1_input")
	require.NoError(t, WriteInt(context.Background(), path, -5000))

	got, err := ReadTempC(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, -5.0, got)
}

func TestReadWritePercentRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwm1")
	require.NoError(t, WritePercent(context.Background(), path, 50, 255))

	raw, err := ReadInt(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(128), raw) // round(50*255/100) = 128

	pct, err := ReadPercent(context.Background(), path, 255)
	require.NoError(t, err)
	assert.Equal(t, 50, pct)
}

func TestWritePercentClampsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwm1")

	require.NoError(t, WritePercent(context.Background(), path, 150, 255))
	raw, err := ReadInt(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(255), raw)

	require.NoError(t, WritePercent(context.Background(), path, -10, 255))
	raw, err = ReadInt(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), raw)
}

func TestReadPercentDefaultsMaxRawWhenZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwm1")
	require.NoError(t, WriteInt(context.Background(), path, 255))

	pct, err := ReadPercent(context.Background(), path, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, pct)
}

func TestEnableRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwm1_enable")
	require.NoError(t, WriteEnable(context.Background(), path, 2))

	mode, err := ReadEnable(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, mode)
}

func TestContextCancellationDuringRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attr")
	require.NoError(t, WriteText(context.Background(), path, "1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadText(ctx, path)
	assert.True(t, errors.Is(err, context.Canceled) || err == nil)
}
