// SPDX-License-Identifier: BSD-3-Clause

// Package sysfs provides context-aware, error-mapped read/write primitives
// over the Linux hwmon sysfs text-file interface, plus the unit conversions
// (milli-degree/raw-PWM) the control engine needs on top of them.
package sysfs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ReadText reads a sysfs attribute file and returns its content with the
// trailing newline stripped.
func ReadText(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidValue)
	}

	type result struct {
		val string
		err error
	}
	done := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(path)
		if err != nil {
			done <- result{"", mapFileError(err, path)}
			return
		}
		done <- result{strings.TrimRight(string(data), "\n"), nil}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ReadInt reads a sysfs attribute file and parses it as a base-10 integer.
func ReadInt(ctx context.Context, path string) (int64, error) {
	s, err := ReadText(ctx, path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidValue, path, err)
	}
	return v, nil
}

// WriteText truncates the attribute file and writes value to it in a single
// syscall payload, as hwmon attributes expect.
func WriteText(ctx context.Context, path, value string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidValue)
	}

	done := make(chan error, 1)
	go func() {
		done <- mapFileError(os.WriteFile(path, []byte(value), 0o644), path)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteInt writes an integer value to a sysfs attribute file.
func WriteInt(ctx context.Context, path string, value int64) error {
	return WriteText(ctx, path, strconv.FormatInt(value, 10))
}

// ReadTempC reads a temperature attribute and returns it in degrees
// Celsius. hwmon normally reports milli-degrees, but a handful of legacy
// drivers report whole degrees; values with |v| > 200 are treated as
// milli-degrees, anything smaller is treated as already being Celsius.
func ReadTempC(ctx context.Context, path string) (float64, error) {
	raw, err := ReadInt(ctx, path)
	if err != nil {
		return 0, err
	}
	if raw > 200 || raw < -200 {
		return float64(raw) / 1000.0, nil
	}
	return float64(raw), nil
}

// ReadPercent reads a raw PWM attribute (0..maxRaw) and returns it as a
// duty percentage in [0,100].
func ReadPercent(ctx context.Context, path string, maxRaw int64) (int, error) {
	if maxRaw <= 0 {
		maxRaw = 255
	}
	raw, err := ReadInt(ctx, path)
	if err != nil {
		return 0, err
	}
	pct := int(math.Round(float64(raw) * 100.0 / float64(maxRaw)))
	return clampPercent(pct), nil
}

// WritePercent converts a duty percentage in [0,100] to a raw value in
// [0,maxRaw] and writes it.
func WritePercent(ctx context.Context, path string, pct int, maxRaw int64) error {
	if maxRaw <= 0 {
		maxRaw = 255
	}
	pct = clampPercent(pct)
	raw := int64(math.Round(float64(pct) * float64(maxRaw) / 100.0))
	if raw < 0 {
		raw = 0
	} else if raw > maxRaw {
		raw = maxRaw
	}
	return WriteInt(ctx, path, raw)
}

// ReadEnable reads a pwmN_enable attribute (0=disabled, 1=manual, 2=auto, ...).
func ReadEnable(ctx context.Context, path string) (int, error) {
	v, err := ReadInt(ctx, path)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// WriteEnable writes a pwmN_enable attribute.
func WriteEnable(ctx context.Context, path string, mode int) error {
	return WriteInt(ctx, path, int64(mode))
}

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func mapFileError(err error, path string) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if os.IsPermission(err) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	}
	var pe *os.PathError
	if errors.As(err, &pe) {
		var errno syscall.Errno
		if errors.As(pe.Err, &errno) && errno == syscall.EINVAL {
			return fmt.Errorf("%w: %s: %w", ErrInvalidValue, path, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, path, err)
}
