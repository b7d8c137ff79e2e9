// SPDX-License-Identifier: BSD-3-Clause

//go:build linux
// +build linux

// Package shm publishes the daemon's periodic state snapshot (hwmon
// inventory, GPU samples, and active profile summary) to a POSIX shared
// memory object so other processes (a GUI, a CLI query tool) can read it
// without going through the RPC server. It falls back to a plain file
// when shared memory is unavailable.
//
// Layout and name normalization are grounded on the original
// implementation's ShmTelemetry: a JSON blob replaces the entire buffer
// on every publish, there is no framing or versioning beyond the
// "version" field inside the JSON document itself.
package shm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/linuxfancontrol/lfcd/pkg/file"
)

const defaultShmName = "/lfc.telemetry"

// NormalizeShmName applies the daemon's shared-memory naming rule: a bare
// name is given a leading slash; a path that already lives under
// /dev/shm/ is treated as a plain file path instead (returns "", meaning
// "no POSIX shm object, file only"); any other absolute path with a
// directory part is reduced to "/" plus its basename; a single-component
// "/name" is used verbatim.
func NormalizeShmName(pathOrName string) string {
	if pathOrName == "" {
		return defaultShmName
	}
	if pathOrName[0] != '/' {
		return "/" + pathOrName
	}
	if strings.HasPrefix(pathOrName, "/dev/shm/") {
		return ""
	}
	if strings.Contains(pathOrName[1:], "/") {
		return "/" + filepath.Base(pathOrName)
	}
	return pathOrName
}

// DefaultFallbackForShm derives the /dev/shm path a POSIX name lives at,
// for callers that want to read it back without shm_open semantics.
func DefaultFallbackForShm(shmNameNormalized string) string {
	name := strings.TrimPrefix(shmNameNormalized, "/")
	if name == "" {
		name = "lfc.telemetry"
	}
	return filepath.Join("/dev/shm", name)
}

// Publisher writes JSON snapshots to a POSIX shared memory object and/or
// a fallback file.
type Publisher struct {
	mu           sync.Mutex
	shmName      string
	fallbackPath string
}

// NewPublisher builds a Publisher from a single configured path-or-name
// value, same as the daemon's shmPath config key: a bare name becomes a
// POSIX shm object with a derived /dev/shm fallback path; an explicit
// /dev/shm/... path disables the shm object and writes directly to that
// file; any other absolute path becomes a shm object named after its
// basename.
func NewPublisher(shmPathOrName string) *Publisher {
	shmName := NormalizeShmName(shmPathOrName)
	var fallback string
	switch {
	case shmName == "" && shmPathOrName != "":
		fallback = shmPathOrName
	case shmName == "":
		fallback = DefaultFallbackForShm(defaultShmName)
	default:
		fallback = DefaultFallbackForShm(shmName)
	}
	return &Publisher{shmName: shmName, fallbackPath: fallback}
}

// NewPublisherWithFallback builds a Publisher with an explicit fallback
// path instead of the derived default.
func NewPublisherWithFallback(shmName, fallbackPath string) *Publisher {
	name := NormalizeShmName(shmName)
	if fallbackPath == "" {
		fallbackPath = DefaultFallbackForShm(name)
	}
	return &Publisher{shmName: name, fallbackPath: fallbackPath}
}

// PublishSnapshot marshals v as JSON and writes it to shared memory
// and/or the fallback file. It only returns an error when both sinks
// fail (or the only configured sink fails); a successful shm write with
// a failing fallback, or vice versa, is not an error.
func (p *Publisher) PublishSnapshot(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling telemetry snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	shmErr := p.publishToShm(data)
	var fileErr error
	if p.fallbackPath != "" {
		fileErr = p.publishToFile(data)
	}

	if shmErr == nil || fileErr == nil {
		return nil
	}
	return fmt.Errorf("shm publish failed (%v), file fallback failed (%w)", shmErr, fileErr)
}

func (p *Publisher) publishToShm(data []byte) error {
	if p.shmName == "" {
		return fmt.Errorf("no shm object configured")
	}
	path := filepath.Join("/dev/shm", strings.TrimPrefix(p.shmName, "/"))

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0660)
	if err != nil {
		return fmt.Errorf("shm_open %s: %w", p.shmName, err)
	}
	defer unix.Close(fd)

	size := len(data) + 1
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return fmt.Errorf("ftruncate %s: %w", p.shmName, err)
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", p.shmName, err)
	}
	defer unix.Munmap(mem)

	copy(mem, data)
	mem[len(data)] = 0

	if err := unix.Msync(mem, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync %s: %w", p.shmName, err)
	}
	return nil
}

func (p *Publisher) publishToFile(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p.fallbackPath), 0o755); err != nil {
		return err
	}
	return file.AtomicReplaceFile(p.fallbackPath, data, 0o644)
}
