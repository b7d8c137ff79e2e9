// SPDX-License-Identifier: BSD-3-Clause

package daemon

import (
	"log/slog"
	"time"

	"github.com/linuxfancontrol/lfcd/pkg/gpu"
	"github.com/linuxfancontrol/lfcd/pkg/log"
	"github.com/linuxfancontrol/lfcd/pkg/telemetry"
)

type config struct {
	name         string
	version      string
	id           string
	disableLogo  bool
	otelSetup    func()
	logger       *slog.Logger
	configPath   string
	profilesPath string
	shmPath      string
	host         string
	port         int
	hwmonRefresh time.Duration
	gpuSampler   gpu.Sampler
}

// Option configures a Daemon at construction time, following the
// functional-options pattern every package in this tree uses.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithName sets the daemon's supervision-tree name.
func WithName(name string) Option {
	return optionFunc(func(c *config) { c.name = name })
}

// WithVersion sets the version string reported by the version RPC method.
func WithVersion(version string) Option {
	return optionFunc(func(c *config) { c.version = version })
}

// WithDisableLogo suppresses the startup banner.
func WithDisableLogo(disable bool) Option {
	return optionFunc(func(c *config) { c.disableLogo = disable })
}

// WithOtelSetup overrides the OpenTelemetry bootstrap called once at
// startup; defaults to telemetry.DefaultSetup.
func WithOtelSetup(setup func()) Option {
	return optionFunc(func(c *config) { c.otelSetup = setup })
}

// WithLogger overrides the structured logger; defaults to
// log.NewDefaultLogger().
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(c *config) { c.logger = logger })
}

// WithConfigPath sets the path the daemon's config.Store loads from
// and, absent an explicit config.save path argument, saves back to.
func WithConfigPath(path string) Option {
	return optionFunc(func(c *config) { c.configPath = path })
}

// WithProfilesPath sets the directory profile.list/load/save operate on.
func WithProfilesPath(path string) Option {
	return optionFunc(func(c *config) { c.profilesPath = path })
}

// WithShmPath sets the shared-memory name or fallback file path
// telemetry snapshots are published to.
func WithShmPath(path string) Option {
	return optionFunc(func(c *config) { c.shmPath = path })
}

// WithListenAddr sets the RPC server's bind host and port.
func WithListenAddr(host string, port int) Option {
	return optionFunc(func(c *config) {
		c.host = host
		c.port = port
	})
}

// WithHwmonRefresh sets the interval between inventory re-scans and
// telemetry publishes (spec §4.J's hwmonRefreshMs, default 500ms).
func WithHwmonRefresh(d time.Duration) Option {
	return optionFunc(func(c *config) { c.hwmonRefresh = d })
}

// WithGpuSampler overrides the GPU sample source used by the gpu.list
// RPC method and the telemetry snapshot's gpus field; defaults to a
// stub reporting no GPUs.
func WithGpuSampler(s gpu.Sampler) Option {
	return optionFunc(func(c *config) { c.gpuSampler = s })
}

func defaultConfig() *config {
	return &config{
		name:         "lfcd",
		version:      "0.1.0",
		otelSetup:    telemetry.DefaultSetup,
		logger:       log.NewDefaultLogger(),
		profilesPath: "/etc/lfcd/profiles",
		shmPath:      "/lfc.telemetry",
		host:         "127.0.0.1",
		port:         8732,
		hwmonRefresh: 500 * time.Millisecond,
		gpuSampler:   gpu.StubSampler{},
	}
}
