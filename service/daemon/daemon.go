// SPDX-License-Identifier: BSD-3-Clause

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"cirello.io/oversight/v2"
	"github.com/arunsworld/nursery"

	cfgstore "github.com/linuxfancontrol/lfcd/pkg/config"
	"github.com/linuxfancontrol/lfcd/pkg/detect"
	"github.com/linuxfancontrol/lfcd/pkg/engine"
	"github.com/linuxfancontrol/lfcd/pkg/hwmon"
	"github.com/linuxfancontrol/lfcd/pkg/id"
	"github.com/linuxfancontrol/lfcd/pkg/job"
	"github.com/linuxfancontrol/lfcd/pkg/log"
	"github.com/linuxfancontrol/lfcd/pkg/mount"
	"github.com/linuxfancontrol/lfcd/pkg/process"
	"github.com/linuxfancontrol/lfcd/pkg/profile"
	"github.com/linuxfancontrol/lfcd/pkg/rpc"
	"github.com/linuxfancontrol/lfcd/pkg/telemetry"
	"github.com/linuxfancontrol/lfcd/pkg/telemetry/shm"
)

const startupBanner = `lfcd - linux fan control daemon`

const persistentIDDir = "/var/lib/lfcd"

// Daemon orchestrates hwmon discovery, the control engine, on-demand
// detection, and the JSON-RPC server under a single supervision tree.
// The zero value is not usable; construct with New.
type Daemon struct {
	cfg *config

	store      *cfgstore.Store
	discoverer *hwmon.Discoverer
	engine     *engine.Engine
	jobs       *job.Manager
	publisher  *shm.Publisher
	registry   *rpc.Registry
	server     *rpc.Server

	mu            sync.Mutex
	inv           *hwmon.Inventory
	activeName    string
	activeProfile *profile.Profile
	detectWorker  *detect.Worker
	cancel        context.CancelFunc
	restart       bool
}

// New constructs a Daemon from opts, applying spec defaults for
// anything not overridden.
func New(opts ...Option) *Daemon {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return &Daemon{cfg: cfg}
}

// Name returns the daemon's supervision-tree name.
func (d *Daemon) Name() string {
	return d.cfg.name
}

// Run initializes every subsystem and blocks under supervision until
// ctx is canceled, restoring original PWM enable modes before
// returning.
func (d *Daemon) Run(ctx context.Context) (err error) {
	if d.cfg.name == "" {
		return ErrNameEmpty
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %w: %v", d.Name(), ErrPanicked, r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	d.cfg.otelSetup()
	l := log.GetGlobalLogger()
	if d.cfg.logger != nil {
		l = d.cfg.logger
	}

	if d.cfg.id == "" {
		idStr, err := id.GetOrCreatePersistentID(d.Name(), persistentIDDir)
		if err != nil {
			l.WarnContext(ctx, "Failed to get/create persistent ID, using ephemeral ID", "error", err)
			d.cfg.id = id.NewID()
		} else {
			d.cfg.id = idStr
		}
	}

	if !d.cfg.disableLogo {
		l.Info(startupBanner)
	}

	l.InfoContext(ctx, "Checking filesystem mounts", "service", d.cfg.name)
	if err := mount.SetupMounts(); err != nil {
		l.WarnContext(ctx, "Failed to setup mounts correctly, continuing anyways", "service", d.cfg.name, "error", err)
	}

	if err := d.setupStore(l); err != nil {
		return err
	}
	if err := d.setupHwmon(ctx, l); err != nil {
		return err
	}
	d.setupEngine()
	d.jobs = job.NewManager()
	d.publisher = shm.NewPublisher(d.cfg.shmPath)

	if name, _ := d.store.Get("profileName"); name != nil {
		if s, _ := name.(string); s != "" {
			path, err := profilePath(d.cfg.profilesPath, s)
			if err != nil {
				l.WarnContext(ctx, "Refusing to load last-active profile", "profile", s, "error", err)
			} else if p, err := profile.Load(path); err == nil {
				if err := d.applyProfile(s, p); err != nil {
					l.WarnContext(ctx, "Failed to apply last-active profile", "profile", s, "error", err)
				}
			} else {
				l.WarnContext(ctx, "Failed to load last-active profile", "profile", s, "error", err)
			}
		}
	}

	d.registry = rpc.NewRegistry()
	rpc.RegisterHandlers(d.registry, d.buildDeps())
	d.server = rpc.NewServer(d.registry)

	supervisionTree := oversight.New(
		oversight.NeverHalt(),
		oversight.DefaultRestartStrategy(),
		oversight.WithLogger(log.NewOversightLogger(l)),
	)

	timeout := 10 * time.Second

	children := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"engine-tick", d.runEngineTick},
		{"telemetry-publish", d.runTelemetryPublish},
		{"rpc-server", d.runRPCServer},
	}
	for _, c := range children {
		if err := supervisionTree.Add(
			process.New(c.name, c.fn),
			oversight.Transient(),
			oversight.Timeout(timeout),
			c.name,
		); err != nil {
			return fmt.Errorf("%w %s: %w", ErrAddChild, c.name, err)
		}
	}

	supervise := func(ctx context.Context, c chan error) {
		c <- supervisionTree.Start(ctx)
	}

	l.InfoContext(ctx, "Starting child routines", "service", d.cfg.name)
	runErr := nursery.RunConcurrentlyWithContext(ctx, supervise)

	l.InfoContext(ctx, "Shutting down, restoring PWM modes", "service", d.cfg.name)
	d.engine.Reset()
	if err := d.server.Close(); err != nil {
		l.WarnContext(ctx, "Error closing RPC server", "error", err)
	}

	return runErr
}

func (d *Daemon) setupStore(l *slog.Logger) error {
	d.store = cfgstore.New()
	if d.cfg.configPath != "" {
		if err := d.store.Load(d.cfg.configPath); err != nil {
			return fmt.Errorf("loading config at %s: %w", d.cfg.configPath, err)
		}
	}
	return nil
}

func (d *Daemon) setupHwmon(ctx context.Context, l *slog.Logger) error {
	d.discoverer = hwmon.NewDiscoverer()
	inv, err := d.discoverer.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scanning hwmon tree: %w", err)
	}
	d.mu.Lock()
	d.inv = inv
	d.mu.Unlock()
	return nil
}

func (d *Daemon) setupEngine() {
	var opts []engine.Option
	if ms, ok := asInt(mustGet(d.store, "tickMs")); ok {
		opts = append(opts, engine.WithTickInterval(time.Duration(ms)*time.Millisecond))
	}
	if ms, ok := asInt(mustGet(d.store, "forceTickMs")); ok {
		opts = append(opts, engine.WithForceTickInterval(time.Duration(ms)*time.Millisecond))
	}
	if dc, ok := asFloat(mustGet(d.store, "deltaC")); ok {
		opts = append(opts, engine.WithDeltaC(dc))
	}

	d.engine = engine.New(opts...)
	d.mu.Lock()
	inv := d.inv
	d.mu.Unlock()
	d.engine.SetInventory(inv)
}

func mustGet(s *cfgstore.Store, key string) any {
	v, err := s.Get(key)
	if err != nil {
		return nil
	}
	return v
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func (d *Daemon) applyProfile(name string, p *profile.Profile) error {
	if err := d.engine.ApplyProfile(p); err != nil {
		return err
	}
	d.mu.Lock()
	d.activeName = name
	d.activeProfile = p
	d.mu.Unlock()
	return d.engine.Enable(context.Background(), true)
}

func (d *Daemon) runEngineTick(ctx context.Context) error {
	interval := 200 * time.Millisecond
	if ms, ok := asInt(mustGet(d.store, "tickMs")); ok && ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.engine.Tick(ctx)
		}
	}
}

func (d *Daemon) runTelemetryPublish(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.hwmonRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.mu.Lock()
			inv := d.inv
			d.mu.Unlock()
			if err := d.discoverer.Refresh(ctx, inv); err != nil {
				continue
			}
			snap := d.buildSnapshot()
			_ = d.publisher.PublishSnapshot(snap)
		}
	}
}

func (d *Daemon) runRPCServer(ctx context.Context) error {
	return d.server.ListenAndServe(ctx, d.cfg.host, d.cfg.port)
}

func (d *Daemon) buildSnapshot() telemetry.Snapshot {
	d.mu.Lock()
	inv := d.inv
	active := d.activeProfile
	d.mu.Unlock()

	var gpus []telemetry.GpuSummary
	if d.cfg.gpuSampler != nil {
		gpus, _ = d.cfg.gpuSampler.Sample(context.Background())
	}
	return telemetry.BuildSnapshot(inv, d.engine.Status(), active, gpus)
}

func (d *Daemon) buildDeps() *rpc.Deps {
	return &rpc.Deps{
		DaemonName:    d.cfg.name,
		DaemonVersion: d.cfg.version,

		Engine: d.engine,
		Jobs:   d.jobs,
		Config: d.store,

		ProfilesPath: d.cfg.profilesPath,

		Inventory: func() *hwmon.Inventory {
			d.mu.Lock()
			defer d.mu.Unlock()
			return d.inv
		},
		Rescan: func(ctx context.Context) error {
			d.mu.Lock()
			inv := d.inv
			d.mu.Unlock()
			return d.discoverer.Refresh(ctx, inv)
		},

		GpuSampler: d.cfg.gpuSampler,

		ActiveProfile: func() (string, *profile.Profile) {
			d.mu.Lock()
			defer d.mu.Unlock()
			return d.activeName, d.activeProfile
		},
		SetActiveProfile: func(name string, p *profile.Profile) error {
			return d.applyProfile(name, p)
		},

		Snapshot: d.buildSnapshot,

		StartDetect: func(ctx context.Context, cfg detect.RampConfig) error {
			d.mu.Lock()
			inv := d.inv
			w := detect.NewWorker(inv, cfg)
			d.detectWorker = w
			d.mu.Unlock()

			// Exclusive control handoff (spec §5): the engine tick must not
			// write any pwm path while detection is ramping the same
			// hardware. Paused on start, resumed once the worker's restore
			// pass (run on completion, abort, or error) has finished.
			d.engine.Pause()
			if err := w.Start(ctx); err != nil {
				d.engine.Resume()
				return err
			}
			go func() {
				w.Wait()
				d.engine.Resume()
			}()
			return nil
		},
		AbortDetect: func() error {
			d.mu.Lock()
			w := d.detectWorker
			d.mu.Unlock()
			if w == nil {
				return detect.ErrNotRunning
			}
			return w.Abort()
		},
		DetectStatus: func() detect.Status {
			d.mu.Lock()
			w := d.detectWorker
			d.mu.Unlock()
			if w == nil {
				return detect.Status{}
			}
			return w.Status()
		},
		DetectResults: func() []int64 {
			d.mu.Lock()
			w := d.detectWorker
			d.mu.Unlock()
			if w == nil {
				return nil
			}
			return w.Results()
		},
		DetectCoupling: func(ctx context.Context, cfg detect.CouplingConfig) ([]detect.CouplingResult, error) {
			d.mu.Lock()
			inv := d.inv
			d.mu.Unlock()

			// Same exclusive handoff as StartDetect; DetectCoupling runs
			// synchronously so pause/resume simply bracket the call.
			d.engine.Pause()
			defer d.engine.Resume()
			return detect.DetectCoupling(ctx, inv, cfg)
		},

		ImportProfile: d.importProfile,

		Shutdown: func() error {
			d.requestStop(false)
			return nil
		},
		Restart: func() error {
			d.requestStop(true)
			return nil
		},
	}
}

// requestStop cancels the daemon's run context, arranging for Run to
// return; Restarting reports whether the caller (cmd/lfcd) should start
// a fresh Daemon afterward.
func (d *Daemon) requestStop(restart bool) {
	d.mu.Lock()
	d.restart = restart
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Restarting reports whether the most recent daemon.restart RPC call
// requested a restart rather than a shutdown. Callers should check this
// immediately after Run returns.
func (d *Daemon) Restarting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restart
}

// importProfile runs on the job manager's own goroutine: it validates a
// candidate profile file and, if asked, spins up a short detection pass
// to confirm every control's PWM actually moves a fan before the caller
// commits the import.
func (d *Daemon) importProfile(ctx context.Context, path, asName string, validateDetect bool, rpmMin, timeoutMs int, progress job.Progress) (*profile.Profile, error) {
	progress(10, "loading profile")
	p, err := profile.Load(path)
	if err != nil {
		return nil, err
	}

	progress(40, "validating profile")
	if _, err := profile.Validate(p); err != nil {
		return nil, err
	}

	if validateDetect {
		progress(60, "probing fan response")
		timeout := time.Duration(timeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		d.mu.Lock()
		inv := d.inv
		d.mu.Unlock()
		w := detect.NewWorker(inv, detect.DefaultRampConfig())
		d.engine.Pause()
		defer d.engine.Resume()
		if err := w.Start(probeCtx); err != nil {
			return nil, err
		}
		<-probeCtx.Done()
		_ = w.Abort()

		for _, rpm := range w.Results() {
			if rpm < int64(rpmMin) {
				return nil, fmt.Errorf("%w: observed peak %d RPM below minimum %d", profile.ErrInvalidCurve, rpm, rpmMin)
			}
		}
	}

	progress(100, "done")
	return p, nil
}

func profilePath(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid profile name %q", name)
	}
	return filepath.Join(dir, name+".json"), nil
}
