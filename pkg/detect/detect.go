// SPDX-License-Identifier: BSD-3-Clause

// Package detect implements the two hardware-discovery workflows of
// spec §4.E: a ramp-and-observe worker that finds each PWM's peak RPM by
// driving it from a low duty to full duty, and a ΔT coupling heuristic
// that finds which temperature sensor reacts to a given PWM's fan.
//
// Tuning constants are grounded on the original implementation's
// Detection.cpp/hwmon.cpp ramp and coupling routines.
package detect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linuxfancontrol/lfcd/pkg/hwmon"
	"github.com/linuxfancontrol/lfcd/pkg/sysfs"
)

// Phase reports what the ramp worker is currently doing for a channel.
type Phase int32

const (
	PhaseIdle  Phase = 0
	PhaseRamp  Phase = 1
	PhaseSettle Phase = 2
)

// RampConfig tunes the ramp-and-observe worker.
type RampConfig struct {
	SettleMs         int
	SpinupPollMs     int
	RampStartPercent int
	RampEndPercent   int
}

// DefaultRampConfig matches the original implementation's tuning.
func DefaultRampConfig() RampConfig {
	return RampConfig{
		SettleMs:         250,
		SpinupPollMs:     100,
		RampStartPercent: 30,
		RampEndPercent:   100,
	}
}

// Status is a snapshot of a ramp Worker's progress.
type Status struct {
	Running      bool
	CurrentIndex int
	Total        int
	Phase        Phase
}

type savedMode struct {
	pwmPath    string
	enablePath string
	enableVal  int
	hadEnable  bool
	rawVal     int64
}

// Worker ramps every PWM in an inventory from RampStartPercent to
// RampEndPercent and records the peak RPM observed on its associated
// tach, matched by index (falling back to the first fan when a PWM has
// no fan at the same index, same as the original heuristic).
type Worker struct {
	inv *hwmon.Inventory
	cfg RampConfig

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	currentIndex atomic.Int64
	phase        atomic.Int64
	results      []int64
}

// NewWorker builds a ramp worker over inv with cfg. A zero or negative
// SettleMs, SpinupPollMs or RampEndPercent is replaced by
// DefaultRampConfig's value; RampStartPercent is used as given, so a
// zero start ramps from 0%.
func NewWorker(inv *hwmon.Inventory, cfg RampConfig) *Worker {
	d := DefaultRampConfig()
	if cfg.SettleMs <= 0 {
		cfg.SettleMs = d.SettleMs
	}
	if cfg.SpinupPollMs <= 0 {
		cfg.SpinupPollMs = d.SpinupPollMs
	}
	if cfg.RampEndPercent <= 0 {
		cfg.RampEndPercent = d.RampEndPercent
	}
	return &Worker{inv: inv, cfg: cfg, results: make([]int64, len(inv.Pwms))}
}

// Start launches the ramp in a background goroutine. It returns
// ErrAlreadyRunning if a run is already in progress.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Abort requests cancellation and blocks until the worker has restored
// every PWM it touched.
func (w *Worker) Abort() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return ErrNotRunning
	}
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	<-done
	return nil
}

// Wait blocks until the current (or most recently started) run has
// finished, including its restore-on-exit pass. It returns immediately
// if Start has never been called.
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a ramp is currently in progress.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Status returns the worker's current progress.
func (w *Worker) Status() Status {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	return Status{
		Running:      running,
		CurrentIndex: int(w.currentIndex.Load()),
		Total:        len(w.inv.Pwms),
		Phase:        Phase(w.phase.Load()),
	}
}

// Results returns the peak RPM observed per PWM index, in inventory order.
func (w *Worker) Results() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]int64, len(w.results))
	copy(out, w.results)
	return out
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.phase.Store(int64(PhaseIdle))
	}()

	saved := w.captureOriginals(ctx)
	defer w.restoreOriginals(ctx, saved)

	for _, pwm := range w.inv.Pwms {
		if pwm.EnablePath != "" {
			_ = sysfs.WriteEnable(ctx, pwm.EnablePath, 1)
		}
	}

	start := clampPct(w.cfg.RampStartPercent)
	end := clampPct(w.cfg.RampEndPercent)
	step := (end - start) / 10
	if step < 1 {
		step = 1
	}

	for i, pwm := range w.inv.Pwms {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		w.currentIndex.Store(int64(i))
		w.phase.Store(int64(PhaseRamp))

		var peak int64
		for pct := start; pct <= end; pct += step {
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			_ = sysfs.WritePercent(ctx, pwm.PwmPath, pct, pwm.MaxRaw)
			if !sleepCtx(ctx, w.stop, time.Duration(w.cfg.SpinupPollMs)*time.Millisecond) {
				return
			}
			rpm := w.readAssociatedTach(ctx, i)
			if rpm > peak {
				peak = rpm
			}
		}
		w.results[i] = peak

		w.phase.Store(int64(PhaseSettle))
		if !sleepCtx(ctx, w.stop, time.Duration(w.cfg.SettleMs)*time.Millisecond) {
			return
		}
	}
}

func (w *Worker) readAssociatedTach(ctx context.Context, pwmIndex int) int64 {
	var fanPath string
	if pwmIndex < len(w.inv.Fans) {
		fanPath = w.inv.Fans[pwmIndex].InputPath
	} else if len(w.inv.Fans) > 0 {
		fanPath = w.inv.Fans[0].InputPath
	} else {
		return 0
	}
	rpm, err := sysfs.ReadInt(ctx, fanPath)
	if err != nil {
		return 0
	}
	return rpm
}

func (w *Worker) captureOriginals(ctx context.Context) []savedMode {
	saved := make([]savedMode, 0, len(w.inv.Pwms))
	for _, pwm := range w.inv.Pwms {
		s := savedMode{pwmPath: pwm.PwmPath, enablePath: pwm.EnablePath, enableVal: 2}
		if pwm.EnablePath != "" {
			if v, err := sysfs.ReadEnable(ctx, pwm.EnablePath); err == nil {
				s.enableVal = v
				s.hadEnable = true
			}
		}
		if v, err := sysfs.ReadInt(ctx, pwm.PwmPath); err == nil {
			s.rawVal = v
		}
		saved = append(saved, s)
	}
	return saved
}

func (w *Worker) restoreOriginals(ctx context.Context, saved []savedMode) {
	for _, s := range saved {
		_ = sysfs.WriteInt(ctx, s.pwmPath, s.rawVal)
		if s.hadEnable {
			_ = sysfs.WriteEnable(ctx, s.enablePath, s.enableVal)
		}
	}
}

// CouplingConfig tunes DetectCoupling.
type CouplingConfig struct {
	Hold            time.Duration
	MinDeltaC       float64
	RpmDeltaThresh  int64
	TachCheckWindow time.Duration
}

// DefaultCouplingConfig matches the original implementation's defaults.
func DefaultCouplingConfig() CouplingConfig {
	return CouplingConfig{
		Hold:            2 * time.Second,
		MinDeltaC:       1.0,
		RpmDeltaThresh:  30,
		TachCheckWindow: 700 * time.Millisecond,
	}
}

// CouplingResult names the temperature sensor whose reading moved the
// most while one PWM was driven to full duty.
type CouplingResult struct {
	PwmPath       string
	BestTempPath  string
	BestTempLabel string
	DeltaC        float64
}

// DetectCoupling drives each PWM in inv to full duty in turn, watches
// which temperature sensor's reading rises the most, and restores the
// PWM's original enable mode and raw value before moving to the next
// one. It is the alternate, ΔT-based discovery flow exposed by the
// detect.coupling RPC method, distinct from the ramp-based Worker above.
func DetectCoupling(ctx context.Context, inv *hwmon.Inventory, cfg CouplingConfig) ([]CouplingResult, error) {
	d := DefaultCouplingConfig()
	if cfg.Hold <= 0 {
		cfg.Hold = d.Hold
	}
	if cfg.MinDeltaC <= 0 {
		cfg.MinDeltaC = d.MinDeltaC
	}
	if cfg.RpmDeltaThresh <= 0 {
		cfg.RpmDeltaThresh = d.RpmDeltaThresh
	}
	if cfg.TachCheckWindow <= 0 {
		cfg.TachCheckWindow = d.TachCheckWindow
	}

	var results []CouplingResult
	for i, pwm := range inv.Pwms {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		var origEnable int
		hadEnable := false
		if pwm.EnablePath != "" {
			if v, err := sysfs.ReadEnable(ctx, pwm.EnablePath); err == nil {
				origEnable = v
				hadEnable = true
			}
			_ = sysfs.WriteEnable(ctx, pwm.EnablePath, 1)
		}
		origRaw, _ := sysfs.ReadInt(ctx, pwm.PwmPath)

		if err := sysfs.WritePercent(ctx, pwm.PwmPath, 100, pwm.MaxRaw); err != nil {
			restoreOne(ctx, pwm, origRaw, origEnable, hadEnable)
			continue
		}

		hold := cfg.Hold
		if fanPath := associatedFan(inv, i); fanPath != "" {
			rpm0, _ := sysfs.ReadInt(ctx, fanPath)
			if !sleepCtx(ctx, nil, cfg.TachCheckWindow) {
				restoreOne(ctx, pwm, origRaw, origEnable, hadEnable)
				return results, ctx.Err()
			}
			rpm1, _ := sysfs.ReadInt(ctx, fanPath)
			if abs64(rpm1-rpm0) < cfg.RpmDeltaThresh && hold > 2*time.Second {
				hold = 2 * time.Second
			}
		}

		t0 := readAllTemps(ctx, inv)
		if !sleepCtx(ctx, nil, hold) {
			restoreOne(ctx, pwm, origRaw, origEnable, hadEnable)
			return results, ctx.Err()
		}
		t1 := readAllTemps(ctx, inv)

		var bestPath, bestLabel string
		bestDelta := 0.0
		for _, temp := range inv.Temps {
			a, aok := t0[temp.InputPath]
			b, bok := t1[temp.InputPath]
			if !aok || !bok {
				continue
			}
			delta := b - a
			if delta >= cfg.MinDeltaC && delta > bestDelta {
				bestDelta = delta
				bestPath = temp.InputPath
				bestLabel = temp.Label
			}
		}

		restoreOne(ctx, pwm, origRaw, origEnable, hadEnable)

		if bestPath != "" {
			results = append(results, CouplingResult{
				PwmPath:       pwm.PwmPath,
				BestTempPath:  bestPath,
				BestTempLabel: bestLabel,
				DeltaC:        bestDelta,
			})
		}
	}
	return results, nil
}

func restoreOne(ctx context.Context, pwm hwmon.Pwm, origRaw int64, origEnable int, hadEnable bool) {
	_ = sysfs.WriteInt(ctx, pwm.PwmPath, origRaw)
	if hadEnable && pwm.EnablePath != "" {
		_ = sysfs.WriteEnable(ctx, pwm.EnablePath, origEnable)
	}
}

func associatedFan(inv *hwmon.Inventory, pwmIndex int) string {
	if pwmIndex < len(inv.Fans) {
		return inv.Fans[pwmIndex].InputPath
	}
	if len(inv.Fans) > 0 {
		return inv.Fans[0].InputPath
	}
	return ""
}

func readAllTemps(ctx context.Context, inv *hwmon.Inventory) map[string]float64 {
	out := make(map[string]float64, len(inv.Temps))
	for _, t := range inv.Temps {
		if v, err := sysfs.ReadTempC(ctx, t.InputPath); err == nil {
			out[t.InputPath] = v
		}
	}
	return out
}

func sleepCtx(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func clampPct(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
