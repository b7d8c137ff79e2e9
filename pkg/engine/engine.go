// SPDX-License-Identifier: BSD-3-Clause

// Package engine implements the control loop described in spec §4.D: it
// samples temperatures, evaluates curves, applies hysteresis and spin-up
// behavior, and writes PWM outputs, coalescing writes that would not
// change hardware state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/linuxfancontrol/lfcd/pkg/curve"
	"github.com/linuxfancontrol/lfcd/pkg/hwmon"
	"github.com/linuxfancontrol/lfcd/pkg/profile"
	"github.com/linuxfancontrol/lfcd/pkg/sysfs"
)

const lastPercentUnset = -1

// RuleState is the runtime state the engine keeps per Control, created
// when a profile is applied and discarded on re-apply (spec §3).
type RuleState struct {
	HasLastTemp bool
	LastTempC   float64
	PrevTempC   float64
	LastPercent int
	SpinUntil   time.Time
	LastWrite   time.Time
	TriggerOn   bool
	LastErr     error
	fsm         *pwmFSM
}

type savedPwmMode struct {
	enablePath string
	enableMode int
	rawValue   int64
	hadEnable  bool
}

// Option configures an Engine at construction time.
type Option interface{ apply(*Engine) }

type optionFunc func(*Engine)

func (f optionFunc) apply(e *Engine) { f(e) }

// WithTickInterval sets the engine's own notion of its tick period, used
// to compute the force-tick deadline; it does not drive scheduling itself
// (the daemon orchestrator's ticker does that).
func WithTickInterval(d time.Duration) Option {
	return optionFunc(func(e *Engine) { e.tickInterval = d })
}

// WithForceTickInterval sets how often a write is forced regardless of
// the deltaC gate.
func WithForceTickInterval(d time.Duration) Option {
	return optionFunc(func(e *Engine) { e.forceTickInterval = d })
}

// WithDeltaC sets the hysteresis gate's temperature delta threshold.
func WithDeltaC(deltaC float64) Option {
	return optionFunc(func(e *Engine) { e.deltaC = deltaC })
}

// WithSpinUp sets the minimum spin-up duty percent and hold duration.
func WithSpinUp(percent int, hold time.Duration) Option {
	return optionFunc(func(e *Engine) {
		e.spinUpPercent = percent
		e.spinUpHold = hold
	})
}

// WithLogger overrides the engine's structured logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(e *Engine) { e.log = l })
}

// Engine evaluates profile curves against live temperatures and writes
// PWM outputs. The zero value is not usable; construct with New.
type Engine struct {
	mu sync.Mutex

	inv     *hwmon.Inventory
	profile *profile.Profile
	curves  map[string]*curve.Curve
	rules   map[string]*RuleState
	saved   map[string]*savedPwmMode

	enabled bool
	paused  bool

	tickInterval      time.Duration
	forceTickInterval time.Duration
	deltaC            float64
	spinUpPercent     int
	spinUpHold        time.Duration

	log *slog.Logger
}

// New constructs an Engine with spec-default tuning, overridden by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		rules:             make(map[string]*RuleState),
		saved:             make(map[string]*savedPwmMode),
		tickInterval:      25 * time.Millisecond,
		forceTickInterval: 2 * time.Second,
		deltaC:            0.5,
		spinUpPercent:     30,
		spinUpHold:        300 * time.Millisecond,
		log:               slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(e)
	}
	return e
}

// Status is the snapshot returned by the engine.status RPC method.
type Status struct {
	Enabled     bool
	TickMs      int64
	ForceTickMs int64
	DeltaC      float64
}

// Status returns the engine's current tuning and enable state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Enabled:     e.enabled,
		TickMs:      e.tickInterval.Milliseconds(),
		ForceTickMs: e.forceTickInterval.Milliseconds(),
		DeltaC:      e.deltaC,
	}
}

// SetInventory replaces the engine's hardware view. RuleState for
// controls whose pwm or sensor set changed is implicitly invalidated the
// next time ApplyProfile runs; SetInventory alone does not reset rules,
// matching spec §4.D ("resets RuleState for controls whose pwmPath or
// sensor set changed" is interpreted here as "re-apply the active profile
// after a rescan").
func (e *Engine) SetInventory(inv *hwmon.Inventory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inv = inv
}

// ApplyProfile validates p and, on success, atomically swaps it in and
// resets all RuleState. On failure the previously active profile (if any)
// remains active.
func (e *Engine) ApplyProfile(p *profile.Profile) error {
	curves, err := profile.Validate(p)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inv != nil {
		for _, ctl := range p.Controls {
			if _, err := e.inv.FindPwm(ctl.PwmPath); err != nil {
				return fmt.Errorf("%w: %s", ErrUnknownPwm, ctl.PwmPath)
			}
		}
	}

	e.profile = p
	e.curves = curves
	e.rules = make(map[string]*RuleState, len(p.Controls))
	for _, ctl := range p.Controls {
		e.rules[ctl.Name] = &RuleState{LastPercent: lastPercentUnset, fsm: newPwmFSM()}
	}
	return nil
}

// Enable turns the tick loop's writes on or off. Disabling clears every
// control's spin-up timer and restores each touched pwm to the
// enable-mode/raw-value pair captured the first time it was enabled.
func (e *Engine) Enable(ctx context.Context, on bool) error {
	e.mu.Lock()
	wasEnabled := e.enabled
	e.enabled = on
	if !on {
		for _, r := range e.rules {
			r.SpinUntil = time.Time{}
		}
	}
	saved := e.saved
	e.mu.Unlock()

	if on || !wasEnabled {
		return nil
	}
	var firstErr error
	for pwmPath, s := range saved {
		if err := restorePwm(ctx, pwmPath, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pause suspends tick-based writes without touching the enable flag,
// profile, or RuleState, for the duration of an exclusive control
// handoff to another writer (spec §5: "detection acquires an exclusive
// 'control handoff' that pauses tick-based writes until restore
// completes"). Resume must be called once that writer has restored
// hardware state.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume releases a handoff taken by Pause, allowing Tick to write again.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
}

// Reset clears all RuleState for the active profile without changing the
// enable flag or the profile itself, forcing the next tick to behave as
// if the profile were freshly applied.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return
	}
	for _, ctl := range e.profile.Controls {
		e.rules[ctl.Name] = &RuleState{LastPercent: lastPercentUnset, fsm: newPwmFSM()}
	}
}

// Tick performs one evaluation pass over every control in the active
// profile, in registration order. It never returns an error for a single
// control's failure; those are recorded on the control's RuleState and
// tick continues.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	if !e.enabled || e.paused || e.profile == nil || e.inv == nil {
		e.mu.Unlock()
		return
	}
	p := e.profile
	curves := e.curves
	inv := e.inv
	now := time.Now()
	e.mu.Unlock()

	tempCache := make(map[string]float64)
	readTemp := func(path string) float64 {
		if v, ok := tempCache[path]; ok {
			return v
		}
		v, err := sysfs.ReadTempC(ctx, path)
		if err != nil {
			v = 0
		}
		tempCache[path] = v
		return v
	}

	for _, ctl := range p.Controls {
		e.tickControl(ctx, ctl, curves, inv, readTemp, now)
	}
}

func (e *Engine) tickControl(ctx context.Context, ctl profile.Control, curves map[string]*curve.Curve, inv *hwmon.Inventory, readTemp func(string) float64, now time.Time) {
	e.mu.Lock()
	rule := e.rules[ctl.Name]
	e.mu.Unlock()
	if rule == nil || !ctl.Enabled {
		return
	}

	c := curves[ctl.CurveRef]
	if c == nil {
		rule.LastErr = fmt.Errorf("%w: %s", ErrUnknownCurve, ctl.CurveRef)
		return
	}

	pwm, err := inv.FindPwm(ctl.PwmPath)
	if err != nil {
		rule.LastErr = fmt.Errorf("%w: %s", ErrUnknownPwm, ctl.PwmPath)
		return
	}

	target, triggerChanged, repTemp := e.evalControlCurve(c, curves, readTemp, rule)

	if ctl.MinPercent > target {
		target = ctl.MinPercent
	}

	bypassGate := triggerChanged
	withinDelta := rule.HasLastTemp && abs(repTemp-rule.LastTempC) < e.deltaC
	withinForceWindow := now.Sub(rule.LastWrite) < e.forceTickInterval
	forceWrite := !withinForceWindow
	if withinDelta && withinForceWindow && !bypassGate {
		target = rule.LastPercent
		if target == lastPercentUnset {
			target = 0
		}
	}

	rule.PrevTempC = rule.LastTempC
	rule.LastTempC = repTemp
	rule.HasLastTemp = true

	if rule.LastPercent <= 0 && target > 0 {
		rule.fsm.onTargetPositive(ctx)
		spinTarget := target
		if e.spinUpPercent > spinTarget {
			spinTarget = e.spinUpPercent
		}
		rule.SpinUntil = now.Add(e.spinUpHold)
		target = spinTarget
	} else if !rule.SpinUntil.IsZero() && now.Before(rule.SpinUntil) {
		if rule.LastPercent > target {
			target = rule.LastPercent
		}
	} else if !rule.SpinUntil.IsZero() && !now.Before(rule.SpinUntil) {
		rule.fsm.onSpinupElapsed(ctx)
		rule.SpinUntil = time.Time{}
	}
	if target == 0 {
		rule.fsm.onTargetZero(ctx)
	}

	// Change-coalescing (spec §4.D step 6) skips a write when the target
	// is unchanged from the last one issued — except on a force tick,
	// whose entire purpose is to re-assert hardware state regardless of
	// whether the computed target moved (spec §4.D "force tick... to
	// guard against drift and missed sysfs refresh"; spec §8 "Force
	// tick" property).
	if target == rule.LastPercent && !forceWrite {
		return
	}

	e.ensureSavedMode(ctx, pwm)
	if pwm.EnablePath != "" {
		_ = sysfs.WriteEnable(ctx, pwm.EnablePath, 1)
	}
	if err := sysfs.WritePercent(ctx, pwm.PwmPath, target, pwm.MaxRaw); err != nil {
		rule.LastErr = err
		return
	}

	rule.LastErr = nil
	rule.LastPercent = target
	rule.LastWrite = now
}

// evalControlCurve evaluates a control's curve (recursing through mix
// references) and returns the target percent, whether a trigger flipped
// state this call, and a representative temperature for the hysteresis
// gate (the average of every leaf sensor the curve transitively reads).
func (e *Engine) evalControlCurve(c *curve.Curve, curves map[string]*curve.Curve, readTemp func(string) float64, rule *RuleState) (target int, triggerChanged bool, repTemp float64) {
	leaves := leafSensors(c, curves)
	repTemp = averageTemps(leaves, readTemp)

	switch c.Kind {
	case curve.KindGraph:
		pct, err := curve.EvalGraph(c.Points, repTemp)
		if err != nil {
			return 0, false, repTemp
		}
		return pct, false, repTemp
	case curve.KindTrigger:
		pct, isOn, err := curve.EvalTrigger(c, repTemp, rule.TriggerOn)
		if err != nil {
			return 0, false, repTemp
		}
		changed := isOn != rule.TriggerOn
		rule.TriggerOn = isOn
		return pct, changed, repTemp
	case curve.KindMix:
		inputs := make([]int, 0, len(c.Refs))
		for _, ref := range c.Refs {
			rc := curves[ref]
			if rc == nil {
				continue
			}
			pct, changed, _ := e.evalControlCurve(rc, curves, readTemp, rule)
			inputs = append(inputs, pct)
			triggerChanged = triggerChanged || changed
		}
		return curve.EvalMix(c.Mix, inputs), triggerChanged, repTemp
	default:
		return 0, false, repTemp
	}
}

func leafSensors(c *curve.Curve, curves map[string]*curve.Curve) []string {
	if c.Kind != curve.KindMix {
		return c.TempSensors
	}
	seen := make(map[string]struct{})
	var out []string
	for _, ref := range c.Refs {
		rc := curves[ref]
		if rc == nil {
			continue
		}
		for _, s := range leafSensors(rc, curves) {
			if _, dup := seen[s]; !dup {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

func averageTemps(paths []string, readTemp func(string) float64) float64 {
	if len(paths) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range paths {
		sum += readTemp(p)
	}
	return sum / float64(len(paths))
}

func (e *Engine) ensureSavedMode(ctx context.Context, pwm hwmon.Pwm) {
	e.mu.Lock()
	_, exists := e.saved[pwm.PwmPath]
	e.mu.Unlock()
	if exists {
		return
	}

	s := &savedPwmMode{enablePath: pwm.EnablePath}
	if pwm.EnablePath != "" {
		if mode, err := sysfs.ReadEnable(ctx, pwm.EnablePath); err == nil {
			s.enableMode = mode
			s.hadEnable = true
		}
	}
	if raw, err := sysfs.ReadInt(ctx, pwm.PwmPath); err == nil {
		s.rawValue = raw
	}

	e.mu.Lock()
	e.saved[pwm.PwmPath] = s
	e.mu.Unlock()
}

func restorePwm(ctx context.Context, pwmPath string, s *savedPwmMode) error {
	var firstErr error
	if err := sysfs.WriteInt(ctx, pwmPath, s.rawValue); err != nil {
		firstErr = err
	}
	if s.hadEnable {
		if err := sysfs.WriteEnable(ctx, s.enablePath, s.enableMode); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
