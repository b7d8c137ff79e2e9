// SPDX-License-Identifier: BSD-3-Clause

// Package hwmon discovers Linux kernel hwmon chips and the temperature,
// fan, and PWM attributes they expose, and keeps a lightweight inventory
// of them refreshed over time.
package hwmon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/linuxfancontrol/lfcd/pkg/sysfs"
)

// DefaultPath is the default hwmon class directory.
const DefaultPath = "/sys/class/hwmon"

const defaultMaxRaw = 255

var (
	tempInputRe = regexp.MustCompile(`^temp(\d+)_input$`)
	fanInputRe  = regexp.MustCompile(`^fan(\d+)_input$`)
	pwmRe       = regexp.MustCompile(`^pwm(\d+)$`)
)

// Chip identifies a single hwmon device. Identity is Path; Chip is
// immutable once discovered.
type Chip struct {
	Path string
	Name string
	// Vendor is best-effort, populated by an external vendor-mapping pass;
	// hwmon discovery alone never knows it.
	Vendor string
}

// TempSensor is one tempN_input attribute of a Chip.
type TempSensor struct {
	ChipPath  string
	InputPath string
	Label     string
}

// Fan is one fanN_input attribute of a Chip.
type Fan struct {
	ChipPath  string
	InputPath string
	Label     string
}

// Pwm is one pwmN (and optional pwmN_enable) attribute of a Chip.
type Pwm struct {
	ChipPath   string
	PwmPath    string
	EnablePath string // empty if the driver does not expose an enable mode
	MaxRaw     int64
	Label      string
}

// Inventory is a read-mostly snapshot of discovered hardware.
type Inventory struct {
	Chips []Chip
	Temps []TempSensor
	Fans  []Fan
	Pwms  []Pwm
}

// config holds Discoverer options, following the functional-options
// pattern used throughout the project.
type config struct {
	path    string
	timeout time.Duration
}

// Option configures a Discoverer.
type Option interface{ apply(*config) }

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithDiscoveryPath overrides the hwmon class directory (default
// /sys/class/hwmon); used by tests to point at a fixture tree.
func WithDiscoveryPath(path string) Option {
	return optionFunc(func(c *config) { c.path = path })
}

// WithDiscoveryTimeout bounds how long a single scan may take.
func WithDiscoveryTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.timeout = d })
}

// Discoverer scans sysfs for hwmon chips and their sensor/PWM attributes.
type Discoverer struct {
	cfg config
}

// NewDiscoverer builds a Discoverer with the given options applied over
// sane defaults.
func NewDiscoverer(opts ...Option) *Discoverer {
	cfg := config{path: DefaultPath, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &Discoverer{cfg: cfg}
}

// Scan discovers every hwmon chip under the configured path and enumerates
// its temperature, fan, and PWM attributes. Errors on individual entries
// are tolerated: a chip that disappears mid-scan is skipped, not fatal.
func (d *Discoverer) Scan(ctx context.Context) (*Inventory, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.timeout)
	defer cancel()

	entries, err := os.ReadDir(d.cfg.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Inventory{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", d.cfg.path, err)
	}

	inv := &Inventory{}
	for _, e := range entries {
		chipPath := filepath.Join(d.cfg.path, e.Name())
		chip, temps, fans, pwms, err := d.scanChip(ctx, chipPath)
		if err != nil {
			continue
		}
		inv.Chips = append(inv.Chips, chip)
		inv.Temps = append(inv.Temps, temps...)
		inv.Fans = append(inv.Fans, fans...)
		inv.Pwms = append(inv.Pwms, pwms...)
	}

	sort.Slice(inv.Chips, func(i, j int) bool { return inv.Chips[i].Path < inv.Chips[j].Path })
	return inv, nil
}

// Refresh re-reads label files and drops entries whose input files have
// vanished since the last scan. It never discovers new hardware; call
// Scan again for that.
func (d *Discoverer) Refresh(ctx context.Context, inv *Inventory) error {
	temps := inv.Temps[:0]
	for _, t := range inv.Temps {
		if !fileExists(t.InputPath) {
			continue
		}
		t.Label = d.readLabel(ctx, labelPathFor(t.InputPath, "_input", "_label"), t.Label)
		temps = append(temps, t)
	}
	inv.Temps = temps

	fans := inv.Fans[:0]
	for _, f := range inv.Fans {
		if !fileExists(f.InputPath) {
			continue
		}
		f.Label = d.readLabel(ctx, labelPathFor(f.InputPath, "_input", "_label"), f.Label)
		fans = append(fans, f)
	}
	inv.Fans = fans

	pwms := inv.Pwms[:0]
	for _, p := range inv.Pwms {
		if !fileExists(p.PwmPath) {
			continue
		}
		pwms = append(pwms, p)
	}
	inv.Pwms = pwms

	return nil
}

func (d *Discoverer) scanChip(ctx context.Context, chipPath string) (Chip, []TempSensor, []Fan, []Pwm, error) {
	name, err := sysfs.ReadText(ctx, filepath.Join(chipPath, "name"))
	if err != nil {
		return Chip{}, nil, nil, nil, err
	}
	chip := Chip{Path: chipPath, Name: name}

	entries, err := os.ReadDir(chipPath)
	if err != nil {
		return Chip{}, nil, nil, nil, err
	}

	var temps []TempSensor
	var fans []Fan
	pwmByIdx := map[string]*Pwm{}

	for _, e := range entries {
		fname := e.Name()
		full := filepath.Join(chipPath, fname)

		if m := tempInputRe.FindStringSubmatch(fname); m != nil {
			label := d.readLabel(ctx, filepath.Join(chipPath, "temp"+m[1]+"_label"), "temp"+m[1])
			temps = append(temps, TempSensor{ChipPath: chipPath, InputPath: full, Label: label})
			continue
		}
		if m := fanInputRe.FindStringSubmatch(fname); m != nil {
			label := d.readLabel(ctx, filepath.Join(chipPath, "fan"+m[1]+"_label"), "fan"+m[1])
			fans = append(fans, Fan{ChipPath: chipPath, InputPath: full, Label: label})
			continue
		}
		if m := pwmRe.FindStringSubmatch(fname); m != nil {
			idx := m[1]
			p := pwmByIdx[idx]
			if p == nil {
				p = &Pwm{ChipPath: chipPath, MaxRaw: defaultMaxRaw, Label: "pwm" + idx}
				pwmByIdx[idx] = p
			}
			p.PwmPath = full
		}
	}

	for idx, p := range pwmByIdx {
		enablePath := filepath.Join(chipPath, "pwm"+idx+"_enable")
		if fileExists(enablePath) {
			p.EnablePath = enablePath
		}
	}

	pwms := make([]Pwm, 0, len(pwmByIdx))
	for _, p := range pwmByIdx {
		pwms = append(pwms, *p)
	}
	sort.Slice(pwms, func(i, j int) bool { return pwms[i].PwmPath < pwms[j].PwmPath })
	sort.Slice(temps, func(i, j int) bool { return temps[i].InputPath < temps[j].InputPath })
	sort.Slice(fans, func(i, j int) bool { return fans[i].InputPath < fans[j].InputPath })

	return chip, temps, fans, pwms, nil
}

func (d *Discoverer) readLabel(ctx context.Context, labelPath, fallback string) string {
	s, err := sysfs.ReadText(ctx, labelPath)
	if err != nil || s == "" {
		return fallback
	}
	return s
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func labelPathFor(inputPath, inputSuffix, labelSuffix string) string {
	base := inputPath[:len(inputPath)-len(inputSuffix)]
	return base + labelSuffix
}

// FindChip returns the chip with the given path, or ErrDeviceNotFound.
func (inv *Inventory) FindChip(path string) (Chip, error) {
	for _, c := range inv.Chips {
		if c.Path == path {
			return c, nil
		}
	}
	return Chip{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
}

// FindPwm returns the Pwm with the given pwmPath, or ErrSensorNotFound.
func (inv *Inventory) FindPwm(pwmPath string) (Pwm, error) {
	for _, p := range inv.Pwms {
		if p.PwmPath == pwmPath {
			return p, nil
		}
	}
	return Pwm{}, fmt.Errorf("%w: %s", ErrSensorNotFound, pwmPath)
}

// FindTemp returns the TempSensor with the given input path, or ErrSensorNotFound.
func (inv *Inventory) FindTemp(inputPath string) (TempSensor, error) {
	for _, t := range inv.Temps {
		if t.InputPath == inputPath {
			return t, nil
		}
	}
	return TempSensor{}, fmt.Errorf("%w: %s", ErrSensorNotFound, inputPath)
}
