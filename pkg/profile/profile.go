// SPDX-License-Identifier: BSD-3-Clause

// Package profile models the on-disk fan-curve/control configuration
// ("Profile") the control engine applies, and validates it before the
// engine is allowed to swap it in.
package profile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/linuxfancontrol/lfcd/pkg/curve"
	"github.com/linuxfancontrol/lfcd/pkg/file"
)

// SchemaV1 is the only schema version this daemon writes and accepts.
const SchemaV1 = "LinuxFanControl.Profile/v1"

// FanCurve is the on-disk description of a named curve. TempSensors holds
// hwmon temp input paths for graph/trigger curves, or the names of other
// curves in the same profile for mix curves.
type FanCurve struct {
	Name        string             `json:"name"`
	Type        curve.Kind         `json:"type"`
	Mix         curve.MixFunction  `json:"mix,omitempty"`
	TempSensors []string           `json:"tempSensors,omitempty"`
	Points      []curve.Point      `json:"points,omitempty"`
	OnC         float64            `json:"onC,omitempty"`
	OffC        float64            `json:"offC,omitempty"`
}

// Control binds one pwm output to a named curve.
type Control struct {
	Name       string `json:"name"`
	PwmPath    string `json:"pwmPath"`
	CurveRef   string `json:"curveRef"`
	MinPercent int    `json:"minPercent,omitempty"`
	Enabled    bool   `json:"enabled"`
}

// UnmarshalJSON defaults Enabled to true when the document omits the
// field. The on-disk contract in spec §6 is the minimal
// {name,pwmPath,curveRef}, with no "enabled" key at all; without this,
// every control in such a document would decode with Enabled=false and
// the engine would silently drive no fans.
func (c *Control) UnmarshalJSON(data []byte) error {
	type alias Control
	aux := struct {
		Enabled *bool `json:"enabled"`
		*alias
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Enabled == nil {
		c.Enabled = true
	} else {
		c.Enabled = *aux.Enabled
	}
	return nil
}

// HwmonDeviceMeta records which physical chip a profile was built
// against, supplemented from the original implementation's Profile
// metadata; purely informational, not validated against live hardware.
type HwmonDeviceMeta struct {
	HwmonPath string   `json:"hwmonPath"`
	Name      string   `json:"name"`
	Vendor    string   `json:"vendor,omitempty"`
	Pwms      []string `json:"pwms,omitempty"`
}

// Profile is the full on-disk configuration document.
type Profile struct {
	Schema      string            `json:"schema"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	FanCurves   []FanCurve        `json:"fanCurves"`
	Controls    []Control         `json:"controls"`
	Hwmons      []HwmonDeviceMeta `json:"hwmons,omitempty"`
}

// Load reads and parses a profile document from path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return &p, nil
}

// Save atomically writes a profile document to path.
func Save(path string, p *Profile) error {
	if p.Schema == "" {
		p.Schema = SchemaV1
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return file.AtomicReplaceFile(path, data, 0o644)
}

// Validate checks schema, curve shape requirements, curve name
// uniqueness, mix-reference cycles, and per-pwm control uniqueness. On
// success it returns the profile's curves as a name-keyed evaluation map.
func Validate(p *Profile) (map[string]*curve.Curve, error) {
	if p.Schema != "" && p.Schema != SchemaV1 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, p.Schema)
	}

	curves := make(map[string]*curve.Curve, len(p.FanCurves))
	for i := range p.FanCurves {
		fc := &p.FanCurves[i]
		if _, exists := curves[fc.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCurveName, fc.Name)
		}

		c := &curve.Curve{
			Name:        fc.Name,
			Kind:        fc.Type,
			Mix:         fc.Mix,
			TempSensors: fc.TempSensors,
			Points:      append([]curve.Point(nil), fc.Points...),
			OnC:         fc.OnC,
			OffC:        fc.OffC,
		}
		if c.Kind == curve.KindMix {
			c.Refs = fc.TempSensors
			c.TempSensors = nil
		}

		if err := validateShape(c); err != nil {
			return nil, err
		}
		if c.Kind == curve.KindGraph {
			c.Normalize()
		}
		curves[fc.Name] = c
	}

	if err := curve.ValidateReferences(curves); err != nil {
		return nil, err
	}

	seenPwm := make(map[string]struct{}, len(p.Controls))
	for _, ctl := range p.Controls {
		if _, dup := seenPwm[ctl.PwmPath]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePwm, ctl.PwmPath)
		}
		seenPwm[ctl.PwmPath] = struct{}{}

		if _, ok := curves[ctl.CurveRef]; !ok {
			return nil, fmt.Errorf("%w: control %s references %s", curve.ErrUnresolvedReference, ctl.Name, ctl.CurveRef)
		}
	}

	return curves, nil
}

func validateShape(c *curve.Curve) error {
	switch c.Kind {
	case curve.KindGraph:
		if len(c.Points) == 0 {
			return fmt.Errorf("%w: graph curve %q has no points", ErrInvalidCurve, c.Name)
		}
	case curve.KindTrigger:
		if len(c.Points) != 2 {
			return fmt.Errorf("%w: trigger curve %q needs exactly 2 points", ErrInvalidCurve, c.Name)
		}
		if c.OffC > c.OnC {
			return fmt.Errorf("%w: trigger curve %q has offC > onC", curve.ErrInvalidTrigger, c.Name)
		}
	case curve.KindMix:
		if len(c.Points) != 0 {
			return fmt.Errorf("%w: mix curve %q must not declare points", ErrInvalidCurve, c.Name)
		}
		if len(c.Refs) == 0 {
			return fmt.Errorf("%w: mix curve %q has no references", ErrInvalidCurve, c.Name)
		}
	default:
		return fmt.Errorf("%w: %s", curve.ErrUnknownKind, c.Kind)
	}
	return nil
}
