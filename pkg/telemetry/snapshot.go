// SPDX-License-Identifier: BSD-3-Clause

package telemetry

import (
	"github.com/linuxfancontrol/lfcd/pkg/engine"
	"github.com/linuxfancontrol/lfcd/pkg/hwmon"
	"github.com/linuxfancontrol/lfcd/pkg/profile"
)

// SnapshotVersion is the "version" field of every published snapshot;
// bump it if the JSON shape changes in an incompatible way.
const SnapshotVersion = 1

// ChipSummary is the Chip projection carried in a Snapshot.
type ChipSummary struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Vendor string `json:"vendor,omitempty"`
}

// TempSummary is the TempSensor projection carried in a Snapshot.
type TempSummary struct {
	Path     string `json:"path"`
	Label    string `json:"label"`
	ChipPath string `json:"chipPath"`
}

// FanSummary is the Fan projection carried in a Snapshot.
type FanSummary struct {
	Path     string `json:"path"`
	Label    string `json:"label"`
	ChipPath string `json:"chipPath"`
}

// PwmSummary is the Pwm projection carried in a Snapshot.
type PwmSummary struct {
	Path       string `json:"path"`
	PathEnable string `json:"pathEnable,omitempty"`
	PwmMax     int64  `json:"pwmMax"`
	Label      string `json:"label"`
	ChipPath   string `json:"chipPath"`
}

// HwmonSummary is the "hwmon" field of a Snapshot.
type HwmonSummary struct {
	Chips []ChipSummary `json:"chips"`
	Temps []TempSummary `json:"temps"`
	Fans  []FanSummary  `json:"fans"`
	Pwms  []PwmSummary  `json:"pwms"`
}

// GpuSummary is one vendor GPU sample, annotated by an external
// vendor-enrichment pass (spec §1's "vendor GPU enrichment" collaborator).
// lfcd never populates this itself; Build only carries through whatever a
// caller supplies.
type GpuSummary struct {
	Vendor       string   `json:"vendor"`
	Index        int      `json:"index"`
	Name         string   `json:"name"`
	Pci          string   `json:"pci,omitempty"`
	Hwmon        string   `json:"hwmon,omitempty"`
	HasFanTach   bool     `json:"hasFanTach"`
	HasFanPwm    bool     `json:"hasFanPwm"`
	FanRpm       *int64   `json:"fanRpm,omitempty"`
	TempEdgeC    *float64 `json:"tempEdgeC,omitempty"`
	TempHotspotC *float64 `json:"tempHotspotC,omitempty"`
	TempMemoryC  *float64 `json:"tempMemoryC,omitempty"`
}

// ProfileSummary is the "profile" field of a Snapshot: just enough to
// identify which profile is active without repeating its full body.
type ProfileSummary struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Schema       string `json:"schema"`
	CurveCount   int    `json:"curveCount"`
	ControlCount int    `json:"controlCount"`
}

// Snapshot is the top-level document published by the SHM/file telemetry
// sinks and returned by the telemetry.json RPC method (spec §4.F).
type Snapshot struct {
	Version       int             `json:"version"`
	EngineEnabled bool            `json:"engineEnabled"`
	Hwmon         HwmonSummary    `json:"hwmon"`
	Gpus          []GpuSummary    `json:"gpus"`
	Profile       *ProfileSummary `json:"profile,omitempty"`
}

// BuildSnapshot assembles a Snapshot from the daemon's live inventory,
// engine status, and active profile. gpus may be nil; lfcd itself never
// populates it (spec §1 leaves GPU enrichment to an external collaborator).
func BuildSnapshot(inv *hwmon.Inventory, engineStatus engine.Status, active *profile.Profile, gpus []GpuSummary) Snapshot {
	snap := Snapshot{
		Version:       SnapshotVersion,
		EngineEnabled: engineStatus.Enabled,
		Gpus:          gpus,
	}
	if gpus == nil {
		snap.Gpus = []GpuSummary{}
	}

	if inv != nil {
		snap.Hwmon.Chips = make([]ChipSummary, 0, len(inv.Chips))
		for _, c := range inv.Chips {
			snap.Hwmon.Chips = append(snap.Hwmon.Chips, ChipSummary{Path: c.Path, Name: c.Name, Vendor: c.Vendor})
		}
		snap.Hwmon.Temps = make([]TempSummary, 0, len(inv.Temps))
		for _, t := range inv.Temps {
			snap.Hwmon.Temps = append(snap.Hwmon.Temps, TempSummary{Path: t.InputPath, Label: t.Label, ChipPath: t.ChipPath})
		}
		snap.Hwmon.Fans = make([]FanSummary, 0, len(inv.Fans))
		for _, f := range inv.Fans {
			snap.Hwmon.Fans = append(snap.Hwmon.Fans, FanSummary{Path: f.InputPath, Label: f.Label, ChipPath: f.ChipPath})
		}
		snap.Hwmon.Pwms = make([]PwmSummary, 0, len(inv.Pwms))
		for _, p := range inv.Pwms {
			snap.Hwmon.Pwms = append(snap.Hwmon.Pwms, PwmSummary{
				Path:       p.PwmPath,
				PathEnable: p.EnablePath,
				PwmMax:     p.MaxRaw,
				Label:      p.Label,
				ChipPath:   p.ChipPath,
			})
		}
	}

	if active != nil {
		snap.Profile = &ProfileSummary{
			Name:         active.Name,
			Description:  active.Description,
			Schema:       active.Schema,
			CurveCount:   len(active.FanCurves),
			ControlCount: len(active.Controls),
		}
	}

	return snap
}
