// SPDX-License-Identifier: BSD-3-Clause

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/linuxfancontrol/lfcd/pkg/config"
	"github.com/linuxfancontrol/lfcd/pkg/detect"
	"github.com/linuxfancontrol/lfcd/pkg/engine"
	"github.com/linuxfancontrol/lfcd/pkg/gpu"
	"github.com/linuxfancontrol/lfcd/pkg/hwmon"
	"github.com/linuxfancontrol/lfcd/pkg/job"
	"github.com/linuxfancontrol/lfcd/pkg/profile"
	"github.com/linuxfancontrol/lfcd/pkg/telemetry"
)

// Deps bundles everything the command table (spec §6) needs to reach
// into the daemon's live state. service/daemon builds one Deps value
// and calls RegisterHandlers once at startup; every field is a thin
// closure over the orchestrator's own managers so pkg/rpc never needs
// to import service/daemon.
type Deps struct {
	DaemonName    string
	DaemonVersion string

	Engine *engine.Engine
	Jobs   *job.Manager
	Config *config.Store

	ProfilesPath string

	Inventory func() *hwmon.Inventory
	Rescan    func(ctx context.Context) error

	GpuSampler gpu.Sampler

	ActiveProfile    func() (name string, p *profile.Profile)
	SetActiveProfile func(name string, p *profile.Profile) error

	Snapshot func() telemetry.Snapshot

	StartDetect    func(ctx context.Context, cfg detect.RampConfig) error
	AbortDetect    func() error
	DetectStatus   func() detect.Status
	DetectResults  func() []int64
	DetectCoupling func(ctx context.Context, cfg detect.CouplingConfig) ([]detect.CouplingResult, error)

	ImportProfile func(ctx context.Context, path, asName string, validateDetect bool, rpmMin, timeoutMs int, progress job.Progress) (*profile.Profile, error)

	Shutdown func() error
	Restart  func() error
}

// RegisterHandlers installs every method of the spec §6 command table
// onto reg, closing over deps.
func RegisterHandlers(reg *Registry, deps *Deps) {
	reg.Add("version", "Report daemon name and protocol version.", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{"name": deps.DaemonName, "version": deps.DaemonVersion, "rpc": "shm=json/1"}, nil
	})

	reg.Add("list.sensor", "List discovered temperature sensors.", func(ctx context.Context, params json.RawMessage) (any, error) {
		inv := deps.Inventory()
		out := make([]map[string]any, 0, len(inv.Temps))
		for _, t := range inv.Temps {
			out = append(out, map[string]any{"chip": t.ChipPath, "input": t.InputPath, "label": t.Label})
		}
		return out, nil
	})

	reg.Add("list.fan", "List discovered fan tachometers.", func(ctx context.Context, params json.RawMessage) (any, error) {
		inv := deps.Inventory()
		out := make([]map[string]any, 0, len(inv.Fans))
		for _, f := range inv.Fans {
			out = append(out, map[string]any{"chip": f.ChipPath, "input": f.InputPath, "label": f.Label})
		}
		return out, nil
	})

	reg.Add("list.pwm", "List discovered pwm outputs.", func(ctx context.Context, params json.RawMessage) (any, error) {
		inv := deps.Inventory()
		out := make([]map[string]any, 0, len(inv.Pwms))
		for _, p := range inv.Pwms {
			out = append(out, map[string]any{
				"chip":      p.ChipPath,
				"pwm":       p.PwmPath,
				"enable":    p.EnablePath,
				"label":     p.Label,
				"hasEnable": p.EnablePath != "",
			})
		}
		return out, nil
	})

	reg.Add("hwmon.rescan", "Re-scan the hwmon tree for added or removed devices.", func(ctx context.Context, params json.RawMessage) (any, error) {
		if deps.Rescan != nil {
			if err := deps.Rescan(ctx); err != nil {
				return nil, err
			}
		}
		inv := deps.Inventory()
		return map[string]any{
			"chips": len(inv.Chips),
			"temps": len(inv.Temps),
			"fans":  len(inv.Fans),
			"pwms":  len(inv.Pwms),
		}, nil
	})

	reg.Add("gpu.list", "List the current set of vendor-sampled GPUs.", func(ctx context.Context, params json.RawMessage) (any, error) {
		if deps.GpuSampler == nil {
			return []telemetry.GpuSummary{}, nil
		}
		samples, err := deps.GpuSampler.Sample(ctx)
		if err != nil {
			return nil, err
		}
		return samples, nil
	})

	reg.Add("update.check", "Check a JSON manifest URL for a newer version.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			ManifestURL string `json:"manifestURL"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		latest, err := fetchManifestVersion(ctx, req.ManifestURL)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"current":   deps.DaemonVersion,
			"latest":    latest,
			"available": latest != "" && latest != deps.DaemonVersion,
		}, nil
	})

	reg.Add("engine.enable", "Enable the control engine.", engineEnableHandler(deps, true))
	reg.Add("engine.disable", "Disable the control engine.", engineEnableHandler(deps, false))

	reg.Add("engine.status", "Report the control engine's tuning and enable state.", func(ctx context.Context, params json.RawMessage) (any, error) {
		st := deps.Engine.Status()
		return map[string]any{
			"enabled":     st.Enabled,
			"tickMs":      st.TickMs,
			"forceTickMs": st.ForceTickMs,
			"deltaC":      st.DeltaC,
		}, nil
	})

	reg.Add("engine.reset", "Clear accumulated engine rule state.", func(ctx context.Context, params json.RawMessage) (any, error) {
		deps.Engine.Reset()
		return map[string]any{"reset": true, "enabled": deps.Engine.Status().Enabled}, nil
	})

	registerProfileHandlers(reg, deps)
	registerDetectHandlers(reg, deps)
	registerImportHandlers(reg, deps)
	registerConfigHandlers(reg, deps)

	reg.Add("telemetry.json", "Return the current hwmon/engine/profile snapshot.", func(ctx context.Context, params json.RawMessage) (any, error) {
		return deps.Snapshot(), nil
	})

	reg.Add("daemon.shutdown", "Shut the daemon down gracefully.", func(ctx context.Context, params json.RawMessage) (any, error) {
		if deps.Shutdown == nil {
			return map[string]any{"status": "unsupported"}, nil
		}
		if err := deps.Shutdown(); err != nil {
			return nil, err
		}
		return map[string]any{"status": "shutting down"}, nil
	})

	reg.Add("daemon.restart", "Request a restart from the supervising process.", func(ctx context.Context, params json.RawMessage) (any, error) {
		if deps.Restart == nil {
			return map[string]any{"status": "unsupported"}, nil
		}
		if err := deps.Restart(); err != nil {
			return nil, err
		}
		return map[string]any{"status": "restarting"}, nil
	})
}

func engineEnableHandler(deps *Deps, on bool) Handler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		if err := deps.Engine.Enable(ctx, on); err != nil {
			return nil, err
		}
		return map[string]any{"enabled": deps.Engine.Status().Enabled}, nil
	}
}

func registerProfileHandlers(reg *Registry, deps *Deps) {
	reg.Add("profile.list", "List profile files on disk and the active profile.", func(ctx context.Context, params json.RawMessage) (any, error) {
		entries, err := os.ReadDir(deps.ProfilesPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading profiles dir: %w", err)
		}
		profiles := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			p, err := profile.Load(filepath.Join(deps.ProfilesPath, e.Name()))
			if err != nil {
				continue
			}
			profiles = append(profiles, map[string]any{"file": e.Name(), "name": p.Name})
		}
		sort.Slice(profiles, func(i, j int) bool { return profiles[i]["file"].(string) < profiles[j]["file"].(string) })

		active, _ := deps.ActiveProfile()
		return map[string]any{"profiles": profiles, "active": active}, nil
	})

	reg.Add("profile.load", "Load and activate a named profile.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		path, err := profilePath(deps.ProfilesPath, req.Name)
		if err != nil {
			return nil, err
		}
		p, err := profile.Load(path)
		if err != nil {
			return nil, err
		}
		if _, err := profile.Validate(p); err != nil {
			return nil, err
		}
		if err := deps.SetActiveProfile(req.Name, p); err != nil {
			return nil, err
		}
		return nil, nil
	})

	reg.Add("profile.save", "Persist the given profile document under name.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Name    string          `json:"name"`
			Profile profile.Profile `json:"profile"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if _, err := profile.Validate(&req.Profile); err != nil {
			return nil, err
		}
		if req.Profile.Name == "" {
			req.Profile.Name = req.Name
		}
		path, err := profilePath(deps.ProfilesPath, req.Name)
		if err != nil {
			return nil, err
		}
		if err := profile.Save(path, &req.Profile); err != nil {
			return nil, err
		}
		return nil, nil
	})

	reg.Add("profile.delete", "Delete a profile file.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		path, err := profilePath(deps.ProfilesPath, req.Name)
		if err != nil {
			return nil, err
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", profile.ErrNotFound, req.Name)
			}
			return nil, err
		}
		return nil, nil
	})

	reg.Add("profile.rename", "Rename a profile file.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Name    string `json:"name"`
			NewName string `json:"newName"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		oldPath, err := profilePath(deps.ProfilesPath, req.Name)
		if err != nil {
			return nil, err
		}
		newPath, err := profilePath(deps.ProfilesPath, req.NewName)
		if err != nil {
			return nil, err
		}
		p, err := profile.Load(oldPath)
		if err != nil {
			return nil, err
		}
		p.Name = req.NewName
		if err := profile.Save(newPath, p); err != nil {
			return nil, err
		}
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		return nil, nil
	})

	reg.Add("profile.getActive", "Report the name of the active profile.", func(ctx context.Context, params json.RawMessage) (any, error) {
		name, _ := deps.ActiveProfile()
		return map[string]any{"name": name}, nil
	})

	reg.Add("profile.setActive", "Load a saved profile by name and make it active.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		path, err := profilePath(deps.ProfilesPath, req.Name)
		if err != nil {
			return nil, err
		}
		p, err := profile.Load(path)
		if err != nil {
			return nil, err
		}
		if err := deps.SetActiveProfile(req.Name, p); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

func registerDetectHandlers(reg *Registry, deps *Deps) {
	reg.Add("detect.start", "Start the ramp-and-observe pwm detection worker.", func(ctx context.Context, params json.RawMessage) (any, error) {
		cfg := detect.DefaultRampConfig()
		if len(params) > 0 {
			var tuning struct {
				SettleMs         int `json:"settleMs"`
				SpinupPollMs     int `json:"spinupPollMs"`
				RampStartPercent int `json:"rampStartPercent"`
				RampEndPercent   int `json:"rampEndPercent"`
			}
			if err := decodeParams(params, &tuning); err != nil {
				return nil, err
			}
			if tuning.SettleMs > 0 {
				cfg.SettleMs = tuning.SettleMs
			}
			if tuning.SpinupPollMs > 0 {
				cfg.SpinupPollMs = tuning.SpinupPollMs
			}
			if tuning.RampStartPercent > 0 {
				cfg.RampStartPercent = tuning.RampStartPercent
			}
			if tuning.RampEndPercent > 0 {
				cfg.RampEndPercent = tuning.RampEndPercent
			}
		}
		if err := deps.StartDetect(ctx, cfg); err != nil {
			return nil, err
		}
		return map[string]any{"started": true}, nil
	})

	reg.Add("detect.status", "Report ramp detection progress.", func(ctx context.Context, params json.RawMessage) (any, error) {
		st := deps.DetectStatus()
		results := deps.DetectResults()
		mapped := 0
		for _, rpm := range results {
			if rpm > 0 {
				mapped++
			}
		}
		return map[string]any{
			"running":    st.Running,
			"ok":         !st.Running && mapped > 0,
			"error":      "",
			"mappedPwms": mapped,
			"mappedTemps": 0,
		}, nil
	})

	reg.Add("detect.abort", "Abort an in-progress ramp detection.", func(ctx context.Context, params json.RawMessage) (any, error) {
		if err := deps.AbortDetect(); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	})

	reg.Add("detect.results", "Return peak RPM per pwm from the last ramp detection.", func(ctx context.Context, params json.RawMessage) (any, error) {
		inv := deps.Inventory()
		results := deps.DetectResults()
		out := make([]map[string]any, 0, len(results))
		for i, rpm := range results {
			pwmPath := ""
			if i < len(inv.Pwms) {
				pwmPath = inv.Pwms[i].PwmPath
			}
			out = append(out, map[string]any{"pwm": pwmPath, "peakRpm": rpm})
		}
		return out, nil
	})

	reg.Add("detect.coupling", "Run the delta-temperature pwm/sensor coupling heuristic.", func(ctx context.Context, params json.RawMessage) (any, error) {
		results, err := deps.DetectCoupling(ctx, detect.DefaultCouplingConfig())
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(results))
		for _, r := range results {
			out = append(out, map[string]any{
				"pwm":           r.PwmPath,
				"bestTempPath":  r.BestTempPath,
				"bestTempLabel": r.BestTempLabel,
				"deltaC":        r.DeltaC,
			})
		}
		return out, nil
	})
}

func registerImportHandlers(reg *Registry, deps *Deps) {
	reg.Add("profile.importAs", "Import a third-party profile document as a background job.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Path           string `json:"path"`
			Name           string `json:"name"`
			ValidateDetect bool   `json:"validateDetect"`
			RpmMin         int    `json:"rpmMin"`
			TimeoutMs      int    `json:"timeoutMs"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id := deps.Jobs.Create(context.Background(), func(jctx context.Context, progress job.Progress) (any, error) {
			return deps.ImportProfile(jctx, req.Path, req.Name, req.ValidateDetect, req.RpmMin, req.TimeoutMs, progress)
		})
		return map[string]any{"jobId": id}, nil
	})

	reg.Add("profile.importStatus", "Report an import job's progress.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			JobID string `json:"jobId"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		st, err := deps.Jobs.Status(req.JobID)
		if err != nil {
			return nil, err
		}
		return jobStatusJSON(st), nil
	})

	reg.Add("profile.importCancel", "Cancel a pending or running import job.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			JobID string `json:"jobId"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := deps.Jobs.Cancel(req.JobID); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	})

	reg.Add("profile.importCommit", "Save a finished import job's result as a named profile.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			JobID string `json:"jobId"`
			Name  string `json:"name"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		var committed *profile.Profile
		err := deps.Jobs.Commit(req.JobID, func(result any) error {
			p, ok := result.(*profile.Profile)
			if !ok {
				return fmt.Errorf("import job result is not a profile")
			}
			if req.Name != "" {
				p.Name = req.Name
			}
			if _, err := profile.Validate(p); err != nil {
				return err
			}
			path, err := profilePath(deps.ProfilesPath, p.Name)
			if err != nil {
				return err
			}
			if err := profile.Save(path, p); err != nil {
				return err
			}
			committed = p
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"name": committed.Name}, nil
	})

	reg.Add("profile.importJobs", "List every tracked import job.", func(ctx context.Context, params json.RawMessage) (any, error) {
		statuses := deps.Jobs.List()
		out := make([]map[string]any, 0, len(statuses))
		for _, st := range statuses {
			out = append(out, jobStatusJSON(st))
		}
		return out, nil
	})
}

func registerConfigHandlers(reg *Registry, deps *Deps) {
	reg.Add("config.get", "Read one config key, or every key if none is given.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Key string `json:"key"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.Key == "" {
			return deps.Config.GetAll(), nil
		}
		v, err := deps.Config.Get(req.Key)
		if err != nil {
			return nil, err
		}
		return map[string]any{req.Key: v}, nil
	})

	reg.Add("config.set", "Write one config key.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Key   string `json:"key"`
			Value any    `json:"value"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := deps.Config.Set(req.Key, req.Value); err != nil {
			return nil, err
		}
		return nil, nil
	})

	reg.Add("config.save", "Persist the current config to its backing file.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Path string `json:"path"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := deps.Config.Save(req.Path); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// fetchManifestVersion performs the trivial HTTP GET of a JSON manifest
// described in the update.check RPC method's contract: no signature
// verification, no download, just a {"version": "..."} lookup.
func fetchManifestVersion(ctx context.Context, manifestURL string) (string, error) {
	if manifestURL == "" {
		return "", wrapInvalidParams(fmt.Errorf("manifestURL is required"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return "", err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("manifest fetch %s: status %d", manifestURL, resp.StatusCode)
	}

	var manifest struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return "", fmt.Errorf("decoding manifest: %w", err)
	}
	return manifest.Version, nil
}

func jobStatusJSON(st job.Status) map[string]any {
	return map[string]any{
		"jobId":    st.ID,
		"state":    string(st.State),
		"progress": st.Progress,
		"message":  st.Message,
		"error":    st.Error,
	}
}

// profilePath joins name onto dir, rejecting any name that would escape
// dir (path separators, "..") since it comes directly from an RPC client.
func profilePath(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid profile name %q", ErrInvalidParams, name)
	}
	return filepath.Join(dir, name+".json"), nil
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return wrapInvalidParams(err)
	}
	return nil
}
