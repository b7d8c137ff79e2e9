// SPDX-License-Identifier: BSD-3-Clause

package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfancontrol/lfcd/pkg/config"
	"github.com/linuxfancontrol/lfcd/pkg/engine"
	"github.com/linuxfancontrol/lfcd/pkg/gpu"
	"github.com/linuxfancontrol/lfcd/pkg/hwmon"
	"github.com/linuxfancontrol/lfcd/pkg/job"
	"github.com/linuxfancontrol/lfcd/pkg/profile"
	"github.com/linuxfancontrol/lfcd/pkg/telemetry"
)

func testInventory() *hwmon.Inventory {
	return &hwmon.Inventory{
		Chips: []hwmon.Chip{{Path: "/sys/class/hwmon/hwmon0", Name: "nct6775"}},
		Temps: []hwmon.TempSensor{{ChipPath: "/sys/class/hwmon/hwmon0", InputPath: "temp1_input", Label: "CPU"}},
		Fans:  []hwmon.Fan{{ChipPath: "/sys/class/hwmon/hwmon0", InputPath: "fan1_input", Label: "Fan1"}},
		Pwms:  []hwmon.Pwm{{ChipPath: "/sys/class/hwmon/hwmon0", PwmPath: "pwm1", EnablePath: "pwm1_enable", MaxRaw: 255}},
	}
}

func testDeps() *Deps {
	inv := testInventory()
	return &Deps{
		DaemonName:    "lfcd",
		DaemonVersion: "1.2.3",
		Engine:        engine.New(),
		Jobs:          job.NewManager(),
		Config:        config.New(),
		ProfilesPath:  "",
		Inventory:     func() *hwmon.Inventory { return inv },
		Rescan:        func(ctx context.Context) error { return nil },
		GpuSampler:    gpu.StubSampler{},
		ActiveProfile: func() (string, *profile.Profile) { return "", nil },
		Snapshot:      func() telemetry.Snapshot { return telemetry.Snapshot{Version: telemetry.SnapshotVersion} },
	}
}

func callMethod(t *testing.T, reg *Registry, method string, params any) (any, error) {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	return reg.Call(context.Background(), method, raw)
}

func TestHandlers_Version(t *testing.T) {
	reg := NewRegistry()
	RegisterHandlers(reg, testDeps())

	result, err := callMethod(t, reg, "version", nil)
	require.NoError(t, err)
	m := result.(map[string]any)
	assert.Equal(t, "lfcd", m["name"])
	assert.Equal(t, "1.2.3", m["version"])
}

func TestHandlers_ListSensorsFansPwms(t *testing.T) {
	reg := NewRegistry()
	RegisterHandlers(reg, testDeps())

	sensors, err := callMethod(t, reg, "list.sensor", nil)
	require.NoError(t, err)
	assert.Len(t, sensors, 1)

	fans, err := callMethod(t, reg, "list.fan", nil)
	require.NoError(t, err)
	assert.Len(t, fans, 1)

	pwms, err := callMethod(t, reg, "list.pwm", nil)
	require.NoError(t, err)
	assert.Len(t, pwms, 1)
}

func TestHandlers_HwmonRescan(t *testing.T) {
	reg := NewRegistry()
	RegisterHandlers(reg, testDeps())

	result, err := callMethod(t, reg, "hwmon.rescan", nil)
	require.NoError(t, err)
	m := result.(map[string]any)
	assert.Equal(t, 1, m["chips"])
	assert.Equal(t, 1, m["pwms"])
}

func TestHandlers_GpuList_DefaultsEmpty(t *testing.T) {
	reg := NewRegistry()
	RegisterHandlers(reg, testDeps())

	result, err := callMethod(t, reg, "gpu.list", nil)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestHandlers_UpdateCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"2.0.0"}`))
	}))
	defer srv.Close()

	reg := NewRegistry()
	RegisterHandlers(reg, testDeps())

	result, err := callMethod(t, reg, "update.check", map[string]any{"manifestURL": srv.URL})
	require.NoError(t, err)
	m := result.(map[string]any)
	assert.Equal(t, "1.2.3", m["current"])
	assert.Equal(t, "2.0.0", m["latest"])
	assert.Equal(t, true, m["available"])
}

func TestHandlers_UpdateCheck_RequiresManifestURL(t *testing.T) {
	reg := NewRegistry()
	RegisterHandlers(reg, testDeps())

	_, err := callMethod(t, reg, "update.check", map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestHandlers_EngineEnableDisableStatus(t *testing.T) {
	reg := NewRegistry()
	RegisterHandlers(reg, testDeps())

	_, err := callMethod(t, reg, "engine.enable", nil)
	require.NoError(t, err)

	status, err := callMethod(t, reg, "engine.status", nil)
	require.NoError(t, err)
	assert.Equal(t, true, status.(map[string]any)["enabled"])

	_, err = callMethod(t, reg, "engine.disable", nil)
	require.NoError(t, err)
}

func TestHandlers_ConfigGetSet(t *testing.T) {
	reg := NewRegistry()
	RegisterHandlers(reg, testDeps())

	_, err := callMethod(t, reg, "config.set", map[string]any{"key": "port", "value": 9000})
	require.NoError(t, err)

	result, err := callMethod(t, reg, "config.get", map[string]any{"key": "port"})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), result.(map[string]any)["port"])
}
