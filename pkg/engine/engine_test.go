// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfancontrol/lfcd/pkg/curve"
	"github.com/linuxfancontrol/lfcd/pkg/hwmon"
	"github.com/linuxfancontrol/lfcd/pkg/profile"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixtureInventory(t *testing.T) (*hwmon.Inventory, string, string) {
	t.Helper()
	root := t.TempDir()
	tempPath := filepath.Join(root, "hwmon0", "temp1_input")
	pwmPath := filepath.Join(root, "hwmon0", "pwm1")
	enablePath := filepath.Join(root, "hwmon0", "pwm1_enable")
	writeFile(t, tempPath, "40000\n")
	writeFile(t, pwmPath, "0\n")
	writeFile(t, enablePath, "2\n")

	inv := &hwmon.Inventory{
		Temps: []hwmon.TempSensor{{ChipPath: filepath.Join(root, "hwmon0"), InputPath: tempPath, Label: "Tctl"}},
		Pwms:  []hwmon.Pwm{{ChipPath: filepath.Join(root, "hwmon0"), PwmPath: pwmPath, EnablePath: enablePath, MaxRaw: 255}},
	}
	return inv, tempPath, pwmPath
}

func basicProfile(tempPath, pwmPath string) *profile.Profile {
	return &profile.Profile{
		Schema: profile.SchemaV1,
		Name:   "test",
		FanCurves: []profile.FanCurve{
			{
				Name:        "cpu",
				Type:        curve.KindGraph,
				TempSensors: []string{tempPath},
				Points: []curve.Point{
					{TempC: 20, Percent: 0},
					{TempC: 40, Percent: 40},
					{TempC: 60, Percent: 80},
					{TempC: 80, Percent: 100},
				},
			},
		},
		Controls: []profile.Control{
			{Name: "cpu-fan", PwmPath: pwmPath, CurveRef: "cpu", Enabled: true},
		},
	}
}

func TestEngine_ApplyProfileRejectsUnknownPwm(t *testing.T) {
	inv, tempPath, _ := fixtureInventory(t)
	e := New()
	e.SetInventory(inv)

	p := basicProfile(tempPath, "/sys/class/hwmon/hwmon0/pwm9")
	err := e.ApplyProfile(p)
	assert.ErrorIs(t, err, ErrUnknownPwm)
}

func TestEngine_TickWritesPercent(t *testing.T) {
	inv, tempPath, pwmPath := fixtureInventory(t)
	e := New(WithDeltaC(0), WithForceTickInterval(0), WithSpinUp(0, 0))
	e.SetInventory(inv)

	p := basicProfile(tempPath, pwmPath)
	require.NoError(t, e.ApplyProfile(p))
	require.NoError(t, e.Enable(context.Background(), true))

	e.Tick(context.Background())

	data, err := os.ReadFile(pwmPath)
	require.NoError(t, err)
	assert.NotEqual(t, "0", string(data))

	status := e.Status()
	assert.True(t, status.Enabled)
}

func TestEngine_DisabledEngineDoesNotWrite(t *testing.T) {
	inv, tempPath, pwmPath := fixtureInventory(t)
	e := New()
	e.SetInventory(inv)
	require.NoError(t, e.ApplyProfile(basicProfile(tempPath, pwmPath)))

	e.Tick(context.Background())

	data, err := os.ReadFile(pwmPath)
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(data))
}

// TestEngine_ForceTickRewritesUnchangedTarget exercises spec §8's "Force
// tick" property and the literal scenario 3: with constant temperature
// and the deltaC gate holding the target steady, a tick inside the
// force window must not write, but the tick that crosses the force
// window must re-issue the same value rather than being coalesced away.
func TestEngine_ForceTickRewritesUnchangedTarget(t *testing.T) {
	inv, tempPath, pwmPath := fixtureInventory(t)
	writeFile(t, tempPath, "50000\n") // 50.0C

	// A flat curve segment over the whole tested range isolates the
	// force-tick/coalescing behavior from curve interpolation: 50.0C and
	// 50.3C must evaluate to the identical 60%, matching the literal
	// values of spec §8 scenario 3.
	p := &profile.Profile{
		Schema: profile.SchemaV1,
		Name:   "test",
		FanCurves: []profile.FanCurve{{
			Name:        "cpu",
			Type:        curve.KindGraph,
			TempSensors: []string{tempPath},
			Points: []curve.Point{
				{TempC: 0, Percent: 60},
				{TempC: 100, Percent: 60},
			},
		}},
		Controls: []profile.Control{{Name: "cpu-fan", PwmPath: pwmPath, CurveRef: "cpu", Enabled: true}},
	}

	e := New(WithDeltaC(0.5), WithForceTickInterval(2*time.Second), WithSpinUp(0, 0))
	e.SetInventory(inv)
	require.NoError(t, e.ApplyProfile(p))
	require.NoError(t, e.Enable(context.Background(), true))

	e.Tick(context.Background()) // tick1: writes target for 50C
	first, err := os.ReadFile(pwmPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(pwmPath, []byte("1\n"), 0o644)) // poison: would differ from a real re-write
	writeFile(t, tempPath, "50300\n")                               // 50.3C: within deltaC of 50.0

	e.mu.Lock()
	var rule *RuleState
	for _, r := range e.rules {
		rule = r
	}
	rule.LastWrite = time.Now() // pretend tick1 just happened
	e.mu.Unlock()

	e.Tick(context.Background()) // tick2: gated, no write expected
	held, err := os.ReadFile(pwmPath)
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(held), "tick within deltaC and force window must not write")

	e.mu.Lock()
	for _, r := range e.rules {
		r.LastWrite = time.Now().Add(-3 * time.Second) // force window elapsed
	}
	e.mu.Unlock()

	e.Tick(context.Background()) // tick3: force tick, must rewrite even though target is unchanged
	final, err := os.ReadFile(pwmPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(final), "force tick must re-issue the same target")
	assert.NotEqual(t, "1\n", string(final))
}

func TestEngine_PauseSuspendsWrites(t *testing.T) {
	inv, tempPath, pwmPath := fixtureInventory(t)
	e := New(WithDeltaC(0), WithForceTickInterval(0), WithSpinUp(0, 0))
	e.SetInventory(inv)
	require.NoError(t, e.ApplyProfile(basicProfile(tempPath, pwmPath)))
	require.NoError(t, e.Enable(context.Background(), true))

	e.Pause()
	e.Tick(context.Background())

	data, err := os.ReadFile(pwmPath)
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(data), "a paused engine must not write, as if it were disabled")

	e.Resume()
	e.Tick(context.Background())

	data, err = os.ReadFile(pwmPath)
	require.NoError(t, err)
	assert.NotEqual(t, "0\n", string(data))
}

func TestEngine_EnableRestoresSavedMode(t *testing.T) {
	inv, _, pwmPath := fixtureInventory(t)
	e := New()
	e.SetInventory(inv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pwm, err := inv.FindPwm(pwmPath)
	require.NoError(t, err)
	e.ensureSavedMode(ctx, pwm)

	require.NoError(t, e.Enable(ctx, true))
	require.NoError(t, e.Enable(ctx, false))

	data, err := os.ReadFile(pwmPath)
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))
}
