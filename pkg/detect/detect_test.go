// SPDX-License-Identifier: BSD-3-Clause

package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfancontrol/lfcd/pkg/hwmon"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixtureInventory(t *testing.T) *hwmon.Inventory {
	t.Helper()
	root := t.TempDir()
	pwmPath := filepath.Join(root, "pwm1")
	enablePath := filepath.Join(root, "pwm1_enable")
	fanPath := filepath.Join(root, "fan1_input")
	writeFile(t, pwmPath, "0\n")
	writeFile(t, enablePath, "2\n")
	writeFile(t, fanPath, "900\n")

	return &hwmon.Inventory{
		Pwms: []hwmon.Pwm{{PwmPath: pwmPath, EnablePath: enablePath, MaxRaw: 255}},
		Fans: []hwmon.Fan{{InputPath: fanPath, Label: "fan1"}},
	}
}

func TestWorker_RampRestoresOriginalModeOnCompletion(t *testing.T) {
	inv := fixtureInventory(t)
	w := NewWorker(inv, RampConfig{SettleMs: 1, SpinupPollMs: 1, RampStartPercent: 90, RampEndPercent: 100})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Start(ctx))
	require.Eventually(t, func() bool { return !w.Running() }, 4*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(inv.Pwms[0].PwmPath)
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))

	enableData, err := os.ReadFile(inv.Pwms[0].EnablePath)
	require.NoError(t, err)
	assert.Equal(t, "2", string(enableData))

	results := w.Results()
	require.Len(t, results, 1)
}

func TestWorker_WaitBlocksUntilRestoreCompletes(t *testing.T) {
	inv := fixtureInventory(t)
	w := NewWorker(inv, RampConfig{SettleMs: 1, SpinupPollMs: 1, RampStartPercent: 90, RampEndPercent: 100})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Start(ctx))
	w.Wait()

	assert.False(t, w.Running())
	data, err := os.ReadFile(inv.Pwms[0].PwmPath)
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))
}

func TestWorker_StartTwiceIsRejected(t *testing.T) {
	inv := fixtureInventory(t)
	w := NewWorker(inv, RampConfig{SettleMs: 50, SpinupPollMs: 50, RampStartPercent: 0, RampEndPercent: 100})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Start(ctx))
	assert.ErrorIs(t, w.Start(ctx), ErrAlreadyRunning)
	require.NoError(t, w.Abort())
}

func TestWorker_AbortRestoresAndStopsMidRamp(t *testing.T) {
	inv := fixtureInventory(t)
	w := NewWorker(inv, RampConfig{SettleMs: 5000, SpinupPollMs: 5000, RampStartPercent: 0, RampEndPercent: 100})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, w.Start(ctx))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, w.Abort())
	assert.False(t, w.Running())
}

func TestDetectCoupling_FindsRisingSensor(t *testing.T) {
	root := t.TempDir()
	pwmPath := filepath.Join(root, "pwm1")
	enablePath := filepath.Join(root, "pwm1_enable")
	tempPath := filepath.Join(root, "temp1_input")
	writeFile(t, pwmPath, "50\n")
	writeFile(t, enablePath, "2\n")
	writeFile(t, tempPath, "40000\n")

	inv := &hwmon.Inventory{
		Pwms:  []hwmon.Pwm{{PwmPath: pwmPath, EnablePath: enablePath, MaxRaw: 255}},
		Temps: []hwmon.TempSensor{{InputPath: tempPath, Label: "cpu"}},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		writeFile(t, tempPath, "55000\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := DetectCoupling(ctx, inv, CouplingConfig{
		Hold:            50 * time.Millisecond,
		MinDeltaC:       1,
		RpmDeltaThresh:  30,
		TachCheckWindow: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tempPath, results[0].BestTempPath)

	data, err := os.ReadFile(pwmPath)
	require.NoError(t, err)
	assert.Equal(t, "50", string(data))
}
