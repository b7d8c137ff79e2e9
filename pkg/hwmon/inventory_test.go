// SPDX-License-Identifier: BSD-3-Clause

package hwmon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixtureChip(t *testing.T, root, chip, name string) string {
	t.Helper()
	dir := filepath.Join(root, chip)
	writeFile(t, filepath.Join(dir, "name"), name+"\n")
	return dir
}

func TestDiscoverer_Scan(t *testing.T) {
	root := t.TempDir()
	dir := fixtureChip(t, root, "hwmon0", "k10temp")
	writeFile(t, filepath.Join(dir, "temp1_input"), "45000\n")
	writeFile(t, filepath.Join(dir, "temp1_label"), "Tctl\n")
	writeFile(t, filepath.Join(dir, "fan1_input"), "1200\n")
	writeFile(t, filepath.Join(dir, "pwm1"), "128\n")
	writeFile(t, filepath.Join(dir, "pwm1_enable"), "1\n")

	d := NewDiscoverer(WithDiscoveryPath(root))
	inv, err := d.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, inv.Chips, 1)
	assert.Equal(t, "k10temp", inv.Chips[0].Name)

	require.Len(t, inv.Temps, 1)
	assert.Equal(t, "Tctl", inv.Temps[0].Label)

	require.Len(t, inv.Fans, 1)
	assert.Equal(t, "fan1", inv.Fans[0].Label)

	require.Len(t, inv.Pwms, 1)
	assert.Equal(t, filepath.Join(dir, "pwm1_enable"), inv.Pwms[0].EnablePath)
	assert.Equal(t, int64(255), inv.Pwms[0].MaxRaw)
}

func TestDiscoverer_ScanMissingRootIsEmpty(t *testing.T) {
	d := NewDiscoverer(WithDiscoveryPath("/nonexistent/hwmon/path"))
	inv, err := d.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, inv.Chips)
}

func TestDiscoverer_RefreshDropsVanishedEntries(t *testing.T) {
	root := t.TempDir()
	dir := fixtureChip(t, root, "hwmon0", "nct6775")
	tempPath := filepath.Join(dir, "temp1_input")
	writeFile(t, tempPath, "40000\n")

	d := NewDiscoverer(WithDiscoveryPath(root))
	inv, err := d.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, inv.Temps, 1)

	require.NoError(t, os.Remove(tempPath))
	require.NoError(t, d.Refresh(context.Background(), inv))
	assert.Empty(t, inv.Temps)
}

func TestInventory_FindHelpers(t *testing.T) {
	inv := &Inventory{
		Chips: []Chip{{Path: "/sys/class/hwmon/hwmon0", Name: "x"}},
		Pwms:  []Pwm{{PwmPath: "/sys/class/hwmon/hwmon0/pwm1"}},
	}

	_, err := inv.FindChip("/sys/class/hwmon/hwmon0")
	require.NoError(t, err)

	_, err = inv.FindChip("/does/not/exist")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = inv.FindPwm("/sys/class/hwmon/hwmon0/pwm1")
	require.NoError(t, err)

	_, err = inv.FindPwm("/sys/class/hwmon/hwmon0/pwm9")
	assert.ErrorIs(t, err, ErrSensorNotFound)
}
