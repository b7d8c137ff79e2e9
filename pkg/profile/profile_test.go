// SPDX-License-Identifier: BSD-3-Clause

package profile

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfancontrol/lfcd/pkg/curve"
)

func validProfile() *Profile {
	return &Profile{
		Schema: SchemaV1,
		Name:   "default",
		FanCurves: []FanCurve{
			{
				Name:        "cpu",
				Type:        curve.KindGraph,
				TempSensors: []string{"/sys/class/hwmon/hwmon0/temp1_input"},
				Points: []curve.Point{
					{TempC: 20, Percent: 0},
					{TempC: 80, Percent: 100},
				},
			},
		},
		Controls: []Control{
			{Name: "cpu-fan", PwmPath: "/sys/class/hwmon/hwmon0/pwm1", CurveRef: "cpu", Enabled: true},
		},
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	p := validProfile()
	require.NoError(t, Save(path, p))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p.Name, loaded.Name)
	assert.Equal(t, p.Schema, loaded.Schema)
	require.Len(t, loaded.FanCurves, 1)
	assert.Equal(t, "cpu", loaded.FanCurves[0].Name)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDefaultsSchemaWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	p := validProfile()
	p.Schema = ""
	require.NoError(t, Save(path, p))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SchemaV1, loaded.Schema)
}

func TestValidateAcceptsWellFormedProfile(t *testing.T) {
	curves, err := Validate(validProfile())
	require.NoError(t, err)
	assert.Contains(t, curves, "cpu")
}

func TestValidateRejectsUnknownSchema(t *testing.T) {
	p := validProfile()
	p.Schema = "SomeOther.Schema/v9"
	_, err := Validate(p)
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestValidateRejectsDuplicateCurveNames(t *testing.T) {
	p := validProfile()
	p.FanCurves = append(p.FanCurves, p.FanCurves[0])
	_, err := Validate(p)
	assert.ErrorIs(t, err, ErrDuplicateCurveName)
}

func TestValidateRejectsDuplicatePwmControls(t *testing.T) {
	p := validProfile()
	p.Controls = append(p.Controls, p.Controls[0])
	_, err := Validate(p)
	assert.ErrorIs(t, err, ErrDuplicatePwm)
}

func TestValidateRejectsUnresolvedCurveRef(t *testing.T) {
	p := validProfile()
	p.Controls[0].CurveRef = "nonexistent"
	_, err := Validate(p)
	assert.ErrorIs(t, err, curve.ErrUnresolvedReference)
}

func TestValidateDoesNotCheckPwmPathAgainstHardware(t *testing.T) {
	// Profile-level validation checks curve refs; pwm-path existence against
	// live hardware is the engine's job (spec §4.D applyProfile), exercised
	// in pkg/engine's tests.
	p := validProfile()
	p.Controls[0].PwmPath = "/sys/class/hwmon/hwmon0/pwm999"
	curves, err := Validate(p)
	require.NoError(t, err)
	assert.Contains(t, curves, "cpu")
}

func TestValidateRejectsEmptyGraphPoints(t *testing.T) {
	p := validProfile()
	p.FanCurves[0].Points = nil
	_, err := Validate(p)
	assert.ErrorIs(t, err, ErrInvalidCurve)
}

func TestValidateRejectsTriggerWithOffAboveOn(t *testing.T) {
	p := validProfile()
	p.FanCurves[0].Type = curve.KindTrigger
	p.FanCurves[0].Points = []curve.Point{{TempC: 0, Percent: 20}, {TempC: 0, Percent: 80}}
	p.FanCurves[0].OnC = 40
	p.FanCurves[0].OffC = 50
	_, err := Validate(p)
	assert.ErrorIs(t, err, curve.ErrInvalidTrigger)
}

func TestValidateRejectsMixCurveWithPoints(t *testing.T) {
	p := validProfile()
	p.FanCurves[0].Type = curve.KindMix
	p.FanCurves[0].Mix = curve.MixMax
	// Points left populated: invalid for a mix curve.
	_, err := Validate(p)
	assert.ErrorIs(t, err, ErrInvalidCurve)
}

func TestControlUnmarshalJSON_DefaultsEnabledWhenFieldAbsent(t *testing.T) {
	// Spec §6's on-disk contract is {name,pwmPath,curveRef}, with no
	// "enabled" key; such a document must still drive its control rather
	// than decoding every one of them to Enabled=false.
	doc := []byte(`{"name":"cpu-fan","pwmPath":"/sys/class/hwmon/hwmon0/pwm1","curveRef":"cpu"}`)
	var c Control
	require.NoError(t, json.Unmarshal(doc, &c))
	assert.True(t, c.Enabled)
}

func TestControlUnmarshalJSON_RespectsExplicitFalse(t *testing.T) {
	doc := []byte(`{"name":"cpu-fan","pwmPath":"/sys/class/hwmon/hwmon0/pwm1","curveRef":"cpu","enabled":false}`)
	var c Control
	require.NoError(t, json.Unmarshal(doc, &c))
	assert.False(t, c.Enabled)
}

func TestControlUnmarshalJSON_RespectsExplicitTrue(t *testing.T) {
	doc := []byte(`{"name":"cpu-fan","pwmPath":"/sys/class/hwmon/hwmon0/pwm1","curveRef":"cpu","enabled":true}`)
	var c Control
	require.NoError(t, json.Unmarshal(doc, &c))
	assert.True(t, c.Enabled)
}

func TestValidateDetectsMixCycles(t *testing.T) {
	p := validProfile()
	p.FanCurves[0].Type = curve.KindMix
	p.FanCurves[0].Mix = curve.MixMax
	p.FanCurves[0].Points = nil
	p.FanCurves[0].TempSensors = []string{"cpu"} // references itself
	_, err := Validate(p)
	assert.Error(t, err)
}
