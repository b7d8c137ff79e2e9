// SPDX-License-Identifier: BSD-3-Clause

package engine

import "errors"

var (
	// ErrUnknownPwm indicates a control's pwmPath does not resolve to an inventoried Pwm.
	ErrUnknownPwm = errors.New("control references unknown pwm")
	// ErrUnknownCurve indicates a control's curveRef does not resolve to a profile curve.
	ErrUnknownCurve = errors.New("control references unknown curve")
	// ErrDuplicatePwm indicates two controls in the same profile target the same pwm path.
	ErrDuplicatePwm = errors.New("duplicate control for pwm")
	// ErrDuplicateCurveName indicates two curves in the same profile share a name.
	ErrDuplicateCurveName = errors.New("duplicate curve name")
)
