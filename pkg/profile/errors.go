// SPDX-License-Identifier: BSD-3-Clause

package profile

import "errors"

var (
	// ErrNotFound indicates the requested profile file does not exist.
	ErrNotFound = errors.New("profile not found")
	// ErrInvalidSchema indicates the profile's schema field is missing or unrecognized.
	ErrInvalidSchema = errors.New("invalid profile schema")
	// ErrDuplicateCurveName indicates two curves in a profile share a name.
	ErrDuplicateCurveName = errors.New("duplicate curve name")
	// ErrDuplicatePwm indicates two controls target the same pwm path.
	ErrDuplicatePwm = errors.New("duplicate control for pwm")
	// ErrInvalidCurve indicates a curve fails its kind-specific shape requirements.
	ErrInvalidCurve = errors.New("invalid curve definition")
)
