// SPDX-License-Identifier: BSD-3-Clause

package hwmon

import "errors"

var (
	// ErrDeviceNotFound indicates the requested hwmon chip does not exist.
	ErrDeviceNotFound = errors.New("hwmon device not found")
	// ErrSensorNotFound indicates the requested sensor does not exist on a chip.
	ErrSensorNotFound = errors.New("hwmon sensor not found")
)
