// SPDX-License-Identifier: BSD-3-Clause

package sysfs

import "errors"

var (
	// ErrNotFound indicates that the requested sysfs attribute file does not exist.
	ErrNotFound = errors.New("sysfs attribute not found")
	// ErrPermissionDenied indicates the process lacks permission for the requested access.
	ErrPermissionDenied = errors.New("sysfs permission denied")
	// ErrInvalidValue indicates the file contents could not be parsed as the expected type.
	ErrInvalidValue = errors.New("invalid sysfs value")
	// ErrIOFailure indicates a read or write syscall failed for a reason other than the above.
	ErrIOFailure = errors.New("sysfs io failure")
)
