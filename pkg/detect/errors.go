// SPDX-License-Identifier: BSD-3-Clause

package detect

import "errors"

var (
	// ErrAlreadyRunning indicates a detection worker was started twice.
	ErrAlreadyRunning = errors.New("detection already running")
	// ErrNotRunning indicates Abort was called with no worker active.
	ErrNotRunning = errors.New("detection not running")
)
