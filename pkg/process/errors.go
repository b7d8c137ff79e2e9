// SPDX-License-Identifier: BSD-3-Clause

package process

import "errors"

var (
	// ErrServicePanic indicates a child process panicked during execution.
	ErrServicePanic = errors.New("service panicked during execution")
)
