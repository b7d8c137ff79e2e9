// SPDX-License-Identifier: BSD-3-Clause

package daemon

import "errors"

var (
	// ErrNameEmpty indicates Run was called on a Daemon with no name set.
	ErrNameEmpty = errors.New("daemon name is empty")
	// ErrPanicked indicates Run recovered from a panic in its own body.
	ErrPanicked = errors.New("daemon panicked")
	// ErrAddChild indicates a supervised child could not be added to the
	// supervision tree.
	ErrAddChild = errors.New("failed to add child process to supervision tree")
)
