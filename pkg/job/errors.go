// SPDX-License-Identifier: BSD-3-Clause

package job

import "errors"

var (
	// ErrNotFound indicates no job exists with the given id.
	ErrNotFound = errors.New("job not found")
	// ErrNotCancelable indicates the job already reached a terminal state.
	ErrNotCancelable = errors.New("job not cancelable")
	// ErrNotDone indicates commit was called before the job finished successfully.
	ErrNotDone = errors.New("job not done")
)
