// SPDX-License-Identifier: BSD-3-Clause

package process

import (
	"context"
	"fmt"

	"cirello.io/oversight/v2"
)

// New wraps fn as an oversight.ChildProcess. name is used only to
// identify the child in panic messages; oversight.Add takes its own
// separate name when adding the child to a tree. Any panic inside fn
// is recovered and converted into an error so one misbehaving child
// cannot take down the supervision tree's host goroutine.
func New(name string, fn func(ctx context.Context) error) oversight.ChildProcess {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s %w: %v", name, ErrServicePanic, r)
			}
		}()

		return fn(ctx)
	}
}
