// SPDX-License-Identifier: BSD-3-Clause

// Package process adapts a plain context-driven function into an
// oversight.ChildProcess, adding panic recovery so one crashing child
// (the engine ticker, the RPC server, ...) doesn't take the daemon's
// whole supervision tree down with it.
package process
