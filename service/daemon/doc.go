// SPDX-License-Identifier: BSD-3-Clause

// Package daemon wires the hwmon discovery, curve engine, detection
// worker, job manager, shared-memory publisher, and JSON-RPC server
// into a single supervised process: lfcd itself.
package daemon
