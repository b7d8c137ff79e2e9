// SPDX-License-Identifier: BSD-3-Clause

// Package telemetry wires up OpenTelemetry tracing, metrics, and log
// export for the daemon: a single process with no service mesh to
// correlate across, so the package's job is mostly choosing sane
// defaults (no-op providers when no OTLP endpoint is configured) and
// giving the engine tick loop, detection workers, and RPC server a
// consistent way to open spans.
//
// # Basic setup
//
//	func main() {
//		telemetry.DefaultSetup()
//		logger := log.GetGlobalLogger()
//		logger.Info("lfcd starting")
//	}
//
// # Spans around engine and detection work
//
//	tracer := otel.Tracer("lfcd/engine")
//	ctx, span := tracer.Start(ctx, "engine.tick")
//	defer span.End()
//	span.SetAttributes(attribute.Int("engine.controls", len(controls)))
package telemetry
