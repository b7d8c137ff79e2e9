// SPDX-License-Identifier: BSD-3-Clause

// Package log provides structured logging functionality with multi-target output
// support for console and OpenTelemetry observability. The package integrates
// multiple logging libraries to provide a unified interface that outputs
// human-readable logs to the console while simultaneously sending structured
// telemetry data to OpenTelemetry for distributed tracing and monitoring.
//
// The package is built around Go's standard library slog package and provides
// an adapter for oversight process supervisor logging, allowing consistent
// structured logging across all components of the daemon.
//
// # Core Features
//
// The package provides several key features:
//
//   - Dual output: Human-readable console logs and structured OpenTelemetry data
//   - Standard library slog integration for structured logging
//   - Oversight process supervisor logger integration
//   - Automatic timestamp and debug level configuration
//
// # Basic Usage
//
// Creating and using the default logger:
//
//	logger := log.NewDefaultLogger()
//	logger.Info("lfcd starting", "version", "1.0.0", "config", "/etc/lfcd/config.toml")
//	logger.Debug("Debug information", "module", "engine", "control_count", 5)
//	logger.Error("Operation failed", "error", err, "operation", "hwmon_scan")
//
// Using the global logger:
//
//	log.RedirectSlogger() // Redirect standard slog to use our logger
//	slog.Info("This will now use the configured logger with dual output")
//
// # Structured Logging
//
// The logger supports structured logging with key-value pairs:
//
//	func handleControlWrite(pwmPath string, percent int) {
//		logger := log.GetGlobalLogger()
//
//		logger.Info("pwm write",
//			"pwm_path", pwmPath,
//			"percent", percent,
//			"timestamp", time.Now(),
//		)
//	}
//
// # Error Logging with Context
//
// Enhanced error logging with contextual information:
//
//	func applyProfile(name string, p *profile.Profile) error {
//		logger := log.GetGlobalLogger()
//
//		logger.Info("applying profile",
//			"profile", name,
//			"curve_count", len(p.FanCurves),
//			"control_count", len(p.Controls),
//		)
//
//		if err := engine.ApplyProfile(p); err != nil {
//			logger.Error("profile apply failed",
//				"profile", name,
//				"error", err,
//			)
//			return fmt.Errorf("apply profile %s: %w", name, err)
//		}
//
//		logger.Info("profile applied",
//			"profile", name,
//		)
//
//		return nil
//	}
//
// # Service Logging Pattern
//
// Recommended pattern for daemon initialization and lifecycle logging:
//
//	func (d *Daemon) Run(ctx context.Context) error {
//		logger := log.GetGlobalLogger()
//
//		logger.Info("lfcd starting",
//			"version", d.Version(),
//			"config_path", d.ConfigPath(),
//			"pid", os.Getpid(),
//		)
//
//		// Scan hwmon inventory
//		if err := d.scanInventory(); err != nil {
//			logger.Error("hwmon scan failed",
//				"error", err,
//				"component", "hwmon",
//			)
//			return fmt.Errorf("hwmon scan failed: %w", err)
//		}
//
//		logger.Info("hwmon inventory ready",
//			"chip_count", len(d.Inventory().Chips),
//		)
//
//		// Start RPC and control loops
//		logger.Info("lfcd ready",
//			"listen_addr", d.ListenAddr(),
//			"startup_duration_ms", time.Since(d.startTime).Milliseconds(),
//		)
//
//		return d.serve(ctx)
//	}
//
// # Request/Response Logging
//
// Logging HTTP requests and responses with correlation:
//
//	func logHTTPRequest(r *http.Request) {
//		logger := log.GetGlobalLogger()
//		requestID := r.Header.Get("X-Request-ID")
//
//		logger.Info("HTTP request received",
//			"method", r.Method,
//			"path", r.URL.Path,
//			"remote_addr", r.RemoteAddr,
//			"user_agent", r.UserAgent(),
//			"request_id", requestID,
//			"content_length", r.ContentLength,
//		)
//	}
//
//	func logHTTPResponse(status int, duration time.Duration, requestID string) {
//		logger := log.GetGlobalLogger()
//
//		level := slog.LevelInfo
//		if status >= 400 {
//			level = slog.LevelWarn
//		}
//		if status >= 500 {
//			level = slog.LevelError
//		}
//
//		logger.Log(context.Background(), level, "HTTP response sent",
//			"status", status,
//			"duration_ms", duration.Milliseconds(),
//			"request_id", requestID,
//		)
//	}
//
// # Performance and Metrics Logging
//
// Logging performance metrics and system health:
//
//	func logSystemMetrics() {
//		logger := log.GetGlobalLogger()
//
//		var m runtime.MemStats
//		runtime.ReadMemStats(&m)
//
//		logger.Debug("System metrics",
//			"goroutines", runtime.NumGoroutine(),
//			"memory_alloc_mb", m.Alloc/1024/1024,
//			"memory_sys_mb", m.Sys/1024/1024,
//			"gc_cycles", m.NumGC,
//			"cpu_cores", runtime.NumCPU(),
//		)
//	}
//
//	func logControlMetrics(controlName string, tempC float64, percent int) {
//		logger := log.GetGlobalLogger()
//
//		logger.Info("control sample",
//			"control", controlName,
//			"temperature_celsius", tempC,
//			"duty_percent", percent,
//		)
//	}
//
// # Error Recovery Logging
//
// Logging error recovery and fallback scenarios:
//
//	func (d *Daemon) handlePanic() {
//		if r := recover(); r != nil {
//			logger := log.GetGlobalLogger()
//
//			logger.Error("child panic recovered",
//				"child", "engine-tick",
//				"panic", r,
//				"stack", string(debug.Stack()),
//				"recovery_action", "restart",
//			)
//		}
//	}
//
// # Integration with OpenTelemetry
//
// The package automatically integrates with OpenTelemetry for distributed tracing:
//
//	func processWithTracing(ctx context.Context, operation string) error {
//		logger := log.GetGlobalLogger()
//
//		// Extract trace information from context if available
//		span := trace.SpanFromContext(ctx)
//		traceID := span.SpanContext().TraceID().String()
//		spanID := span.SpanContext().SpanID().String()
//
//		logger.Info("Operation started",
//			"operation", operation,
//			"trace_id", traceID,
//			"span_id", spanID,
//		)
//
//		// The logger will automatically include trace context
//		// in OpenTelemetry output for correlation
//
//		return nil
//	}
//
// # Configuration and Best Practices
//
// Recommended initialization pattern for services:
//
//	func main() {
//		// Initialize telemetry first
//		telemetry.DefaultSetup()
//
//		// Set up global logging
//		log.RedirectSlogger()
//		logger := log.GetGlobalLogger()
//
//		logger.Info("Application starting",
//			"name", "lfcd",
//			"version", version.BuildVersion,
//			"commit", version.BuildCommit,
//			"build_time", version.BuildTime,
//		)
//
//		// Continue with application setup...
//	}
//
// # Thread Safety
//
// All logger instances are safe for concurrent use from multiple goroutines.
// The underlying slog and zerolog implementations handle concurrent access
// appropriately.
//
// # Performance Considerations
//
// The dual-output design has minimal performance impact:
//
//   - Console output goes through zerolog's console writer, which formats
//     human-readable text
//   - OpenTelemetry output is asynchronous and batched
//   - Debug level logs are only processed when debug logging is enabled
//   - Structured logging with key-value pairs is more efficient than string formatting
//
// For high-throughput scenarios, consider:
//
//   - Using appropriate log levels (avoid excessive debug logging in production)
//   - Batching related log entries when possible
//   - Using sampling for high-frequency events
package log
