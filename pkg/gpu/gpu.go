// SPDX-License-Identifier: BSD-3-Clause

// Package gpu defines the narrow seam through which vendor GPU telemetry
// enters a snapshot. lfcd never talks to vendor SDKs (NVML, ROCm-SMI)
// itself; it accepts pre-sampled readings through the Sampler interface.
package gpu

import (
	"context"

	"github.com/linuxfancontrol/lfcd/pkg/telemetry"
)

// Sampler returns the current set of GPU samples for the telemetry
// snapshot's gpus array and the gpu.list RPC method.
type Sampler interface {
	Sample(ctx context.Context) ([]telemetry.GpuSummary, error)
}

// StubSampler is the default Sampler: it reports no GPUs. A real
// deployment wires in a vendor-specific Sampler out of process and
// injects it via service/daemon's options.
type StubSampler struct{}

// Sample always returns an empty, non-nil slice and a nil error.
func (StubSampler) Sample(ctx context.Context) ([]telemetry.GpuSummary, error) {
	return []telemetry.GpuSummary{}, nil
}
