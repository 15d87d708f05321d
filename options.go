package ftlmngt

import (
	"context"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
	"github.com/ehrlich-b/ftlmngt/internal/logging"
)

// DeviceParams describes the collaborator backend and process-level
// knobs a Device is constructed with.
type DeviceParams struct {
	// Provider supplies every subsystem collaborator (collab/memdev for
	// an in-memory device, collab/uringdev for a real one). Required.
	Provider collab.Provider

	// CPUAffinity pins the core thread to a specific CPU (-1 disables
	// pinning). Mirrors the teacher's per-queue CPUAffinity handling.
	CPUAffinity int

	// FastShutdown selects ShutdownFast over ShutdownNormal for
	// Device.Shutdown.
	FastShutdown bool
}

// DefaultParams returns sensible defaults with the given provider
// plugged in, CPUAffinity set to -1 (no CPU pinning) and FastShutdown
// false (normal shutdown).
func DefaultParams(provider collab.Provider) DeviceParams {
	return DeviceParams{
		Provider:    provider,
		CPUAffinity: -1,
	}
}

// Options carries construction-time dependencies that aren't properties
// of the device itself: context, logger, and metrics observer.
type Options struct {
	// Context is the base context device operations run under (if nil,
	// context.Background() is used).
	Context context.Context

	// Logger receives trace and diagnostic output (if nil,
	// logging.Default() is used).
	Logger *logging.Logger

	// Observer receives metrics events (if nil, a MetricsObserver backed
	// by a fresh Metrics is installed and reachable via Device.Metrics).
	Observer Observer
}
