package ftlmngt

import (
	"context"
	"fmt"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
	"github.com/ehrlich-b/ftlmngt/internal/dispatch"
	"github.com/ehrlich-b/ftlmngt/internal/logging"
	"github.com/ehrlich-b/ftlmngt/internal/trace"
	"github.com/ehrlich-b/ftlmngt/internal/upgrade"
	"github.com/ehrlich-b/ftlmngt/mngt"
	"github.com/ehrlich-b/ftlmngt/processes"
)

// Device is the public handle for one FTL device's management-process
// engine: a collaborator Provider, a pinned core-thread Dispatcher, and
// the mngt.Engine that sequences lifecycle operations over both.
type Device struct {
	provider   collab.Provider
	dispatcher *dispatch.Dispatcher
	engine     *mngt.Engine
	logger     *logging.Logger
	metrics    *Metrics
	observer   Observer

	ctx          context.Context
	fastShutdown bool
	upgradeDrv   *upgrade.Driver
}

// NewDevice constructs a Device and starts its core thread. The device
// is not otherwise live until Startup succeeds.
func NewDevice(params DeviceParams, options *Options) (*Device, error) {
	if params.Provider == nil {
		return nil, NewConstructionError("NewDevice", "DeviceParams.Provider is required")
	}
	if options == nil {
		options = &Options{}
	}

	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	observer := options.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	disp := dispatch.New(dispatch.Config{
		CPUAffinity: params.CPUAffinity,
		Logger:      logger,
	})
	disp.Start()

	tracer := trace.New(logger)
	engine := mngt.NewEngine(disp, tracer, observer)

	d := &Device{
		provider:     params.Provider,
		dispatcher:   disp,
		engine:       engine,
		logger:       logger,
		metrics:      metrics,
		observer:     observer,
		ctx:          ctx,
		fastShutdown: params.FastShutdown,
		upgradeDrv:   defaultUpgradeDriver(),
	}
	return d, nil
}

// Metrics returns the device's built-in metrics instance. It reflects
// real counters only if no custom Observer was supplied to NewDevice.
func (d *Device) Metrics() *Metrics { return d.metrics }

// run drives desc to completion synchronously from the caller's
// goroutine: it calls Execute (which posts the process's first step
// onto the core thread) and blocks on a buffered channel until the
// process's CallerRecord callback fires.
// This is the blocking convenience wrapper every exported operation
// below uses; callers who want a non-blocking API can call d.engine
// directly with their own CallerRecord.
func (d *Device) run(desc *mngt.ProcessDesc) error {
	result := make(chan int, 1)
	caller := mngt.CallerRecord{
		Callback: func(status int) { result <- status },
		Origin:   dispatch.PostToOrigin,
	}
	if err := d.engine.Execute(d.provider, desc, caller); err != nil {
		return WrapError(desc.Name, err)
	}
	if status := <-result; status != 0 {
		return NewStepError(desc.Name, "", ErrCodeStepFailed, fmt.Sprintf("process failed with status %d", status))
	}
	return nil
}

// Startup brings the device up, branching internally between
// First-Start and Restore (and, within Restore, Clean-Start and
// Recover) according to the provider's persisted state.
func (d *Device) Startup() error {
	return d.run(processes.Startup)
}

// Shutdown tears the device down, using the fast path if
// DeviceParams.FastShutdown was set.
func (d *Device) Shutdown() error {
	if d.fastShutdown {
		return d.run(processes.ShutdownFast)
	}
	return d.run(processes.ShutdownNormal)
}

// Unmap runs the Trim process over [lba, lba+numBlocks).
func (d *Device) Unmap(lba, numBlocks uint64) error {
	return d.run(processes.NewTrim(lba, numBlocks))
}

// SelfTest runs the L2P-vs-valid-map consistency walk standalone,
// outside of a Clean-Start/Recover composition.
func (d *Device) SelfTest() error {
	return d.run(&mngt.ProcessDesc{
		Name:  "self_test",
		Steps: []mngt.StepDesc{{Name: "self_test", Action: collab.SelfTestWalk}},
	})
}

// LayoutUpgrade walks every region forward to the driver's target
// layout version, persisting the super-block after each region.
func (d *Device) LayoutUpgrade() error {
	return d.run(&mngt.ProcessDesc{
		Name:  "layout_upgrade",
		Steps: []mngt.StepDesc{{Name: "layout_upgrade", Action: d.upgradeDrv.LayoutUpgradeStep}},
	})
}

// Close stops the device's core thread. It does not run Shutdown; call
// Shutdown first if the media needs to end up in a clean state.
func (d *Device) Close() {
	d.metrics.Stop()
	d.dispatcher.Stop()
}

// defaultUpgradeDriver wires the one region upgrade this repository
// implements end to end: the P2L checkpoint's v0 (bare address) to v1
// (address + CRC32C) transform.
func defaultUpgradeDriver() *upgrade.Driver {
	return &upgrade.Driver{
		Regions:       []string{"p2l"},
		TargetVersion: 1,
		Upgrades: map[string]upgrade.RegionUpgrade{
			"p2l": upgrade.P2LUpgradeV0ToV1,
		},
	}
}
