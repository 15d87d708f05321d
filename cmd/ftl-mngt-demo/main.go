// Command ftl-mngt-demo exercises the management-process engine end to
// end against the in-memory collaborator backend: startup, self-test,
// trim, and shutdown, grounded on the teacher's cmd/ublk-mem demo.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ftlmngt "github.com/ehrlich-b/ftlmngt"
	"github.com/ehrlich-b/ftlmngt/collab/memdev"
	"github.com/ehrlich-b/ftlmngt/internal/collab"
	"github.com/ehrlich-b/ftlmngt/internal/logging"
)

func main() {
	var (
		blockCount = flag.Int64("blocks", 1<<16, "number of logical blocks on the simulated base device")
		verbose    = flag.Bool("v", false, "verbose (debug-level) logging")
		fast       = flag.Bool("fast-shutdown", false, "use the fast shutdown path instead of normal")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := memdev.New(ctx, memdev.Config{
		BaseBlockCount:  *blockCount,
		BaseBlockSize:   ftlmngt.DefaultBlockSize,
		CacheBlockCount: *blockCount / 8,
		CacheBlockSize:  ftlmngt.DefaultBlockSize,
		HasCache:        true,
		Mode:            collab.ModeCreate,
	})

	params := ftlmngt.DefaultParams(provider)
	params.FastShutdown = *fast

	device, err := ftlmngt.NewDevice(params, &ftlmngt.Options{Context: ctx, Logger: logger})
	if err != nil {
		logger.Error("failed to construct device", "error", err)
		os.Exit(1)
	}
	defer device.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling")
		cancel()
	}()

	logger.Info("starting device", "blocks", *blockCount)
	if err := device.Startup(); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("device started")

	logger.Info("running self-test")
	if err := device.SelfTest(); err != nil {
		logger.Error("self-test failed", "error", err)
	} else {
		fmt.Println("self-test passed")
	}

	logger.Info("trimming first 1024 blocks")
	if err := device.Unmap(0, 1024); err != nil {
		logger.Error("trim failed", "error", err)
	} else {
		fmt.Println("trim complete")
	}

	snap := device.Metrics().Snapshot()
	fmt.Printf("processes run: %d, steps run: %d, failures: %d\n",
		snap.ProcessesRun, snap.StepsRun, snap.StepsFailed)

	logger.Info("shutting down device", "fast", *fast)
	if err := device.Shutdown(); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("device stopped cleanly")
}
