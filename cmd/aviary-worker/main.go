// Command aviary-worker runs WORKER_CONCURRENCY independent polling agents
// that claim jobs from the queue, invoke the research processor, and report
// completion, retry, or permanent failure back to the queue and observer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobmcallan/aviary/internal/app"
	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/worker"
)

func main() {
	common.LoadVersionFromFile()

	configPath := os.Getenv("AVIARY_CONFIG")
	a, err := app.New(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	config := worker.Config{
		PollInterval: a.Config.Queue.GetPollInterval(),
		BaseDelay:    a.Config.Queue.GetBaseDelay(),
		MaxRetries:   a.Config.Queue.GetMaxRetries(),
	}

	concurrency := a.Config.Queue.GetWorkerConcurrency()
	workers := make([]*worker.Worker, concurrency)
	ctx, cancel := context.WithCancel(context.Background())

	for i := range workers {
		workers[i] = worker.New(config, a.Queue, a.Observer, a.Processor, a.Logger)
		workers[i].Start(ctx)
	}
	a.Logger.Info().Int("workers", concurrency).Msg("worker pool started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("shutdown signal received")
	cancel()
	for _, w := range workers {
		w.Stop()
	}
	if err := a.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("app close failed")
	}

	common.PrintShutdownBanner(a.Logger)
}
