// Command aviary-server runs the admission surface: the HTTP/JSON API that
// accepts bird-research submissions and serves job status and metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobmcallan/aviary/internal/app"
	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/server"
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

	srv := server.New(
		a.Config.Server.Host,
		a.Config.Server.Port,
		a.Queue,
		a.Observer,
		a.Logger,
		a.Config.Observer.GetDefaultMetricsWindow().Milliseconds(),
		a.Config.Auth.AdmissionToken,
	)

	go func() {
		if err := srv.Start(); err != nil {
			a.Logger.Fatal().Err(err).Msg("admission surface failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("admission surface shutdown failed")
	}
	if err := a.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("app close failed")
	}

	common.PrintShutdownBanner(a.Logger)
}
