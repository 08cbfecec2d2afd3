// Package app wires configuration, logging, storage, the queue, observer,
// and their collaborators into a single initialized core shared by the
// server and worker entry points.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/interfaces"
	"github.com/bobmcallan/aviary/internal/observer"
	"github.com/bobmcallan/aviary/internal/processor"
	"github.com/bobmcallan/aviary/internal/queue"
	"github.com/bobmcallan/aviary/internal/storage/badgerkv"
)

// App holds every initialized collaborator shared across entry points.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Handles     *badgerkv.HandleCache
	Queue       interfaces.Queue
	Observer    interfaces.Observer
	Processor   interfaces.Processor
	StartupTime time.Time
}

// getBinaryDir returns the directory containing the running executable, so
// relative config and store paths resolve the same way regardless of the
// caller's working directory.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// New initializes configuration, logging, storage, the queue, and the
// observer. configPath may be empty, in which case default resolution
// applies: AVIARY_CONFIG, then a file alongside the binary, then a
// development fallback path.
func New(configPath string) (*App, error) {
	startupTime := time.Now()

	binDir := getBinaryDir()
	if configPath == "" {
		configPath = os.Getenv("AVIARY_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "aviary.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/aviary.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Storage.QueueDBPath != "" && !filepath.IsAbs(config.Storage.QueueDBPath) {
		config.Storage.QueueDBPath = filepath.Join(binDir, config.Storage.QueueDBPath)
	}
	if config.Storage.ObserverDBPath != "" && !filepath.IsAbs(config.Storage.ObserverDBPath) {
		config.Storage.ObserverDBPath = filepath.Join(binDir, config.Storage.ObserverDBPath)
	}

	logger := common.NewLogger(config.Logging.Level)

	handles := badgerkv.NewHandleCache(logger)

	obs, err := observer.New(
		handles,
		config.Storage.ObserverDBPath,
		config.Queue.GetTimestampPadLength(),
		config.Observer.GetDefaultMetricsWindow().Milliseconds(),
		config.Observer.GetFailureRateThreshold(),
		logger,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observer: %w", err)
	}

	q, err := queue.New(
		handles,
		config.Storage.QueueDBPath,
		config.Queue.GetTimestampPadLength(),
		logger,
		obs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	researchClient := processor.NewWikipediaClient(
		processor.WithBaseURL(config.Processor.BaseURL),
		processor.WithLogger(logger),
		processor.WithTimeout(config.Processor.GetTimeout()),
		processor.WithRateLimit(config.Processor.GetRateLimit()),
	)

	return &App{
		Config:      config,
		Logger:      logger,
		Handles:     handles,
		Queue:       q,
		Observer:    obs,
		Processor:   researchClient,
		StartupTime: startupTime,
	}, nil
}

// Close releases every handle the app opened.
func (a *App) Close() error {
	_ = a.Queue.Close()
	_ = a.Observer.Close()
	return a.Handles.Close()
}
