// Command derivex re-derives fields across a document store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/custodia-labs/derivex/internal/adapters/driven/config/file"
	"github.com/custodia-labs/derivex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/derivex/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/derivex/internal/adapters/driving/cli"
	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/services"
	"github.com/custodia-labs/derivex/internal/logger"
	"github.com/custodia-labs/derivex/internal/transformers"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	defer logger.Sync()

	if err := file.LoadDotEnv(".env"); err != nil {
		return err
	}

	config, err := file.NewConfigStore(os.Getenv("DERIVEX_HOME"))
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	s, err := file.LoadSettings(config)
	if err != nil {
		return err
	}
	settings := domain.NewSettingsProvider(s)

	backend, cleanup, err := openBackend(config)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := transformers.DefaultRegistry()
	processor := services.NewBatchProcessor(backend.docs, registry, settings)
	runner := services.NewTaskRunner(processor, services.NewRetryPolicy(settings), backend.letters)
	queue, admin := backend.queue(runner, settings)
	dispatch := services.NewDispatcher(backend.docs, queue, registry, settings)
	sched := services.NewScheduler(backend.schedules, dispatch, 0)

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Dispatcher:   dispatch,
		Documents:    services.NewDocumentService(backend.docs, settings),
		Failures:     services.NewFailureService(backend.letters, queue),
		Schedules:    sched,
		Scheduler:    sched,
		Monitor:      services.NewMonitor(backend.docs),
		Transformers: registry,
		Queue:        queue,
		QueueAdmin:   admin,
		Config:       config,
		Settings:     settings,
		LoadSettings: file.LoadSettings,
		MetricsAddr:  config.GetString(file.KeyMetricsAddr),
	})

	return cli.Execute(context.Background())
}

// backend groups the storage adapters selected by store.driver.
type backend struct {
	docs      driven.DocumentStore
	letters   driven.DeadLetterStore
	schedules driven.ScheduleStore
	queue     func(*services.TaskRunner, *domain.SettingsProvider) (driven.TaskQueue, cli.QueueAdmin)
}

func openBackend(config driven.ConfigStore) (*backend, func(), error) {
	driver, err := file.StoreDriver(config)
	if err != nil {
		return nil, nil, err
	}

	if driver == file.DriverMemory {
		logger.Warn("store.driver is memory: documents and tasks are lost on exit")
		b := &backend{
			docs:      memory.NewDocumentStore(),
			letters:   memory.NewDeadLetterStore(),
			schedules: memory.NewScheduleStore(),
		}
		var q *memory.Queue
		b.queue = func(r *services.TaskRunner, s *domain.SettingsProvider) (driven.TaskQueue, cli.QueueAdmin) {
			q = memory.NewQueue(r, s)
			return q, nil
		}
		return b, func() {
			if q != nil {
				q.Close()
			}
		}, nil
	}

	store, err := sqlite.NewStore(config.GetString(file.KeyDataDir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	b := &backend{
		docs:      store.DocumentStore(),
		letters:   store.DeadLetterStore(),
		schedules: store.ScheduleStore(),
		queue: func(r *services.TaskRunner, s *domain.SettingsProvider) (driven.TaskQueue, cli.QueueAdmin) {
			q := store.Queue(r, s)
			return q, q
		},
	}
	return b, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store: %v", err)
		}
	}, nil
}
