package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/derivex/internal/logger"
	"github.com/custodia-labs/derivex/internal/metrics"
)

// shutdownTimeout bounds how long the metrics server drains on exit.
const shutdownTimeout = 5 * time.Second

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued tasks and fire schedules",
	Long: `Runs a pool of workers that take tasks off the queue, apply their
transformer chains and write the results. Failed tasks are retried with
exponential backoff and dead-lettered once the retry budget is spent.

The worker also fires due schedules, serves prometheus metrics and reloads
settings when the config file changes. Stop it with Ctrl-C; tasks in flight
are released back to the queue.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

var (
	workerConcurrency int
	workerNoScheduler bool
	workerMetricsAddr string
)

func init() {
	workerCmd.Flags().IntVarP(&workerConcurrency, "concurrency", "c", 0, "Number of concurrent tasks (default from settings)")
	workerCmd.Flags().BoolVar(&workerNoScheduler, "no-scheduler", false, "Do not fire schedules from this worker")
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", "", "Address to serve /metrics on (default from settings)")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if taskQueue == nil {
		return notConfigured("queue")
	}

	if workerConcurrency > 0 && settingsProvider != nil {
		s := settingsProvider.Load()
		s.Concurrency = workerConcurrency
		settingsProvider.Store(s)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := currentSettings()
	logger.Section("Worker")
	logger.Info("concurrency=%d max_retries=%d retry_delay=%s", s.Concurrency, s.MaxRetries, s.RetryDelay)
	cmd.Printf("Worker started with %d workers. Press Ctrl-C to stop.\n", s.Concurrency)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return taskQueue.Consume(ctx)
	})

	if scheduler != nil && !workerNoScheduler {
		g.Go(func() error {
			return runScheduler(ctx)
		})
	}

	addr := workerMetricsAddr
	if addr == "" {
		addr = metricsAddr
	}
	if addr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, addr)
		})
	}

	if configStore != nil && loadSettings != nil && settingsProvider != nil {
		g.Go(func() error {
			return configStore.Watch(ctx, reloadSettings)
		})
	}

	err := g.Wait()
	cmd.Println("Worker stopped.")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker failed: %w", err)
	}
	return nil
}

// runScheduler runs the scheduler until ctx ends.
func runScheduler(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- scheduler.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := scheduler.Stop(); err != nil {
			logger.Warn("scheduler stop: %v", err)
		}
		return <-errCh
	}
}

// serveMetrics serves the prometheus handler until ctx ends.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// reloadSettings swaps in settings re-read from the config file. Invalid
// files are logged and the previous settings stay in effect.
func reloadSettings() {
	s, err := loadSettings(configStore)
	if err != nil {
		logger.Warn("settings not reloaded: %v", err)
		return
	}
	if workerConcurrency > 0 {
		s.Concurrency = workerConcurrency
	}
	settingsProvider.Store(s)
	logger.Info("settings reloaded from %s", configStore.Path())
}
