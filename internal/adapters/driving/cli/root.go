// Package cli provides the derivex command line interface.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
	"github.com/custodia-labs/derivex/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// verbose enables debug logging for every command.
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "derivex",
	Short: "Re-derive fields across a document store",
	Long: `derivex selects documents with a query, runs them through a chain of
transformers and writes the derived fields back in bulk. Work is split into
batches that are queued for workers, retried on failure and dead-lettered
when the retry budget is spent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
		logger.SetOutput(cmd.ErrOrStderr())
	},
}

// TransformerCatalog lists and validates transformer names.
type TransformerCatalog interface {
	Names() []string
	Validate(names []string) error
}

// QueueAdmin inspects and prunes a durable queue.
type QueueAdmin interface {
	Stats(ctx context.Context) (map[domain.TaskStatus]int, error)
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Services holds the core services the commands drive.
type Services struct {
	Dispatcher   driving.Dispatcher
	Documents    driving.DocumentService
	Failures     driving.FailureService
	Schedules    driving.ScheduleService
	Scheduler    driving.Scheduler
	Monitor      driving.Monitor
	Transformers TransformerCatalog
	Queue        driven.TaskQueue
	QueueAdmin   QueueAdmin
	Config       driven.ConfigStore
	Settings     *domain.SettingsProvider

	// LoadSettings re-reads settings after the config file changes.
	LoadSettings func(driven.ConfigStore) (domain.Settings, error)

	// MetricsAddr is where workers serve /metrics. Empty disables it.
	MetricsAddr string
}

var (
	dispatcher         driving.Dispatcher
	documentService    driving.DocumentService
	failureService     driving.FailureService
	scheduleService    driving.ScheduleService
	scheduler          driving.Scheduler
	monitorService     driving.Monitor
	transformerCatalog TransformerCatalog
	taskQueue          driven.TaskQueue
	queueAdmin         QueueAdmin
	configStore        driven.ConfigStore
	settingsProvider   *domain.SettingsProvider
	loadSettings       func(driven.ConfigStore) (domain.Settings, error)
	metricsAddr        string
)

// SetServices wires the core services into the commands.
func SetServices(s Services) {
	dispatcher = s.Dispatcher
	documentService = s.Documents
	failureService = s.Failures
	scheduleService = s.Schedules
	scheduler = s.Scheduler
	monitorService = s.Monitor
	transformerCatalog = s.Transformers
	taskQueue = s.Queue
	queueAdmin = s.QueueAdmin
	configStore = s.Config
	settingsProvider = s.Settings
	loadSettings = s.LoadSettings
	metricsAddr = s.MetricsAddr
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// currentSettings returns the live settings, or defaults when none are wired.
func currentSettings() domain.Settings {
	if settingsProvider == nil {
		return domain.DefaultSettings()
	}
	return settingsProvider.Load()
}

// commandContext returns the command's context, falling back to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func notConfigured(what string) error {
	return errors.New(what + " service not configured")
}
