package cli

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/derivex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/services"
	"github.com/custodia-labs/derivex/internal/transformers"
)

// testEnv wires the real services over in-memory adapters.
type testEnv struct {
	store     *memory.DocumentStore
	queue     *memory.Queue
	letters   *memory.DeadLetterStore
	schedules *memory.ScheduleStore
	config    *memory.ConfigStore
	settings  *domain.SettingsProvider
}

func setupTestServices(t *testing.T) *testEnv {
	t.Helper()

	s := domain.DefaultSettings()
	s.DefaultNamespace = "docs"
	s.PageSize = 4
	s.RetryDelay = 0
	s.PollInterval = 5 * time.Millisecond

	env := &testEnv{
		store:     memory.NewDocumentStore(),
		letters:   memory.NewDeadLetterStore(),
		schedules: memory.NewScheduleStore(),
		config:    memory.NewConfigStore(),
		settings:  domain.NewSettingsProvider(s),
	}

	registry := transformers.DefaultRegistry()
	processor := services.NewBatchProcessor(env.store, registry, env.settings)
	runner := services.NewTaskRunner(processor, services.NewRetryPolicy(env.settings), env.letters)
	env.queue = memory.NewQueue(runner, env.settings)
	dispatch := services.NewDispatcher(env.store, env.queue, registry, env.settings)
	sched := services.NewScheduler(env.schedules, dispatch, time.Hour)

	SetServices(Services{
		Dispatcher:   dispatch,
		Documents:    services.NewDocumentService(env.store, env.settings),
		Failures:     services.NewFailureService(env.letters, env.queue),
		Schedules:    sched,
		Scheduler:    sched,
		Monitor:      services.NewMonitor(env.store),
		Transformers: registry,
		Queue:        env.queue,
		Config:       env.config,
		Settings:     env.settings,
		LoadSettings: func(driven.ConfigStore) (domain.Settings, error) {
			return env.settings.Load(), nil
		},
	})

	t.Cleanup(func() {
		env.queue.Close()
		SetServices(Services{})
		resetFlags()
	})
	return env
}

// seed indexes n documents into "docs"; odd ones look like phishing.
func (e *testEnv) seed(t *testing.T, n int) {
	t.Helper()
	docs := make([]domain.Document, n)
	for i := range docs {
		text := "quarterly report"
		if i%2 == 1 {
			text = "please verify your account"
		}
		docs[i] = domain.Document{ID: fmt.Sprintf("doc-%02d", i), Fields: map[string]any{"text": text}}
	}
	require.NoError(t, e.store.Index(context.Background(), "docs", docs))
}

// run executes the root command with args and returns its combined output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runContext(t, context.Background(), args...)
}

func runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	setContext(rootCmd, ctx)

	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

// setContext hands ctx to cmd and every subcommand. Cobra only passes the
// root context to a subcommand that has none yet, so without this a command
// would keep the context of the first test that ran it.
func setContext(cmd *cobra.Command, ctx context.Context) {
	cmd.SetContext(ctx)
	for _, sub := range cmd.Commands() {
		setContext(sub, ctx)
	}
}

// resetFlags restores flag variables since cobra keeps them between runs.
func resetFlags() {
	verbose = false

	enqueueNamespace, enqueueQuery, enqueueTag = "", "", ""
	enqueueTransformers, enqueueParams = nil, nil
	enqueueLimit, enqueuePageSize = 0, 0
	enqueueReindex, enqueueNow, enqueueEphemeral, enqueueSkipTimestamp = false, false, false, false

	storeNamespace, storeIDField, storeYes, storeQuery = "", "", false, ""

	failuresLimit = 50

	scheduleNamespace, scheduleQuery, scheduleTag = "", "", ""
	scheduleTransformers = nil
	scheduleReindex = false
	scheduleLimit, scheduleHistoryLimit = 0, 10

	monitorNamespace, monitorQuery, monitorDelta, monitorInterval, monitorPlain = "", "", false, 5*time.Second, false

	workerConcurrency, workerNoScheduler, workerMetricsAddr = 0, false, ""

	queuePurgeOlderThan = 24 * time.Hour
}
