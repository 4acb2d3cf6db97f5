package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/derivex/internal/adapters/driving/tui"
	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [query]",
	Short: "Watch a pass progress by counting matching documents",
	Long: `Counts the documents matching <query> every interval and shows progress.

Without --delta the bar shows how many documents match against the
namespace total, e.g. "category:*" while classify fills the field in.
With --delta it measures how many documents stopped matching since the
first sample, e.g. -q "-category:*".

Leaving the monitor does not affect queued or running tasks.

` + queryHelp,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

var (
	monitorNamespace string
	monitorQuery     string
	monitorDelta     bool
	monitorInterval  time.Duration
	monitorPlain     bool
)

func init() {
	monitorCmd.Flags().StringVarP(&monitorNamespace, "namespace", "i", "", "Namespace to count in (default from settings)")
	monitorCmd.Flags().StringVarP(&monitorQuery, "query", "q", "", "Query whose matches are counted")
	monitorCmd.Flags().BoolVarP(&monitorDelta, "delta", "D", false, "Measure progress from the first sample")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Second, "Time between samples")
	monitorCmd.Flags().BoolVar(&monitorPlain, "plain", false, "Print one line per sample instead of the interactive view")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorService == nil {
		return notConfigured("monitor")
	}
	if monitorInterval <= 0 {
		return fmt.Errorf("%w: interval must be positive", domain.ErrInvalidInput)
	}

	q, err := parseQueryArg(monitorQuery, args, false)
	if err != nil {
		return err
	}
	namespace := monitorNamespace
	if namespace == "" {
		namespace = currentSettings().DefaultNamespace
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	samples, errs := monitorService.Watch(ctx, namespace, q, monitorInterval)

	if monitorPlain || !isTerminal(cmd) {
		return printSamples(cmd, samples, errs)
	}

	app, err := tui.NewApp(tui.Config{
		Namespace: namespace,
		Query:     q.String(),
		Delta:     monitorDelta,
		Samples:   samples,
		Errors:    errs,
	})
	if err != nil {
		return err
	}

	p := tea.NewProgram(app, tea.WithContext(ctx), tea.WithOutput(cmd.OutOrStdout()))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("monitor error: %w", err)
	}
	return app.Err()
}

// isTerminal reports whether the command writes to a terminal.
func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printSamples writes one summary line per sample until sampling stops.
func printSamples(cmd *cobra.Command, samples <-chan driving.Progress, errs <-chan error) error {
	var first *driving.Progress
	for p := range samples {
		if first == nil {
			f := p
			first = &f
			cmd.Printf("Matching %d of %d documents\n", p.Matching, p.Total)
			continue
		}
		cmd.Printf("%s  %s\n", p.At.Format("15:04:05"), tui.Summary(*first, p, monitorDelta))
	}
	if err, ok := <-errs; ok && err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}
