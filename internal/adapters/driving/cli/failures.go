package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect and requeue tasks that exhausted their retries",
}

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered tasks",
	Args:  cobra.NoArgs,
	RunE:  runFailuresList,
}

var failuresRequeueCmd = &cobra.Command{
	Use:   "requeue <task-id>...",
	Short: "Queue the failing documents of dead-lettered tasks again",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFailuresRequeue,
}

var failuresLimit int

func init() {
	failuresListCmd.Flags().IntVarP(&failuresLimit, "limit", "l", 50, "Maximum number of tasks to list")

	failuresCmd.AddCommand(failuresListCmd)
	failuresCmd.AddCommand(failuresRequeueCmd)
	rootCmd.AddCommand(failuresCmd)
}

func runFailuresList(cmd *cobra.Command, _ []string) error {
	if failureService == nil {
		return notConfigured("failure")
	}

	letters, err := failureService.List(commandContext(cmd), failuresLimit)
	if err != nil {
		return fmt.Errorf("failed to list failures: %w", err)
	}
	if len(letters) == 0 {
		cmd.Println("No failed tasks.")
		return nil
	}

	for i := range letters {
		l := &letters[i]
		cmd.Printf("%s\n", l.Task.ID)
		cmd.Printf("  Namespace:    %s\n", l.Task.Namespace)
		cmd.Printf("  Transformers: %s\n", strings.Join(l.Task.Transformers, ", "))
		cmd.Printf("  Attempts:     %d\n", l.Attempts)
		cmd.Printf("  Failed:       %s\n", humanize.Time(l.FailedAt))
		if len(l.FailedIDs) > 0 {
			cmd.Printf("  Documents:    %d of %d failed\n", len(l.FailedIDs), l.Task.Batch.Len())
		} else {
			cmd.Printf("  Documents:    whole batch of %d\n", l.Task.Batch.Len())
		}
		for _, e := range l.Errors {
			cmd.Printf("    %s\n", e.String())
		}
		cmd.Println()
	}
	cmd.Printf("Total: %d failed tasks\n", len(letters))
	return nil
}

func runFailuresRequeue(cmd *cobra.Command, args []string) error {
	if failureService == nil {
		return notConfigured("failure")
	}

	for _, id := range args {
		newID, err := failureService.Requeue(commandContext(cmd), id)
		if err != nil {
			return fmt.Errorf("failed to requeue %s: %w", id, err)
		}
		cmd.Printf("Requeued %s as %s\n", id, newID)
	}
	return nil
}
