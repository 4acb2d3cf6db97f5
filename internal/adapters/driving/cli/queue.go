package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the task queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count tasks by status",
	Args:  cobra.NoArgs,
	RunE:  runQueueStats,
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete finished tasks",
	Args:  cobra.NoArgs,
	RunE:  runQueuePurge,
}

var queuePurgeOlderThan time.Duration

func init() {
	queuePurgeCmd.Flags().DurationVar(&queuePurgeOlderThan, "older-than", 24*time.Hour, "Only delete tasks finished before this long ago")

	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queuePurgeCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueStats(cmd *cobra.Command, _ []string) error {
	if queueAdmin == nil {
		return notConfigured("durable queue")
	}

	stats, err := queueAdmin.Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}
	if len(stats) == 0 {
		cmd.Println("Queue is empty.")
		return nil
	}

	statuses := make([]domain.TaskStatus, 0, len(stats))
	for s := range stats {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	for _, s := range statuses {
		cmd.Printf("%-10s %s\n", s, humanize.Comma(int64(stats[s])))
	}
	return nil
}

func runQueuePurge(cmd *cobra.Command, _ []string) error {
	if queueAdmin == nil {
		return notConfigured("durable queue")
	}

	n, err := queueAdmin.Purge(commandContext(cmd), time.Now().Add(-queuePurgeOlderThan))
	if err != nil {
		return fmt.Errorf("failed to purge queue: %w", err)
	}
	cmd.Printf("Purged %s finished tasks\n", humanize.Comma(n))
	return nil
}
