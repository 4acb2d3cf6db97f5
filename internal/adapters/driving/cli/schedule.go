package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring derivation passes",
	Long: `Schedules enqueue a pass on a cron expression (UTC). They are fired by
running workers.`,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <name> <cron> [query]",
	Short: "Add a schedule",
	Long: `Adds a schedule that enqueues a pass over documents matching <query>.

` + queryHelp + `

Examples:
  derivex schedule add nightly-classify "0 2 * * *" -q "-category:*" -T classify -t nightly
  derivex schedule add hourly-wc @hourly "*" -i mail -T wordcount`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	Args:  cobra.NoArgs,
	RunE:  runScheduleList,
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <schedule-id>",
	Short: "Remove a schedule and its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRemove,
}

var scheduleHistoryCmd = &cobra.Command{
	Use:   "history <schedule-id>",
	Short: "Show recent runs of a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleHistory,
}

var (
	scheduleNamespace    string
	scheduleQuery        string
	scheduleTransformers []string
	scheduleTag          string
	scheduleReindex      bool
	scheduleLimit        int
	scheduleHistoryLimit int
)

func init() {
	f := scheduleAddCmd.Flags()
	f.StringVarP(&scheduleNamespace, "namespace", "i", "", "Namespace (default from settings)")
	f.StringVarP(&scheduleQuery, "query", "q", "", "Query selecting the documents of each run")
	f.StringArrayVarP(&scheduleTransformers, "transformer", "T", nil, "Transformer to apply, repeatable")
	f.StringVarP(&scheduleTag, "tag", "t", "", "Tag recorded on every updated document")
	f.BoolVarP(&scheduleReindex, "reindex", "r", false, "Replace whole documents instead of updating fields")
	f.IntVarP(&scheduleLimit, "limit", "l", 0, "Limit the number of documents per run")
	scheduleHistoryCmd.Flags().IntVarP(&scheduleHistoryLimit, "limit", "l", 10, "Number of runs to show")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(scheduleHistoryCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	if scheduleService == nil {
		return notConfigured("schedule")
	}
	if transformerCatalog != nil {
		if err := transformerCatalog.Validate(scheduleTransformers); err != nil {
			return err
		}
	}

	query, err := queryText(scheduleQuery, args[2:])
	if err != nil {
		return err
	}

	namespace := scheduleNamespace
	if namespace == "" {
		namespace = currentSettings().DefaultNamespace
	}

	sched, err := scheduleService.Add(commandContext(cmd), domain.Schedule{
		Name:         args[0],
		Cron:         args[1],
		Query:        query,
		Namespace:    namespace,
		Transformers: scheduleTransformers,
		Tag:          scheduleTag,
		Reindex:      scheduleReindex,
		Limit:        scheduleLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to add schedule: %w", err)
	}

	cmd.Printf("Added schedule %s (%s)\n", sched.Name, sched.ID)
	cmd.Printf("  Next run: %s\n", sched.NextRun.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runScheduleList(cmd *cobra.Command, _ []string) error {
	if scheduleService == nil {
		return notConfigured("schedule")
	}

	schedules, err := scheduleService.List(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}
	if len(schedules) == 0 {
		cmd.Println("No schedules configured.")
		return nil
	}

	for i := range schedules {
		s := &schedules[i]
		state := "enabled"
		if !s.Enabled {
			state = "disabled"
		}
		cmd.Printf("%s (%s) [%s]\n", s.Name, s.ID, state)
		cmd.Printf("  Cron:         %s\n", s.Cron)
		cmd.Printf("  Query:        %s in %s\n", s.Query, s.Namespace)
		cmd.Printf("  Transformers: %s\n", strings.Join(s.Transformers, ", "))
		if !s.LastRun.IsZero() {
			cmd.Printf("  Last run:     %s\n", humanize.Time(s.LastRun))
		}
		if !s.NextRun.IsZero() {
			cmd.Printf("  Next run:     %s\n", s.NextRun.Format("2006-01-02 15:04:05 MST"))
		}
		if s.LastError != "" {
			cmd.Printf("  Last error:   %s\n", s.LastError)
		}
		cmd.Println()
	}
	return nil
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	if scheduleService == nil {
		return notConfigured("schedule")
	}

	if err := scheduleService.Remove(commandContext(cmd), args[0]); err != nil {
		return fmt.Errorf("failed to remove schedule: %w", err)
	}
	cmd.Printf("Removed schedule %s\n", args[0])
	return nil
}

func runScheduleHistory(cmd *cobra.Command, args []string) error {
	if scheduleService == nil {
		return notConfigured("schedule")
	}

	runs, err := scheduleService.History(commandContext(cmd), args[0], scheduleHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}

	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed: " + r.Error
		}
		cmd.Printf("%s  %d tasks  %s  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.TasksDispatched,
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond), result)
	}
	return nil
}
