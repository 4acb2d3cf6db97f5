package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
	"github.com/custodia-labs/derivex/internal/logger"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [query]",
	Short: "Queue a derivation pass over matching documents",
	Long: `Selects the documents matching <query> in a namespace, splits them into
batches of page-size ids and queues one task per batch. Each task runs the
tag transformer followed by the chosen transformers and writes the result
back to the store.

Query syntax: "*" matches everything; "field:value" matches equal values,
"field:prefix*" matches prefixes, "field:*" matches present fields and a
leading "-" negates a clause. "_id:a,b,c" selects ids directly. Clauses
are combined with AND.

` + queryHelp + `

Examples:
  derivex enqueue -T classify -t nightly -q "-category:*"
  derivex enqueue -i mail -T wordcount -T fingerprint --now "*"
  derivex enqueue -T classify -e -l 10 "status:new"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnqueue,
}

var (
	enqueueNamespace     string
	enqueueQuery         string
	enqueueTransformers  []string
	enqueueLimit         int
	enqueueTag           string
	enqueueReindex       bool
	enqueueNow           bool
	enqueueEphemeral     bool
	enqueuePageSize      int
	enqueueParams        []string
	enqueueSkipTimestamp bool
)

func init() {
	f := enqueueCmd.Flags()
	f.StringVarP(&enqueueNamespace, "namespace", "i", "", "Namespace to read from and write to (default from settings)")
	f.StringVarP(&enqueueQuery, "query", "q", "", "Query selecting the documents")
	f.StringArrayVarP(&enqueueTransformers, "transformer", "T", nil, "Transformer to apply, repeatable and applied in order")
	f.IntVarP(&enqueueLimit, "limit", "l", 0, "Limit the number of documents")
	f.StringVarP(&enqueueTag, "tag", "t", "", "Tag recorded on every updated document")
	f.BoolVarP(&enqueueReindex, "reindex", "r", false, "Replace whole documents instead of updating fields (expensive)")
	f.BoolVarP(&enqueueNow, "now", "n", false, "Run every batch in this process instead of queueing")
	f.BoolVarP(&enqueueEphemeral, "ephemeral", "e", false, "Dry run: print the computed results without writing")
	f.IntVar(&enqueuePageSize, "page-size", 0, "Documents per batch (default from settings)")
	f.StringArrayVar(&enqueueParams, "param", nil, "Transformer parameter as key=value, value may be JSON")
	f.BoolVar(&enqueueSkipTimestamp, "skip-timestamp", false, "Do not stamp the last-updated field")

	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	if dispatcher == nil {
		return notConfigured("dispatch")
	}

	q, err := parseQueryArg(enqueueQuery, args, false)
	if err != nil {
		return err
	}
	params, err := parseParams(enqueueParams)
	if err != nil {
		return err
	}

	if len(enqueueTransformers) == 0 {
		names := []string{}
		if transformerCatalog != nil {
			names = transformerCatalog.Names()
		}
		if enqueueTag != "" {
			logger.Warn("no transformer chosen, only the tag will be written; choose among %s", strings.Join(names, ", "))
		} else {
			logger.Warn("no transformer and no tag chosen, nothing will be written; choose among %s", strings.Join(names, ", "))
		}
	}

	req := driving.DispatchRequest{
		Namespace:     enqueueNamespace,
		Query:         q,
		Transformers:  enqueueTransformers,
		Params:        params,
		Tag:           enqueueTag,
		Limit:         enqueueLimit,
		PageSize:      enqueuePageSize,
		Reindex:       enqueueReindex,
		DryRun:        enqueueEphemeral,
		Now:           enqueueNow,
		SkipTimestamp: enqueueSkipTimestamp,
	}

	report, err := dispatcher.Dispatch(commandContext(cmd), req)
	if report != nil {
		printDispatchReport(cmd, req, report)
	}
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	return nil
}

func printDispatchReport(cmd *cobra.Command, req driving.DispatchRequest, report *driving.DispatchReport) {
	if req.DryRun {
		results := []map[string]any{}
		for _, r := range report.Reports {
			for _, doc := range r.Outcome.Results {
				results = append(results, doc.Source())
			}
		}
		out, err := json.MarshalIndent(results, "", "  ")
		if err == nil {
			cmd.Println(string(out))
		}
	}

	verb := "Queued"
	if req.Now {
		verb = "Processed"
	}
	cmd.Printf("%s %s documents in %s tasks\n", verb,
		humanize.Comma(int64(report.Documents)), humanize.Comma(int64(report.Batches)))

	if req.Now || req.DryRun {
		cmd.Printf("  Succeeded: %s\n", humanize.Comma(int64(report.Succeeded)))
		cmd.Printf("  Failed:    %s\n", humanize.Comma(int64(report.Failed)))
		for _, r := range report.Reports {
			if r.Status == domain.TaskFailed {
				cmd.Printf("  Task %s failed: %s\n", r.TaskID, failureReason(r))
			}
		}
	}
}

func failureReason(r domain.TaskReport) string {
	if r.Error != "" {
		return r.Error
	}
	return "failing ids: " + strings.Join(r.Outcome.FailedIDs(), ", ")
}

// parseParams turns key=value pairs into transformer params. Values that
// parse as JSON keep their JSON type; anything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: param %q is not key=value", domain.ErrInvalidInput, pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			params[k] = decoded
		} else {
			params[k] = v
		}
	}
	return params, nil
}
