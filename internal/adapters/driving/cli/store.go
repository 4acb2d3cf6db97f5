package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/derivex/internal/adapters/driving/tui"
	"github.com/custodia-labs/derivex/internal/core/domain"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage documents in the store",
	Long:  `Load, count, inspect, clone and drop documents by namespace.`,
}

var storeLoadCmd = &cobra.Command{
	Use:   "load <file.jsonl>",
	Short: "Index newline-delimited JSON records",
	Long: `Indexes one document per line of a JSON Lines file. The record field named
by --id-field becomes the document id. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreLoad,
}

var storeCountCmd = &cobra.Command{
	Use:   "count [query]",
	Short: "Count documents matching a query",
	Long:  "Counts documents matching the query, or every document without one.\n\n" + queryHelp,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStoreCount,
}

var storeGetCmd = &cobra.Command{
	Use:   "get <doc-id>",
	Short: "Print a document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreGet,
}

var storeDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete a namespace and all of its documents",
	Args:  cobra.NoArgs,
	RunE:  runStoreDrop,
}

var storeCloneCmd = &cobra.Command{
	Use:   "clone <from> <to>",
	Short: "Copy every document of one namespace into another",
	Long: `Copies all documents of <from> into <to>, replacing documents with the
same id. Useful to snapshot a namespace before a reindex pass. Writing into
a namespace that already holds documents needs --yes.

Progress is printed as the copied count against the source count.`,
	Args: cobra.ExactArgs(2),
	RunE: runStoreClone,
}

var storeNamespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List namespaces holding documents",
	Args:  cobra.NoArgs,
	RunE:  runStoreNamespaces,
}

var (
	storeNamespace string
	storeIDField   string
	storeYes       bool
	storeQuery     string
)

func init() {
	storeCmd.PersistentFlags().StringVarP(&storeNamespace, "namespace", "i", "", "Namespace (default from settings)")
	storeLoadCmd.Flags().StringVar(&storeIDField, "id-field", "", "Record field used as document id (default from settings)")
	storeCountCmd.Flags().StringVarP(&storeQuery, "query", "q", "", "Query selecting the documents")
	storeDropCmd.Flags().BoolVarP(&storeYes, "yes", "y", false, "Confirm the deletion")
	storeCloneCmd.Flags().BoolVarP(&storeYes, "yes", "y", false, "Confirm writing into a namespace that holds documents")

	storeCmd.AddCommand(storeLoadCmd)
	storeCmd.AddCommand(storeCountCmd)
	storeCmd.AddCommand(storeGetCmd)
	storeCmd.AddCommand(storeDropCmd)
	storeCmd.AddCommand(storeCloneCmd)
	storeCmd.AddCommand(storeNamespacesCmd)
	rootCmd.AddCommand(storeCmd)
}

func storeNamespaceOrDefault() string {
	if storeNamespace != "" {
		return storeNamespace
	}
	return currentSettings().DefaultNamespace
}

func runStoreLoad(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return notConfigured("document")
	}

	var r io.Reader
	if args[0] == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	idField := storeIDField
	if idField == "" {
		idField = currentSettings().LoadIDField
	}

	namespace := storeNamespaceOrDefault()
	n, err := documentService.Load(commandContext(cmd), namespace, r, idField)
	cmd.Printf("Indexed %s documents into %s\n", humanize.Comma(int64(n)), namespace)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	return nil
}

func runStoreCount(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return notConfigured("document")
	}

	q, err := parseQueryArg(storeQuery, args, true)
	if err != nil {
		return err
	}

	n, err := documentService.Count(commandContext(cmd), storeNamespaceOrDefault(), q)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	cmd.Println(humanize.Comma(int64(n)))
	return nil
}

func runStoreGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return notConfigured("document")
	}

	doc, err := documentService.Get(commandContext(cmd), storeNamespaceOrDefault(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	out, err := json.MarshalIndent(doc.Source(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	cmd.Println(string(out))
	cmd.Printf("version %d, updated %s\n", doc.Version, humanize.Time(doc.UpdatedAt))
	return nil
}

func runStoreDrop(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return notConfigured("document")
	}

	namespace := storeNamespaceOrDefault()
	if !storeYes {
		return fmt.Errorf("%w: refusing to drop %s without --yes", domain.ErrInvalidInput, namespace)
	}

	if err := documentService.Drop(commandContext(cmd), namespace); err != nil {
		return fmt.Errorf("failed to drop namespace: %w", err)
	}
	cmd.Printf("Dropped namespace %s\n", namespace)
	return nil
}

func runStoreClone(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return notConfigured("document")
	}

	ctx := commandContext(cmd)
	from, to := args[0], args[1]
	if from == to {
		return fmt.Errorf("%w: cannot clone %s onto itself", domain.ErrInvalidInput, from)
	}

	total, err := documentService.Count(ctx, from, domain.MatchAll())
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", from, err)
	}
	existing, err := documentService.Count(ctx, to, domain.MatchAll())
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", to, err)
	}
	if existing > 0 && !storeYes {
		return fmt.Errorf("%w: %s already holds %s documents, pass --yes to overwrite",
			domain.ErrInvalidInput, to, humanize.Comma(int64(existing)))
	}

	cmd.Printf("Cloning %s documents from %s to %s\n", humanize.Comma(int64(total)), from, to)
	n, err := documentService.Clone(ctx, from, to, func(copied int) {
		cmd.Printf("  %s/%s (%s)\n", humanize.Comma(int64(copied)), humanize.Comma(int64(total)),
			tui.FormatPercent(copied, total))
	})
	cmd.Printf("Cloned %s documents\n", humanize.Comma(int64(n)))
	if err != nil {
		return fmt.Errorf("clone failed: %w", err)
	}
	return nil
}

func runStoreNamespaces(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return notConfigured("document")
	}

	namespaces, err := documentService.Namespaces(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list namespaces: %w", err)
	}
	if len(namespaces) == 0 {
		cmd.Println("No namespaces found.")
		return nil
	}
	for _, ns := range namespaces {
		cmd.Println(ns)
	}
	return nil
}
