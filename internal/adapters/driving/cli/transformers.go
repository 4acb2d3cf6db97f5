package cli

import (
	"github.com/spf13/cobra"
)

var transformersCmd = &cobra.Command{
	Use:   "transformers",
	Short: "List available transformers",
	Long: `Lists the transformers that can be chained with -T. The tag transformer
always runs first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if transformerCatalog == nil {
			return notConfigured("transformer")
		}
		for _, name := range transformerCatalog.Names() {
			cmd.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transformersCmd)
}
