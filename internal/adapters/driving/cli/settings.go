package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change settings",
	Long: `Prints the effective settings as JSON. Values come from defaults, the
config file and DERIVEX_* environment variables, in increasing precedence.`,
	Args: cobra.NoArgs,
	RunE: runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a value to the config file",
	Long: `Writes a value to the config file. Keys are dotted, for example
pipeline.page_size, queue.retry_delay or store.retry_on_conflict.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configStore == nil {
			return notConfigured("config")
		}
		cmd.Println(configStore.Path())
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsPathCmd)
	rootCmd.AddCommand(settingsCmd)
}

// settingsView renders durations as strings.
type settingsView struct {
	DefaultNamespace string  `json:"default_namespace"`
	PageSize         int     `json:"page_size"`
	BulkSize         int     `json:"bulk_size"`
	MaxRetries       int     `json:"max_retries"`
	RetryDelay       string  `json:"retry_delay"`
	MaxRetryDelay    string  `json:"max_retry_delay"`
	RetryOnConflict  int     `json:"retry_on_conflict"`
	TimestampField   string  `json:"timestamp_field"`
	Reindex          bool    `json:"reindex"`
	Concurrency      int     `json:"concurrency"`
	PollInterval     string  `json:"poll_interval"`
	DispatchRate     float64 `json:"dispatch_rate"`
	LoadIDField      string  `json:"load_id_field"`
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	s := currentSettings()
	out, err := json.MarshalIndent(settingsView{
		DefaultNamespace: s.DefaultNamespace,
		PageSize:         s.PageSize,
		BulkSize:         s.BulkSize,
		MaxRetries:       s.MaxRetries,
		RetryDelay:       s.RetryDelay.String(),
		MaxRetryDelay:    s.MaxRetryDelay.String(),
		RetryOnConflict:  s.RetryOnConflict,
		TimestampField:   s.TimestampField,
		Reindex:          s.Reindex,
		Concurrency:      s.Concurrency,
		PollInterval:     s.PollInterval.String(),
		DispatchRate:     s.DispatchRate,
		LoadIDField:      s.LoadIDField,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	cmd.Println(string(out))
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return notConfigured("config")
	}

	key, raw := args[0], args[1]
	if err := configStore.Set(key, parseConfigValue(raw)); err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}

	if loadSettings != nil {
		s, err := loadSettings(configStore)
		if err != nil {
			cmd.Printf("Warning: %v\n", err)
		} else if settingsProvider != nil {
			settingsProvider.Store(s)
		}
	}

	cmd.Printf("Set %s = %s in %s\n", key, raw, configStore.Path())
	return nil
}

// parseConfigValue keeps integers, floats and booleans typed so they are
// written to TOML unquoted.
func parseConfigValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
