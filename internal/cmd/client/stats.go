package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newStatsCommand constructs the `stats` subcommand.
func newStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show server stats, or persisted monitor reports with --history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			history, _ := cmd.Flags().GetBool("history")
			limit, _ := cmd.Flags().GetInt("limit")

			t := httpTransport(baseURL)
			var (
				raw json.RawMessage
				err error
			)
			if history {
				raw, err = t.History(cmd.Context(), limit)
			} else {
				raw, err = t.Stats(cmd.Context())
			}
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), buf.String())
			return err
		},
	}
	statsCmd.Flags().Bool("history", false, "Show persisted monitor reports")
	statsCmd.Flags().Int("limit", 0, "History entries to return (server default when 0)")
	return statsCmd
}
