package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// Commands returns the client subcommands for mounting on another root.
func Commands(baseURL BaseURLFunc) []*cobra.Command {
	return []*cobra.Command{
		newPublishCommand(baseURL),
		newSubscribeCommand(baseURL),
		newStreamCommand(),
		newStatsCommand(baseURL),
	}
}

// NewRoot constructs a root Cobra command for the relay client.
// It registers publish, subscribe, stream and stats.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "client",
		Short: "Relay client commands",
	}
	root.AddCommand(Commands(baseURL)...)
	return root
}
