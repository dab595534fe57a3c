package main

import (
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wsrooms",
		Short: "wsrooms routes JSON envelopes between WebSocket clients in small rooms",
		Long: `wsrooms accepts WebSocket connections on a plain TCP listener, assigns each
one an id, and routes JSON envelopes between them: to every member of a
two-person room, or to everyone.

Configuration can be provided via a YAML file, WSROOMS_* environment
variables, or flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newProbeCmd(), newVersionCmd())
	return root
}
