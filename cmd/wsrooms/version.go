package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show wsrooms version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			version, commit := Version, Commit
			if info, ok := debug.ReadBuildInfo(); ok {
				if version == "dev" && info.Main.Version != "" {
					version = info.Main.Version
				}
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" && commit == "none" {
						commit = s.Value
					}
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wsrooms %s (%s, %s)\n", version, commit, BuildDate)
			fmt.Fprintf(out, "%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
