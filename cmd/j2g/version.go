package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Version is the current version of j2g (overridden by ldflags at build time)
	Version = "0.1.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if commit := vcsRevision(); commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "j2g version %s (%s: %s)\n", Version, Build, commit)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "j2g version %s (%s)\n", Version, Build)
		},
	}
}

// vcsRevision returns the short commit hash embedded by the go toolchain.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return ""
}
