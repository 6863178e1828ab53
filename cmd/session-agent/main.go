package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "session-agent",
		Short: "Sidecar session agent for the Aditi Daily Updates shell",
		Long: `session-agent owns tab state, visibility reconciliation, and the
guarded transport toward the hosted backend platform. The embedding shell
feeds it visibility transitions and routes backend traffic through it.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
