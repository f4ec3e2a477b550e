// Package cli implements the visitplan command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "visitplan",
		Short:        "Plan home visit routes offline",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (YAML or JSON)")
	root.AddCommand(newSolveCmd(&cfgPath), newConfigCmd(&cfgPath))
	return root
}

// Execute runs the CLI.
func Execute() error { return NewRootCmd().Execute() }
