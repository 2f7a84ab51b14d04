// Command angelvoice runs the voice activation coordinator without the desktop
// shell and exposes diagnostics for wake word scoring and command rules.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "angelvoice",
		Short:         "Wake word activation bridge for the Angel assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $HOME/.angelvoice/angelvoice.yaml)")

	root.AddCommand(
		newRunCmd(opts),
		newScoreCmd(opts),
		newRulesCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
