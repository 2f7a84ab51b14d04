package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"angelvoice/internal/config"
	"angelvoice/internal/rules"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader := config.NewLoader(root.configPath)
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			data, err := config.Encode(cfg)
			if err != nil {
				return err
			}
			if file := loader.ConfigFile(); file != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", file)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newRulesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules <command>",
		Short: "Apply the command rules file to a command",
		Long:  "Apply the command rules file to a command and report any control phrase it contains.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			set, err := rules.Load(cfg.Rules.Path, cfg.Rules.IterationLimit)
			if err != nil {
				return err
			}
			output, err := set.Apply(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			if ui, ok := set.UICommand(args[0]); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "control: %s\n", ui)
			}
			return nil
		},
	}
}
