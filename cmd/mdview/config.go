package main

import (
	"go-mdview/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func configCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <file>",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration mdview would run with for <file>, after merging
defaults, the config file, MDVIEW_ environment variables and flags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), *cfgFile, args[0])
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	config.AddFlags(cmd.Flags())
	return cmd
}
