// Package commands implements the interestbot command line.
package commands

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yaml"

var configPath string

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "interestbot",
		Short:         "Telegram bot that recommends activities and matches users by interest",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $CONFIG_PATH or "+defaultConfigPath+")")

	root.AddCommand(runCmd(), migrateCmd(), versionCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}
