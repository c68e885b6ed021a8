package main

import (
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd, tüm alt komutları bağlar.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatsync",
		Short:         "Terminal client for channel and direct-message chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "path to a YAML config file (default $CHATSYNC_CONFIG)")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newTailCmd(),
		newSendCmd(),
	)
	return cmd
}
