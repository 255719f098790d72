// Package cli implements the bazaar command line: sign in, read and answer
// chats, and manage favorites against the marketplace API.
package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bazaar",
		Short:         "Marketplace chat and favorites client",
		Long:          "bazaar signs in to a marketplace API, follows conversations about listings and keeps a local favorites list.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default: $XDG_CONFIG_HOME/bazaar/config.yaml)")
	flags.String("env-file", "", "dotenv file loaded before the environment (default: ./.env)")
	flags.String("api-url", "", "marketplace API base URL")
	flags.String("data-dir", "", "directory for local state")
	flags.String("storage", "", "storage backend: file or sqlite")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: console or json")
	flags.Bool("json", false, "machine-readable output")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newInboxCmd(),
		newWatchCmd(),
		newHistoryCmd(),
		newSendCmd(),
		newReviewCmd(),
		newFavCmd(),
	)

	return cmd
}
