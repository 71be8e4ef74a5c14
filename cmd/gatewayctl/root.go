package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app, wireErr error) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Operate the AI request gateway: migrations, tokens, credits and providers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	if wireErr != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return wireErr
		}
		return rootCmd
	}
	rootCmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if a.close != nil {
			a.close()
		}
	}

	rootCmd.AddCommand(
		newMigrateCmd(a),
		newTokenCmd(a),
		newCreditsCmd(a),
		newAccountsCmd(a),
		newProvidersCmd(a),
	)
	return rootCmd
}
