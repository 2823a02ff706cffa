package cmd

import (
	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/term"
	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <account>",
	Short: "Rebuild the search index of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runReindex,
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize <account>",
	Short: "Run the OAuth2 authorization of an account again",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthorize,
}

func init() {
	rootCmd.AddCommand(reindexCmd, authorizeCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	return withManager(func(manager *account.Manager) error {
		return term.Spinner("Indexing "+args[0], func() error {
			return manager.Reindex(ctx, args[0])
		})
	})
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	return withManager(func(manager *account.Manager) error {
		if err := manager.Authorize(ctx, args[0]); err != nil {
			return err
		}
		term.Infof("Account %q authorized", args[0])
		return nil
	})
}
