package cmd

import (
	"errors"

	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/term"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [folder]",
	Short: "Display the number of messages in a folder (INBOX by default) of every account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	folder := "INBOX"
	if len(args) > 0 {
		folder = args[0]
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	return withManager(func(manager *account.Manager) error {
		var results []account.CheckResult
		_ = term.Spinner("Checking accounts", func() error {
			results = manager.CheckAll(ctx, folder)
			return nil
		})
		rows := make([][]string, 0, len(results))
		failed := 0
		for _, result := range results {
			if result.Err != nil {
				failed++
				rows = append(rows, []string{result.Account, "", "", result.Err.Error()})
				continue
			}
			rows = append(rows, []string{
				result.Account,
				displayCount(result.Status.Messages),
				displayCount(result.Status.Unseen),
				"",
			})
		}
		if err := term.Table([]string{"Account", "Messages", "Unread", "Error"}, rows); err != nil {
			return err
		}
		if failed > 0 && failed == len(results) {
			return errors.New("no account could be checked")
		}
		return nil
	})
}
