package cmd

import (
	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/term"
	"github.com/spf13/cobra"
)

var flagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Add or remove flags (tags with an index)",
}

var flagAddCmd = &cobra.Command{
	Use:   "add <account> <folder> <flag> <id>...",
	Short: "Add a flag to messages: seen, answered, flagged, deleted, draft or any keyword",
	Args:  cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlag(cmd, args, true)
	},
}

var flagRemoveCmd = &cobra.Command{
	Use:   "remove <account> <folder> <flag> <id>...",
	Short: "Remove a flag from messages",
	Args:  cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlag(cmd, args, false)
	},
}

func init() {
	flagCmd.AddCommand(flagAddCmd, flagRemoveCmd)
	rootCmd.AddCommand(flagCmd)
}

func runFlag(cmd *cobra.Command, args []string, add bool) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	name, folder, flags := args[0], args[1], []string{args[2]}
	ids := mailbox.ParseMessageIDs(args[3:])
	return withManager(func(manager *account.Manager) error {
		var err error
		if add {
			err = manager.AddFlags(ctx, name, folder, ids, flags)
		} else {
			err = manager.RemoveFlags(ctx, name, folder, ids, flags)
		}
		if err != nil {
			return err
		}
		term.Infof("%d message(s) updated", len(ids))
		return nil
	})
}
