package cmd

import (
	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/term"
	"github.com/spf13/cobra"
)

var copyCmd = &cobra.Command{
	Use:   "copy <account> <from> <to> <id>...",
	Short: "Copy messages to another folder",
	Args:  cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, args, false)
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <account> <from> <to> <id>...",
	Short: "Move messages to another folder",
	Args:  cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, args, true)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <account> <folder> <id>...",
	Short: "Delete messages",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(copyCmd, moveCmd, deleteCmd)
}

func runTransfer(cmd *cobra.Command, args []string, move bool) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	name, from, to := args[0], args[1], args[2]
	ids := mailbox.ParseMessageIDs(args[3:])
	return withManager(func(manager *account.Manager) error {
		if move {
			if err := manager.MoveMessages(ctx, name, from, ids, to); err != nil {
				return err
			}
			term.Infof("%d message(s) moved to %q", len(ids), to)
			return nil
		}
		if err := manager.CopyMessages(ctx, name, from, ids, to); err != nil {
			return err
		}
		term.Infof("%d message(s) copied to %q", len(ids), to)
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ids := mailbox.ParseMessageIDs(args[2:])
	return withManager(func(manager *account.Manager) error {
		if err := manager.DeleteMessages(ctx, args[0], args[1], ids); err != nil {
			return err
		}
		term.Infof("%d message(s) deleted", len(ids))
		return nil
	})
}
