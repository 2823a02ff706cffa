package cmd

import (
	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/term"
	"github.com/spf13/cobra"
)

var foldersCmd = &cobra.Command{
	Use:   "folders <account>",
	Short: "Display the list of folders of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runFolders,
}

var createFolderCmd = &cobra.Command{
	Use:   "create <account> <folder>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreateFolder,
}

var deleteFolderCmd = &cobra.Command{
	Use:   "delete <account> <folder>",
	Short: "Delete a folder and its messages",
	Args:  cobra.ExactArgs(2),
	RunE:  runDeleteFolder,
}

var foldersFlags struct {
	status bool
}

func init() {
	foldersCmd.Flags().BoolVarP(&foldersFlags.status, "status", "s", false, "display the number of messages of each folder")
	foldersCmd.AddCommand(createFolderCmd, deleteFolderCmd)
	rootCmd.AddCommand(foldersCmd)
}

func runFolders(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	return withManager(func(manager *account.Manager) error {
		folders, err := manager.ListFolders(ctx, args[0])
		if err != nil {
			return err
		}
		if len(folders) == 0 {
			term.Warn("No folder found on this account")
			return nil
		}
		header := []string{"Folder"}
		if foldersFlags.status {
			header = append(header, "Messages", "Unread", "Flags")
		}
		rows := make([][]string, 0, len(folders))
		for _, folder := range folders {
			row := []string{folder.Name}
			if foldersFlags.status {
				var messages, unseen, flags string
				if folder.Selectable() {
					status, err := manager.FolderStatus(ctx, args[0], folder.Name)
					if err != nil {
						term.Warnf("%s: %s", folder.Name, err)
					} else {
						messages = displayCount(status.Messages)
						unseen = displayCount(status.Unseen)
						flags = displayFlags(status.Flags)
					}
				}
				row = append(row, messages, unseen, flags)
			}
			rows = append(rows, row)
		}
		return term.Table(header, rows)
	})
}

func runCreateFolder(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	return withManager(func(manager *account.Manager) error {
		if err := manager.CreateFolder(ctx, args[0], args[1]); err != nil {
			return err
		}
		term.Infof("Folder %q created", args[1])
		return nil
	})
}

func runDeleteFolder(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	return withManager(func(manager *account.Manager) error {
		if err := manager.DeleteFolder(ctx, args[0], args[1]); err != nil {
			return err
		}
		term.Infof("Folder %q deleted", args[1])
		return nil
	})
}
