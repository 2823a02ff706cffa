package cmd

import (
	"encoding/json"
	"os"

	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read <account> <folder> <id>...",
	Short: "Display messages and mark them as read",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runRead,
}

var readFlags struct {
	preview   bool
	json      bool
	raw       bool
	noHeaders bool
	headers   []string
}

func init() {
	flag := readCmd.Flags()
	flag.BoolVarP(&readFlags.preview, "preview", "p", false, "display the messages without marking them as read")
	flag.BoolVar(&readFlags.json, "json", false, "output the messages in JSON")
	flag.BoolVar(&readFlags.raw, "raw", false, "output the message as stored, without decryption")
	flag.BoolVar(&readFlags.noHeaders, "no-headers", false, "display only the body of the messages")
	flag.StringArrayVarP(&readFlags.headers, "header", "H", nil, "display only this header (can be repeated)")
	readCmd.MarkFlagsMutuallyExclusive("no-headers", "header")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	name, folder := args[0], args[1]
	ids := mailbox.ParseMessageIDs(args[2:])

	return withManager(func(manager *account.Manager) error {
		if readFlags.raw {
			for _, id := range ids {
				msg, err := manager.FetchMessage(ctx, name, folder, id, readFlags.preview)
				if err != nil {
					return err
				}
				if _, err = os.Stdout.Write(msg.Raw); err != nil {
					return err
				}
			}
			return nil
		}
		views, err := manager.ReadMessages(ctx, name, folder, ids, readFlags.preview)
		selectHeaders(views, readFlags.noHeaders, readFlags.headers)
		if readFlags.json {
			if encodeErr := encodeJSON(views); encodeErr != nil {
				return encodeErr
			}
			return err
		}
		for _, view := range views {
			displayReadView(view, readFlags.noHeaders, readFlags.headers)
		}
		return err
	})
}

func encodeJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// selectHeaders removes from the views the headers not asked for
func selectHeaders(views []*mailbox.ReadView, noHeaders bool, names []string) {
	for _, view := range views {
		switch {
		case noHeaders:
			view.Headers = mailbox.ReadHeaders{}
			view.Attachments = nil
		case len(names) > 0:
			view.Headers = view.Headers.Only(names)
		}
	}
}

func displayReadView(view *mailbox.ReadView, noHeaders bool, names []string) {
	if noHeaders {
		term.Print(view.Body)
		return
	}
	for _, header := range view.Headers.Lines(names) {
		term.Printf("%s %s", pterm.Bold.Sprint(header[0]+":"), header[1])
	}
	for _, attachment := range view.Attachments {
		term.Printf("%s %s", pterm.Bold.Sprint("Attachment:"), attachment)
	}
	term.Print()
	term.Print(view.Body)
}
