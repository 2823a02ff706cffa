package cmd

import (
	"time"

	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/emersion/go-imap"
	"github.com/spf13/cobra"
)

var envelopesCmd = &cobra.Command{
	Use:   "envelopes <account> [folder]",
	Short: "Display the messages of a folder (INBOX by default)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runEnvelopes,
}

var envelopesFlags struct {
	from    []string
	to      []string
	subject []string
	since   string
	unread  bool
	limit   int
}

func init() {
	flag := envelopesCmd.Flags()
	flag.StringArrayVar(&envelopesFlags.from, "from", nil, "only messages from this sender (can be repeated)")
	flag.StringArrayVar(&envelopesFlags.to, "to", nil, "only messages to this recipient (can be repeated)")
	flag.StringArrayVar(&envelopesFlags.subject, "subject", nil, "only messages with this subject (can be repeated)")
	flag.StringVar(&envelopesFlags.since, "since", "", "only messages received since this date (YYYY-MM-DD)")
	flag.BoolVarP(&envelopesFlags.unread, "unread", "u", false, "only unread messages")
	flag.IntVarP(&envelopesFlags.limit, "limit", "n", 0, "maximum number of messages")
	rootCmd.AddCommand(envelopesCmd)
}

func envelopesFilter() (mailbox.Filter, error) {
	filter := mailbox.Filter{
		From:    envelopesFlags.from,
		To:      envelopesFlags.to,
		Subject: envelopesFlags.subject,
		Limit:   envelopesFlags.limit,
	}
	if envelopesFlags.since != "" {
		since, err := time.ParseInLocation("2006-01-02", envelopesFlags.since, time.Local)
		if err != nil {
			return filter, err
		}
		filter.Since = since
	}
	if envelopesFlags.unread {
		filter.WithoutFlags = []string{imap.SeenFlag}
	}
	return filter, nil
}

func runEnvelopes(cmd *cobra.Command, args []string) error {
	folder := "INBOX"
	if len(args) > 1 {
		folder = args[1]
	}
	filter, err := envelopesFilter()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	return withManager(func(manager *account.Manager) error {
		envelopes, err := manager.ListEnvelopes(ctx, args[0], folder, filter)
		if err != nil {
			return err
		}
		return displayEnvelopes(envelopes, false)
	})
}
