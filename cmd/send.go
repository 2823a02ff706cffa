package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/term"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <account>",
	Short: "Send a message",
	Long: `Send a message composed from the flags, the body being read from --body, --body-file or the standard input.
With --raw, the standard input (or --body-file) is sent as a complete RFC 5322 message.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

var sendFlags struct {
	from        string
	to          []string
	cc          []string
	bcc         []string
	subject     string
	body        string
	bodyFile    string
	html        bool
	inReplyTo   string
	attachments []string
	raw         bool
}

func init() {
	flag := sendCmd.Flags()
	flag.StringVar(&sendFlags.from, "from", "", "sender address (the account address by default)")
	flag.StringSliceVar(&sendFlags.to, "to", nil, "recipient")
	flag.StringSliceVar(&sendFlags.cc, "cc", nil, "carbon copy recipient")
	flag.StringSliceVar(&sendFlags.bcc, "bcc", nil, "blind carbon copy recipient")
	flag.StringVarP(&sendFlags.subject, "subject", "s", "", "subject of the message")
	flag.StringVarP(&sendFlags.body, "body", "b", "", "body of the message")
	flag.StringVar(&sendFlags.bodyFile, "body-file", "", "read the body (or the raw message) from this file")
	flag.BoolVar(&sendFlags.html, "html", false, "the body is HTML")
	flag.StringVar(&sendFlags.inReplyTo, "in-reply-to", "", "Message-ID of the message this one replies to")
	flag.StringSliceVarP(&sendFlags.attachments, "attach", "a", nil, "file to attach")
	flag.BoolVar(&sendFlags.raw, "raw", false, "send a message already formatted")
	rootCmd.AddCommand(sendCmd)
}

func readBody(stdin io.Reader) (string, error) {
	if sendFlags.body != "" {
		return sendFlags.body, nil
	}
	if sendFlags.bodyFile != "" {
		content, err := os.ReadFile(sendFlags.bodyFile)
		return string(content), err
	}
	content, err := io.ReadAll(stdin)
	return string(content), err
}

func sendDraft(body string) mailbox.Draft {
	draft := mailbox.Draft{
		From:        sendFlags.from,
		To:          sendFlags.to,
		Cc:          sendFlags.cc,
		Bcc:         sendFlags.bcc,
		Subject:     sendFlags.subject,
		InReplyTo:   sendFlags.inReplyTo,
		Attachments: sendFlags.attachments,
	}
	if sendFlags.html {
		draft.HTMLBody = body
	} else {
		draft.Body = body
	}
	return draft
}

func runSend(cmd *cobra.Command, args []string) error {
	body, err := readBody(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if !sendFlags.raw && len(sendFlags.to)+len(sendFlags.cc)+len(sendFlags.bcc) == 0 {
		return errors.New("missing recipient")
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	return withManager(func(manager *account.Manager) error {
		if sendFlags.raw {
			err = manager.SendRaw(ctx, args[0], []byte(body))
		} else {
			err = manager.Send(ctx, args[0], sendDraft(body))
		}
		if err != nil {
			return err
		}
		term.Info("Message sent")
		return nil
	})
}
