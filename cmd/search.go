package cmd

import (
	"strings"

	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <account> <query>...",
	Short: "Search messages",
	Long: `Search messages of an account. The query is made of words, "quoted phrases" and terms
prefixed by from:, to:, subject:, tag: or folder:

With an index, words are also searched in the message body.
Without index, they only match the subject, sender and recipients.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	query := mailbox.ParseQuery(joinQuery(args[1:]))
	return withManager(func(manager *account.Manager) error {
		envelopes, err := manager.Search(ctx, args[0], query)
		if err != nil {
			return err
		}
		return displayEnvelopes(envelopes, true)
	})
}

// joinQuery keeps an argument containing spaces as a phrase
func joinQuery(args []string) string {
	terms := make([]string, len(args))
	for i, arg := range args {
		if strings.ContainsAny(arg, " \t") && !strings.Contains(arg, `"`) {
			if field, value, found := strings.Cut(arg, ":"); found && !strings.Contains(field, " ") {
				arg = field + `:"` + value + `"`
			} else {
				arg = `"` + arg + `"`
			}
		}
		terms[i] = arg
	}
	return strings.Join(terms, " ")
}
