package cmd

import (
	"strconv"
	"strings"

	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/term"
)

const dateFormat = "2006-01-02 15:04"

func displayFlags(source []string) string {
	flags := make([]string, len(source))
	for i, flag := range source {
		flags[i] = strings.TrimPrefix(flag, "\\")
	}
	return strings.Join(flags, ", ")
}

func displayEnvelopes(envelopes []mailbox.Envelope, withFolder bool) error {
	if len(envelopes) == 0 {
		term.Warn("No message found")
		return nil
	}
	header := []string{"ID", "Date", "From", "Subject", "Flags"}
	if withFolder {
		header = append([]string{"Folder"}, header...)
	}
	rows := make([][]string, 0, len(envelopes))
	for _, envelope := range envelopes {
		date := ""
		if !envelope.Date.IsZero() {
			date = envelope.Date.Local().Format(dateFormat)
		}
		row := []string{
			envelope.ID.String(),
			date,
			strings.Join(envelope.From, ", "),
			envelope.Subject,
			displayFlags(envelope.Flags),
		}
		if withFolder {
			row = append([]string{envelope.Folder}, row...)
		}
		rows = append(rows, row)
	}
	return term.Table(header, rows)
}

func displayCount(value uint32) string {
	return strconv.FormatUint(uint64(value), 10)
}
