package lib

import (
	"strings"

	"github.com/emersion/go-imap"
)

func StripRecentFlag(source []string) []string {
	output := make([]string, 0, len(source))
	for _, flag := range source {
		if flag == imap.RecentFlag {
			continue
		}
		output = append(output, flag)
	}
	return output
}

var shortFlags = map[string]string{
	"seen":     imap.SeenFlag,
	"answered": imap.AnsweredFlag,
	"replied":  imap.AnsweredFlag,
	"flagged":  imap.FlaggedFlag,
	"deleted":  imap.DeletedFlag,
	"draft":    imap.DraftFlag,
}

// NormalizeFlag accepts a system flag with or without its backslash ("seen", "\Seen").
// Anything else is returned as a keyword.
func NormalizeFlag(flag string) string {
	if system, found := shortFlags[strings.ToLower(strings.TrimPrefix(flag, `\`))]; found {
		return system
	}
	return flag
}

func NormalizeFlags(flags []string) []string {
	output := make([]string, 0, len(flags))
	for _, flag := range flags {
		output = append(output, NormalizeFlag(flag))
	}
	return output
}

func HasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}
