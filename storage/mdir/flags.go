package mdir

import (
	"sort"
	"strings"

	"github.com/creativeprojects/courier/lib"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-maildir"
)

// info separator between the unique key and the flags of a maildir file name
const infoSeparator = ":2,"

var flagMapping = []struct {
	flag    string
	maildir maildir.Flag
}{
	{imap.SeenFlag, maildir.FlagSeen},
	{imap.AnsweredFlag, maildir.FlagReplied},
	{imap.FlaggedFlag, maildir.FlagFlagged},
	{imap.DeletedFlag, maildir.FlagTrashed},
	{imap.DraftFlag, maildir.FlagDraft},
}

// ToFlags converts IMAP flags into maildir flags. Keywords have no maildir equivalent and are dropped.
func ToFlags(source []string) []maildir.Flag {
	flags := make([]maildir.Flag, 0, len(source))
	for _, sourceFlag := range lib.NormalizeFlags(source) {
		for _, mapping := range flagMapping {
			if mapping.flag == sourceFlag && !hasMaildirFlag(flags, mapping.maildir) {
				flags = append(flags, mapping.maildir)
			}
		}
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	return flags
}

// FromFlags converts maildir flags into IMAP flags
func FromFlags(source []maildir.Flag) []string {
	flags := make([]string, 0, len(source))
	for _, sourceFlag := range source {
		for _, mapping := range flagMapping {
			if mapping.maildir == sourceFlag {
				flags = append(flags, mapping.flag)
			}
		}
	}
	return flags
}

// ParseFilename splits a maildir file name into its unique key and its flags
func ParseFilename(filename string) (string, []maildir.Flag) {
	key, info, found := strings.Cut(filename, infoSeparator)
	if !found {
		return filename, nil
	}
	flags := make([]maildir.Flag, 0, len(info))
	for _, char := range info {
		flags = append(flags, maildir.Flag(char))
	}
	return key, flags
}

func hasMaildirFlag(flags []maildir.Flag, flag maildir.Flag) bool {
	for _, existing := range flags {
		if existing == flag {
			return true
		}
	}
	return false
}

func addFlags(flags []maildir.Flag, add []maildir.Flag) []maildir.Flag {
	output := append([]maildir.Flag{}, flags...)
	for _, flag := range add {
		if !hasMaildirFlag(output, flag) {
			output = append(output, flag)
		}
	}
	return output
}

func removeFlags(flags []maildir.Flag, remove []maildir.Flag) []maildir.Flag {
	output := make([]maildir.Flag, 0, len(flags))
	for _, flag := range flags {
		if !hasMaildirFlag(remove, flag) {
			output = append(output, flag)
		}
	}
	return output
}
