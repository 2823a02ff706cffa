package mailbox

import (
	"strings"

	"github.com/creativeprojects/courier/lib"
	"github.com/emersion/go-imap"
)

// Tags used by the notmuch vocabulary
const (
	TagUnread  = "unread"
	TagFlagged = "flagged"
	TagReplied = "replied"
	TagDraft   = "draft"
	TagDeleted = "deleted"
)

var flagToTag = map[string]string{
	imap.FlaggedFlag:  TagFlagged,
	imap.AnsweredFlag: TagReplied,
	imap.DraftFlag:    TagDraft,
	imap.DeletedFlag:  TagDeleted,
}

// FlagsToTags converts IMAP style flags into tags. A message without \Seen is unread.
func FlagsToTags(flags []string) []string {
	tags := make([]string, 0, len(flags)+1)
	if !lib.HasFlag(flags, imap.SeenFlag) {
		tags = append(tags, TagUnread)
	}
	for _, flag := range lib.NormalizeFlags(flags) {
		if flag == imap.SeenFlag || flag == imap.RecentFlag {
			continue
		}
		if tag, found := flagToTag[flag]; found {
			tags = append(tags, tag)
			continue
		}
		tags = append(tags, strings.ToLower(flag))
	}
	return tags
}

// TagsToFlags is the reverse of FlagsToTags
func TagsToFlags(tags []string) []string {
	flags := make([]string, 0, len(tags)+1)
	unread := false
	for _, tag := range tags {
		if tag == TagUnread {
			unread = true
			continue
		}
		flags = append(flags, TagToFlag(tag))
	}
	if !unread {
		flags = append([]string{imap.SeenFlag}, flags...)
	}
	return flags
}

// TagToFlag converts one tag, "unread" excepted
func TagToFlag(tag string) string {
	for flag, name := range flagToTag {
		if name == tag {
			return flag
		}
	}
	return tag
}

// FlagToTag converts one flag; \Seen has no tag of its own and returns "unread"
// so that adding \Seen removes the unread tag.
func FlagToTag(flag string) string {
	flag = lib.NormalizeFlag(flag)
	if flag == imap.SeenFlag {
		return TagUnread
	}
	if tag, found := flagToTag[flag]; found {
		return tag
	}
	return strings.ToLower(flag)
}
