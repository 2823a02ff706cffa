package mailbox

import (
	"strings"

	"github.com/creativeprojects/courier/lib"
)

type Info struct {
	// The server's path separator.
	Delimiter string
	// The mailbox name.
	Name string
	// The mailbox attributes (\Noselect, \Sent, ...)
	Attributes []string
}

func ChangeDelimiter(info Info, delimiter string) Info {
	return Info{
		Delimiter:  delimiter,
		Name:       lib.VerifyDelimiter(info.Name, info.Delimiter, delimiter),
		Attributes: info.Attributes,
	}
}

// Parent returns the name of the parent folder, or an empty string for a root folder
func (i Info) Parent() string {
	components := lib.SplitFolder(i.Name, i.Delimiter)
	if len(components) < 2 {
		return ""
	}
	parent := components[:len(components)-1]
	for index, component := range parent {
		parent[index] = strings.ReplaceAll(component, i.Delimiter, `\`+i.Delimiter)
	}
	return strings.Join(parent, i.Delimiter)
}

func (i Info) Selectable() bool {
	for _, attr := range i.Attributes {
		if strings.EqualFold(attr, `\Noselect`) || strings.EqualFold(attr, `\NonExistent`) {
			return false
		}
	}
	return true
}
