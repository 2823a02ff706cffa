package mailbox

import (
	"strings"
	"unicode"

	"github.com/emersion/go-imap"
)

const (
	FieldText    = ""
	FieldFrom    = "from"
	FieldTo      = "to"
	FieldSubject = "subject"
	FieldTag     = "tag"
	FieldFolder  = "folder"
)

var queryFields = map[string]bool{
	FieldFrom:    true,
	FieldTo:      true,
	FieldSubject: true,
	FieldTag:     true,
	FieldFolder:  true,
}

type Term struct {
	Field string
	Value string
}

// Query is a search expression: words and quoted phrases, optionally prefixed
// by from:, to:, subject:, tag: or folder:
type Query struct {
	Terms []Term
}

func ParseQuery(input string) Query {
	query := Query{}
	for _, token := range tokenize(input) {
		term := Term{Value: token}
		if field, value, found := strings.Cut(token, ":"); found && queryFields[strings.ToLower(field)] && value != "" {
			term = Term{Field: strings.ToLower(field), Value: value}
		}
		query.Terms = append(query.Terms, term)
	}
	return query
}

func (q Query) IsEmpty() bool {
	return len(q.Terms) == 0
}

// Values returns the values of every term on this field
func (q Query) Values(field string) []string {
	values := make([]string, 0)
	for _, term := range q.Terms {
		if term.Field == field {
			values = append(values, term.Value)
		}
	}
	return values
}

// Folder returns the last folder: term, if any
func (q Query) Folder() string {
	values := q.Values(FieldFolder)
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

// Filter converts the query into a structural filter.
// Free text is kept as header-only matching.
func (q Query) Filter() Filter {
	filter := Filter{
		Subject: q.Values(FieldSubject),
		From:    q.Values(FieldFrom),
		To:      q.Values(FieldTo),
		Text:    strings.Join(q.Values(FieldText), " "),
	}
	for _, tag := range q.Values(FieldTag) {
		if tag == TagUnread {
			filter.WithoutFlags = append(filter.WithoutFlags, imap.SeenFlag)
			continue
		}
		filter.Flags = append(filter.Flags, TagToFlag(tag))
	}
	return filter
}

func tokenize(input string) []string {
	tokens := make([]string, 0)
	current := strings.Builder{}
	quoted := false
	for _, r := range input {
		switch {
		case r == '"':
			quoted = !quoted
		case unicode.IsSpace(r) && !quoted:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
