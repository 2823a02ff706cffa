package notmuch

import (
	"context"
	"fmt"
	"strings"

	"github.com/creativeprojects/courier/mailbox"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search runs the query over the headers and the plain text body of every indexed message.
// A message stored in more than one folder is returned once.
func (n *Notmuch) Search(ctx context.Context, query mailbox.Query) ([]mailbox.Envelope, error) {
	if err := n.checkIndex(ctx); err != nil {
		return nil, err
	}
	where, args := searchConditions(query)
	statement := "SELECT " + messageColumns + " FROM messages m"
	if len(where) > 0 {
		statement += " WHERE " + strings.Join(where, " AND ")
	}
	statement += " ORDER BY date, id"

	rows := []messageRow{}
	err := n.db.SelectContext(ctx, &rows, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}
	unique := make([]messageRow, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if seen[row.MessageID] {
			continue
		}
		seen[row.MessageID] = true
		unique = append(unique, row)
	}
	n.log.Printf("search %v: %d messages", query.Terms, len(unique))
	return n.envelopes(ctx, unique)
}

func searchConditions(query mailbox.Query) ([]string, []any) {
	where := make([]string, 0, len(query.Terms))
	args := make([]any, 0, len(query.Terms)*4)
	for _, term := range query.Terms {
		pattern := "%" + likeEscaper.Replace(term.Value) + "%"
		switch term.Field {
		case mailbox.FieldFrom:
			where = append(where, `m.sender LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		case mailbox.FieldTo:
			where = append(where, `(m.recipients LIKE ? ESCAPE '\' OR m.cc LIKE ? ESCAPE '\')`)
			args = append(args, pattern, pattern)
		case mailbox.FieldSubject:
			where = append(where, `m.subject LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		case mailbox.FieldTag:
			where = append(where, "EXISTS (SELECT 1 FROM tags t WHERE t.message_id = m.message_id AND t.tag = ?)")
			args = append(args, strings.ToLower(term.Value))
		case mailbox.FieldFolder:
			where = append(where, "m.folder = ?")
			args = append(args, term.Value)
		default:
			where = append(where, `(m.subject LIKE ? ESCAPE '\' OR m.sender LIKE ? ESCAPE '\' OR m.recipients LIKE ? ESCAPE '\' OR m.body LIKE ? ESCAPE '\')`)
			args = append(args, pattern, pattern, pattern, pattern)
		}
	}
	return where, args
}
