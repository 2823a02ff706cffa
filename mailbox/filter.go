package mailbox

import (
	"strings"
	"time"

	"github.com/creativeprojects/courier/lib"
)

// Filter is a structural filter on envelopes. Every backend able to list envelopes supports it.
// Text only matches the subject, from and to fields, never the body.
// Every value of Subject, From and To must match.
type Filter struct {
	Subject      []string
	From         []string
	To           []string
	Text         string
	Since        time.Time
	Before       time.Time
	Flags        []string
	WithoutFlags []string
	Limit        int
}

func (f Filter) IsEmpty() bool {
	return len(f.Subject) == 0 && len(f.From) == 0 && len(f.To) == 0 && f.Text == "" &&
		f.Since.IsZero() && f.Before.IsZero() &&
		len(f.Flags) == 0 && len(f.WithoutFlags) == 0
}

// Match returns true when the envelope satisfies every criterion of the filter
func (f Filter) Match(envelope Envelope) bool {
	for _, subject := range f.Subject {
		if !containsFold(envelope.Subject, subject) {
			return false
		}
	}
	for _, from := range f.From {
		if !anyContainsFold(envelope.From, from) {
			return false
		}
	}
	for _, to := range f.To {
		if !anyContainsFold(envelope.To, to) && !anyContainsFold(envelope.Cc, to) {
			return false
		}
	}
	for _, word := range strings.Fields(f.Text) {
		if !containsFold(envelope.Subject, word) &&
			!anyContainsFold(envelope.From, word) &&
			!anyContainsFold(envelope.To, word) {
			return false
		}
	}
	if !f.Since.IsZero() && envelope.Date.Before(f.Since) {
		return false
	}
	if !f.Before.IsZero() && !envelope.Date.Before(f.Before) {
		return false
	}
	for _, flag := range f.Flags {
		if !lib.HasFlag(envelope.Flags, lib.NormalizeFlag(flag)) {
			return false
		}
	}
	for _, flag := range f.WithoutFlags {
		if lib.HasFlag(envelope.Flags, lib.NormalizeFlag(flag)) {
			return false
		}
	}
	return true
}

// Apply keeps the matching envelopes, up to the limit
func (f Filter) Apply(envelopes []Envelope) []Envelope {
	output := make([]Envelope, 0, len(envelopes))
	for _, envelope := range envelopes {
		if !f.Match(envelope) {
			continue
		}
		output = append(output, envelope)
		if f.Limit > 0 && len(output) >= f.Limit {
			break
		}
	}
	return output
}

func containsFold(value, search string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(search))
}

func anyContainsFold(values []string, search string) bool {
	for _, value := range values {
		if containsFold(value, search) {
			return true
		}
	}
	return false
}
