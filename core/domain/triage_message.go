package domain

import (
	"strings"
	"time"
)

// Message is a parsed mail as handed over by a message source.
// Every field is optional; the zero value is a valid (empty) message.
type Message struct {
	Path        string     `json:"path"`
	Subject     string     `json:"subject"`
	From        string     `json:"from"`
	Body        string     `json:"body"`
	Attachments []string   `json:"attachments,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
}

// SenderDomain returns the lowercased part after the last '@' of From,
// or "" when From carries no address.
func (m *Message) SenderDomain() string {
	if m == nil || m.From == "" {
		return ""
	}
	at := strings.LastIndex(m.From, "@")
	if at < 0 || at == len(m.From)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(strings.Trim(m.From[at+1:], "<> ")))
}

// Text is the subject and body joined the way the embedding step sees them.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	return m.Subject + "\n\n" + m.Body
}

// DateString renders Date as RFC 3339, empty when unknown.
func (m *Message) DateString() string {
	if m == nil || m.Date == nil {
		return ""
	}
	return m.Date.Format(time.RFC3339)
}
