package message

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"

	"github.com/brandon/mailsync/pkg/types"
)

// Mailer is written to the X-Mailer header of outgoing messages
const Mailer = "mailsync"

// Outgoing represents an email to be sent
type Outgoing struct {
	From        types.Contact
	To          []types.Contact
	Cc          []types.Contact
	Bcc         []types.Contact
	ReplyTo     *types.Contact
	Subject     string
	Text        string
	HTML        string
	InReplyTo   string
	References  []string
	Attachments []Attachment
}

// Attachment represents an email attachment
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Recipients returns every envelope recipient, Bcc included
func (m *Outgoing) Recipients() []string {
	var recipients []string
	for _, list := range [][]types.Contact{m.To, m.Cc, m.Bcc} {
		for _, c := range list {
			recipients = append(recipients, c.Address)
		}
	}
	return recipients
}

// Build renders the message in MIME format
func (m *Outgoing) Build(now time.Time) ([]byte, error) {
	if m.From.Address == "" {
		return nil, fmt.Errorf("message has no sender")
	}
	if len(m.Recipients()) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}

	builder := enmime.Builder().
		From(m.From.Name, m.From.Address).
		Subject(m.Subject).
		Date(now).
		Header("Message-ID", newMessageID(m.From.Address)).
		Header("X-Mailer", Mailer)

	for _, c := range m.To {
		builder = builder.To(c.Name, c.Address)
	}
	for _, c := range m.Cc {
		builder = builder.CC(c.Name, c.Address)
	}
	for _, c := range m.Bcc {
		builder = builder.BCC(c.Name, c.Address)
	}
	if m.ReplyTo != nil {
		builder = builder.ReplyTo(m.ReplyTo.Name, m.ReplyTo.Address)
	}

	if m.InReplyTo != "" {
		builder = builder.Header("In-Reply-To", m.InReplyTo)
		refs := m.References
		if len(refs) == 0 || refs[len(refs)-1] != m.InReplyTo {
			refs = append(append([]string{}, refs...), m.InReplyTo)
		}
		builder = builder.Header("References", strings.Join(refs, " "))
	}

	if m.Text != "" || m.HTML == "" {
		builder = builder.Text([]byte(m.Text))
	}
	if m.HTML != "" {
		builder = builder.HTML([]byte(m.HTML))
	}
	for _, a := range m.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		builder = builder.AddAttachment(a.Content, contentType, a.Filename)
	}

	root, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}

func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
