package message

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/bradenaw/juniper/xslices"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/pkg/types"
)

func init() {
	// Lets go-imap decode non UTF-8 envelope words
	imap.CharsetReader = charset.Reader
}

// HeaderInput is the raw material fetched for one message
type HeaderInput struct {
	UID           uint32
	SeqNum        uint32
	Flags         []string
	Size          uint32
	Envelope      *imap.Envelope
	BodyStructure *imap.BodyStructure

	// ExcerptData is the leading slice of part 1
	ExcerptData []byte
	// HeaderFields holds the raw REFERENCES and CONTENT-TRANSFER-ENCODING fields
	HeaderFields []byte

	AccountName  string
	ServerFolder string
	FolderName   string
}

// BuildHeaders decodes a fetched message into its cached header record
func BuildHeaders(in HeaderInput, logger logrus.FieldLogger) *types.EmailHeaders {
	log := logger.WithField("uid", in.UID)
	parts := ParseBodyStructure(in.BodyStructure)

	headers := &types.EmailHeaders{
		UID:          in.UID,
		Seq:          in.SeqNum,
		Flags:        append([]string{}, in.Flags...),
		Size:         in.Size,
		Parts:        parts,
		AccountName:  in.AccountName,
		ServerFolder: in.ServerFolder,
		FolderName:   in.FolderName,
	}

	if env := in.Envelope; env != nil {
		headers.Date = env.Date
		headers.Subject = DecodeHeader(env.Subject)
		headers.From = MakeContacts(env.From)
		headers.To = MakeContacts(env.To)
		headers.Sender = MakeContacts(env.Sender)
		headers.Cc = MakeContacts(env.Cc)
		headers.Bcc = MakeContacts(env.Bcc)
		headers.ReplyTo = MakeContacts(env.ReplyTo)
		headers.InReplyTo = strings.TrimSpace(env.InReplyTo)
		headers.MessageID = strings.TrimSpace(env.MessageId)
	}

	if len(in.HeaderFields) > 0 {
		// Fields parsed before an error are still returned
		fields, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(in.HeaderFields)))
		if err != nil && !errors.Is(err, io.EOF) {
			log.WithError(err).Debug("Failed to parse header fields")
		}
		headers.ContentEncoding = strings.ToLower(strings.TrimSpace(fields.Get("Content-Transfer-Encoding")))
		headers.References = ParseReferences(fields.Get("References"))
	}

	headers.Excerpt = ExtractExcerpt(in.ExcerptData, excerptPart(parts, headers.ContentEncoding), log)
	return headers
}

// excerptPart picks the metadata describing the bytes fetched as BODY[1]
func excerptPart(parts types.Parts, contentEncoding string) *types.Part {
	if part, ok := parts.Parts["1"]; ok {
		return &part
	}
	for _, number := range []string{parts.Plain, parts.HTML} {
		if strings.HasPrefix(number, "1.") {
			part := parts.Parts[number]
			return &part
		}
	}
	if contentEncoding != "" {
		return &types.Part{Type: "text", Subtype: "plain", Encoding: contentEncoding}
	}
	return nil
}

// ParseReferences splits a References header into message ids
func ParseReferences(value string) []string {
	refs := strings.Fields(value)
	if len(refs) == 1 && strings.Contains(refs[0], ">,<") {
		refs = strings.Split(refs[0], ",")
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

// MakeContacts converts an envelope address list into (name, address) pairs.
// Group markers and empty addresses are dropped.
func MakeContacts(addrs []*imap.Address) []types.Contact {
	contacts := xslices.Map(addrs, func(addr *imap.Address) types.Contact {
		if addr == nil || addr.MailboxName == "" || addr.HostName == "" {
			return types.Contact{}
		}
		return types.Contact{
			Name:    DecodeHeader(addr.PersonalName),
			Address: addr.Address(),
		}
	})

	valid := contacts[:0]
	for _, contact := range contacts {
		if contact.Address != "" {
			valid = append(valid, contact)
		}
	}
	return valid
}
