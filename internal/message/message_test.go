package message

import (
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/pkg/types"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestParseBodyStructureNested(t *testing.T) {
	bs := &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "mixed",
		Parts: []*imap.BodyStructure{
			{
				MIMEType:    "multipart",
				MIMESubType: "alternative",
				Parts: []*imap.BodyStructure{
					{MIMEType: "TEXT", MIMESubType: "PLAIN", Params: map[string]string{"charset": "utf-8"}, Encoding: "QUOTED-PRINTABLE", Size: 120},
					{MIMEType: "text", MIMESubType: "html", Params: map[string]string{"CHARSET": "iso-8859-1"}, Encoding: "base64", Size: 300},
				},
			},
			{
				MIMEType:          "image",
				MIMESubType:       "png",
				Id:                "<logo@example>",
				Encoding:          "base64",
				Size:              2048,
				Disposition:       "inline",
				DispositionParams: map[string]string{"filename": "logo.png"},
			},
			{
				MIMEType:    "text",
				MIMESubType: "plain",
				Params:      map[string]string{"name": "notes.txt"},
				Disposition: "attachment",
				Size:        10,
			},
		},
	}

	parts := ParseBodyStructure(bs)

	require.Len(t, parts.Parts, 4)
	assert.Equal(t, "1.1", parts.Plain)
	assert.Equal(t, "1.2", parts.HTML)
	assert.Equal(t, []string{"2", "3"}, parts.Attachments)

	assert.Equal(t, types.Part{Type: "text", Subtype: "plain", Encoding: "quoted-printable", Charset: "utf-8", Size: 120}, parts.Parts["1.1"])
	assert.Equal(t, "iso-8859-1", parts.Parts["1.2"].Charset)
	assert.Equal(t, "logo@example", parts.Parts["2"].ContentID)
	assert.Equal(t, "logo.png", parts.Parts["2"].Name)
	assert.Equal(t, "notes.txt", parts.Parts["3"].Name)
	assert.Equal(t, "1.2", parts.TextPart())
}

func TestParseBodyStructureSinglePart(t *testing.T) {
	parts := ParseBodyStructure(&imap.BodyStructure{MIMEType: "text", MIMESubType: "plain", Size: 5})

	assert.Equal(t, "1", parts.Plain)
	assert.Empty(t, parts.HTML)
	assert.Empty(t, parts.Attachments)

	assert.Empty(t, ParseBodyStructure(nil).Parts)
}

func TestDecodeString(t *testing.T) {
	assert.Equal(t, "café au lait", DecodeString([]byte("caf=C3=A9 au=\r\n lait"), "quoted-printable", "utf-8"))
	assert.Equal(t, "café", DecodeString([]byte("caf\xe9"), "7bit", "iso-8859-1"))
	assert.Equal(t, "plain", DecodeString([]byte("plain"), "", ""))

	encoded := base64.StdEncoding.EncodeToString([]byte("hello base64 world"))
	assert.Equal(t, "hello base64 world", DecodeString([]byte(encoded[:12]+"\r\n"+encoded[12:]), "BASE64", "us-ascii"))
}

func TestDecodeStringToleratesTruncation(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("abcdefghijklmnop"))

	// Cut mid-group: only complete groups decode
	assert.Equal(t, "abcdefghi", DecodeString([]byte(encoded[:14]), "base64", ""))

	// A soft break cut at the end of the fetched range is dropped
	assert.Equal(t, "abc", DecodeString([]byte("abc="), "quoted-printable", ""))
}

func TestDecodeCharsetUnknownFallsBack(t *testing.T) {
	assert.Equal(t, "hello", DecodeCharset([]byte("hello"), "x-made-up"))
	assert.Equal(t, "ab", DecodeCharset([]byte("a\xffb"), "utf-8"))
}

func TestDecodeHeader(t *testing.T) {
	assert.Equal(t, "¡Hola, señor!", DecodeHeader("=?ISO-8859-1?Q?=A1Hola,_se=F1or!?="))
	assert.Equal(t, "=?bogus", DecodeHeader("=?bogus"))
}

func TestExtractExcerptHTML(t *testing.T) {
	raw := []byte(`<html><head><style>p { color: red; }</style></head>` +
		`<body><p>Hello there,</p><p>&gt; quoted line</p><p>- bullet</p><p>See you soon</p><div class="trunc`)
	part := &types.Part{Type: "text", Subtype: "html"}

	excerpt := ExtractExcerpt(raw, part, quietLogger())

	assert.Contains(t, excerpt, "Hello there,")
	assert.Contains(t, excerpt, "See you soon")
	assert.NotContains(t, excerpt, "color")
	assert.NotContains(t, excerpt, "quoted line")
	assert.NotContains(t, excerpt, "bullet")
	assert.NotContains(t, excerpt, "trunc")
}

func TestExtractExcerptPlain(t *testing.T) {
	raw := []byte("First line\r\n\r\n# heading\r\n> quote\r\n-- \r\nSecond=20line")
	part := &types.Part{Type: "text", Subtype: "plain", Encoding: "quoted-printable"}

	assert.Equal(t, "First line\nSecond line", ExtractExcerpt(raw, part, quietLogger()))
	assert.Empty(t, ExtractExcerpt(nil, part, quietLogger()))
}

func TestParseReferences(t *testing.T) {
	assert.Equal(t, []string{"<a@x>", "<b@x>"}, ParseReferences("<a@x>\r\n <b@x>"))
	assert.Equal(t, []string{"<a@x>", "<b@x>"}, ParseReferences("<a@x>,<b@x>"))
	assert.Nil(t, ParseReferences("  "))
}

func TestBuildHeaders(t *testing.T) {
	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := HeaderInput{
		UID:    42,
		SeqNum: 7,
		Flags:  []string{imap.SeenFlag},
		Size:   1234,
		Envelope: &imap.Envelope{
			Date:      date,
			Subject:   "=?UTF-8?Q?Caf=C3=A9?=",
			From:      []*imap.Address{{PersonalName: "Ada", MailboxName: "ada", HostName: "example.com"}},
			To:        []*imap.Address{{MailboxName: "me", HostName: "example.org"}, {MailboxName: "group"}},
			MessageId: "<m1@example.com>",
			InReplyTo: "<m0@example.com>",
		},
		BodyStructure: &imap.BodyStructure{MIMEType: "text", MIMESubType: "plain", Encoding: "7bit", Size: 20},
		ExcerptData:   []byte("Short body"),
		HeaderFields:  []byte("References: <m0@example.com>\r\nContent-Transfer-Encoding: 7BIT\r\n\r\n"),
		AccountName:   "Work",
		ServerFolder:  "INBOX",
		FolderName:    "inbox",
	}

	headers := BuildHeaders(in, quietLogger())

	assert.Equal(t, uint32(42), headers.UID)
	assert.Equal(t, uint32(7), headers.Seq)
	assert.True(t, headers.HasFlag(imap.SeenFlag))
	assert.Equal(t, "Café", headers.Subject)
	assert.Equal(t, date, headers.Date)
	assert.Equal(t, []types.Contact{{Name: "Ada", Address: "ada@example.com"}}, headers.From)
	assert.Equal(t, []types.Contact{{Address: "me@example.org"}}, headers.To)
	assert.Empty(t, headers.Cc)
	assert.Equal(t, "7bit", headers.ContentEncoding)
	assert.Equal(t, []string{"<m0@example.com>"}, headers.References)
	assert.Equal(t, "Short body", headers.Excerpt)
	assert.Equal(t, "1", headers.Parts.Plain)
	assert.Equal(t, "inbox", headers.FolderName)
}

func TestOutgoingBuild(t *testing.T) {
	msg := &Outgoing{
		From:      types.Contact{Name: "Me", Address: "me@example.com"},
		To:        []types.Contact{{Name: "You", Address: "you@example.org"}},
		Bcc:       []types.Contact{{Address: "hidden@example.net"}},
		Subject:   "Hello",
		Text:      "Hi there",
		InReplyTo: "<m0@example.org>",
	}

	assert.Equal(t, []string{"you@example.org", "hidden@example.net"}, msg.Recipients())

	raw, err := msg.Build(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: Hello")
	assert.Contains(t, string(raw), "In-Reply-To: <m0@example.org>")
	assert.Contains(t, string(raw), "X-Mailer: "+Mailer)
	assert.Contains(t, string(raw), "Hi there")

	_, err = (&Outgoing{From: msg.From, Subject: "x"}).Build(time.Now())
	assert.Error(t, err)
}
