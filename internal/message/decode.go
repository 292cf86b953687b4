package message

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/quotedprintable"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeString applies the transfer encoding and then the charset of a part to data
func DecodeString(data []byte, encoding, charsetName string) string {
	return DecodeCharset(DecodeTransfer(data, encoding), charsetName)
}

// DecodeTransfer undoes quoted-printable or base64 transfer encoding. Truncated input
// decodes as far as it is complete.
func DecodeTransfer(data []byte, encoding string) []byte {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		// ReadAll hands back everything decoded before a trailing partial escape
		decoded, _ := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
		return decoded
	case "base64":
		return decodeBase64(data)
	default:
		return data
	}
}

func decodeBase64(data []byte) []byte {
	clean := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case '\r', '\n', '\t', ' ':
			continue
		}
		clean = append(clean, b)
	}

	// Only complete 4-byte groups are decodable
	clean = clean[:len(clean)/4*4]

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(clean)))
	n, err := base64.StdEncoding.Decode(decoded, clean)
	if err == nil {
		return decoded[:n]
	}

	var corrupt base64.CorruptInputError
	if errors.As(err, &corrupt) {
		valid := int(corrupt) / 4 * 4
		n, err = base64.StdEncoding.Decode(decoded, clean[:valid])
		if err == nil {
			return decoded[:n]
		}
	}
	return nil
}

// DecodeCharset converts data in the named charset to a UTF-8 string. Unknown or missing
// charsets fall back to detection, and undecodable bytes are dropped.
func DecodeCharset(data []byte, charsetName string) string {
	name := strings.ToLower(strings.Trim(strings.TrimSpace(charsetName), `"`))

	switch name {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return strings.ToValidUTF8(string(data), "")
	case "":
		if utf8.Valid(data) {
			return string(data)
		}
		name = detectCharset(data)
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		if detected := detectCharset(data); detected != "" && detected != name {
			enc, err = htmlindex.Get(detected)
		}
	}
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}
	return string(decoded)
}

func detectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return ""
	}
	return strings.ToLower(result.Charset)
}

// DecodeHeader decodes RFC 2047 encoded words, returning the input when it cannot
func DecodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
