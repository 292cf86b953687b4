package message

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/pkg/types"
)

var (
	styleBlock  = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?(</(style|script)>|$)`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]*>`)
	trailingTag = regexp.MustCompile(`<[^>]*$`)
	mimeHeader  = regexp.MustCompile(`(?i)^content-[a-z-]+:\s`)
)

// ExtractExcerpt turns the first bytes of a text part into a short plain-text preview.
// It never fails: undecodable input yields an empty excerpt.
func ExtractExcerpt(raw []byte, part *types.Part, logger logrus.FieldLogger) (excerpt string) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", fmt.Sprint(r)).Debug("Failed to extract excerpt")
			excerpt = ""
		}
	}()

	if len(raw) == 0 {
		return ""
	}

	var text string
	isHTML := false
	if part != nil {
		text = DecodeString(raw, part.Encoding, part.Charset)
		isHTML = part.Subtype == "html"
	} else {
		text = DecodeCharset(raw, "")
	}

	if isHTML || looksLikeHTML(text) {
		text = htmlToText(text, logger)
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || mimeHeader.MatchString(line) {
			continue
		}
		switch line[0] {
		case '#', '-', '>':
			continue
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func looksLikeHTML(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<div") ||
		strings.Contains(lower, "<p>") || strings.Contains(lower, "<br")
}

func htmlToText(html string, logger logrus.FieldLogger) string {
	html = styleBlock.ReplaceAllString(html, "")
	html = trailingTag.ReplaceAllString(html, "")

	text, err := html2text.FromString(html, html2text.Options{OmitLinks: true, TextOnly: true})
	if err != nil {
		logger.WithError(err).Debug("Failed to convert HTML excerpt, stripping tags")
		return anyTag.ReplaceAllString(html, " ")
	}
	return text
}
