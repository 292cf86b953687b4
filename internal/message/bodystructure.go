package message

import (
	"strconv"
	"strings"

	"github.com/emersion/go-imap"

	"github.com/brandon/mailsync/pkg/types"
)

// ParseBodyStructure flattens a BODYSTRUCTURE tree into dotted part numbers. The first
// text/plain and text/html parts become the Plain and HTML shortcuts; every other leaf
// is listed as an attachment.
func ParseBodyStructure(bs *imap.BodyStructure) types.Parts {
	parts := types.Parts{Parts: map[string]types.Part{}}
	if bs == nil {
		return parts
	}

	var order []string
	walkBodyStructure(bs, "", parts.Parts, &order)

	for _, number := range order {
		part := parts.Parts[number]
		isAttachment := strings.EqualFold(dispositionOf(bs, number), "attachment")

		switch {
		case !isAttachment && part.Type == "text" && part.Subtype == "plain" && parts.Plain == "":
			parts.Plain = number
		case !isAttachment && part.Type == "text" && part.Subtype == "html" && parts.HTML == "":
			parts.HTML = number
		default:
			parts.Attachments = append(parts.Attachments, number)
		}
	}

	return parts
}

func walkBodyStructure(bs *imap.BodyStructure, prefix string, parts map[string]types.Part, order *[]string) {
	if strings.EqualFold(bs.MIMEType, "multipart") {
		for i, child := range bs.Parts {
			if child == nil {
				continue
			}
			number := strconv.Itoa(i + 1)
			if prefix != "" {
				number = prefix + "." + number
			}
			walkBodyStructure(child, number, parts, order)
		}
		return
	}

	number := prefix
	if number == "" {
		number = "1"
	}

	parts[number] = types.Part{
		Type:      strings.ToLower(bs.MIMEType),
		Subtype:   strings.ToLower(bs.MIMESubType),
		Encoding:  strings.ToLower(bs.Encoding),
		Charset:   lookupParam(bs.Params, "charset"),
		ContentID: strings.Trim(bs.Id, "<>"),
		Name:      filenameOf(bs),
		Size:      bs.Size,
	}
	*order = append(*order, number)
}

func filenameOf(bs *imap.BodyStructure) string {
	if name := lookupParam(bs.DispositionParams, "filename"); name != "" {
		return DecodeHeader(name)
	}
	return DecodeHeader(lookupParam(bs.Params, "name"))
}

// dispositionOf finds the Content-Disposition of the leaf addressed by number
func dispositionOf(bs *imap.BodyStructure, number string) string {
	node := bs
	if strings.EqualFold(bs.MIMEType, "multipart") {
		for _, segment := range strings.Split(number, ".") {
			index, err := strconv.Atoi(segment)
			if err != nil || node == nil || index < 1 || index > len(node.Parts) {
				return ""
			}
			node = node.Parts[index-1]
		}
	}
	if node == nil {
		return ""
	}
	return node.Disposition
}

func lookupParam(params map[string]string, key string) string {
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
