package types

import "time"

// Contact is a (name, address) pair decoded from an envelope address list
type Contact struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Part describes one MIME part addressed by its dotted part number
type Part struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Encoding  string `json:"encoding,omitempty"`
	Charset   string `json:"charset,omitempty"`
	ContentID string `json:"content_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Size      uint32 `json:"size"`
}

// ContentType returns the lowercased "type/subtype" of the part
func (p Part) ContentType() string {
	return p.Type + "/" + p.Subtype
}

// Parts is the flattened part map of a message plus its shortcut keys
type Parts struct {
	Parts       map[string]Part `json:"parts"`
	Plain       string          `json:"plain,omitempty"`
	HTML        string          `json:"html,omitempty"`
	Attachments []string        `json:"attachments,omitempty"`
}

// TextPart returns the part number best suited for display, preferring HTML
func (p Parts) TextPart() string {
	if p.HTML != "" {
		return p.HTML
	}
	return p.Plain
}

// EmailHeaders is the decoded header record cached per UID
type EmailHeaders struct {
	UID             uint32    `json:"uid"`
	Seq             uint32    `json:"seq"`
	Flags           []string  `json:"flags"`
	Size            uint32    `json:"size"`
	Excerpt         string    `json:"excerpt"`
	ContentEncoding string    `json:"content_encoding,omitempty"`
	Parts           Parts     `json:"parts"`
	AccountName     string    `json:"account_name"`
	ServerFolder    string    `json:"server_folder_name"`
	FolderName      string    `json:"folder_name"`
	Date            time.Time `json:"date"`
	Subject         string    `json:"subject"`
	From            []Contact `json:"from"`
	To              []Contact `json:"to"`
	Sender          []Contact `json:"sender"`
	Cc              []Contact `json:"cc"`
	Bcc             []Contact `json:"bcc"`
	ReplyTo         []Contact `json:"reply_to"`
	InReplyTo       string    `json:"in_reply_to,omitempty"`
	MessageID       string    `json:"message_id,omitempty"`
	References      []string  `json:"references,omitempty"`
}

// HasFlag reports whether the record carries the given flag
func (h *EmailHeaders) HasFlag(flag string) bool {
	for _, f := range h.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Folder represents a server folder as returned by LIST
type Folder struct {
	Name       string   `json:"name"`
	Delimiter  string   `json:"delimiter"`
	Attributes []string `json:"attributes,omitempty"`
}

// FolderMeta summarizes a folder's local state
type FolderMeta struct {
	Exists      bool   `json:"exists"`
	Count       int    `json:"count"`
	SeenCount   int    `json:"seen_count"`
	UIDValidity string `json:"uid_validity,omitempty"`
}

// SyncResult is what a folder sync reports back to the caller
type SyncResult struct {
	New     []*EmailHeaders `json:"new_emails"`
	Deleted []uint32        `json:"deleted_uids"`
	Read    []uint32        `json:"read_uids"`
	Meta    FolderMeta      `json:"meta"`
}

// PartContent is a decoded body part with the metadata needed to serve it
type PartContent struct {
	UID         uint32 `json:"uid"`
	Part        string `json:"part"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename,omitempty"`
	// Encoding is "base64" when Data holds a non-text part
	Encoding string `json:"encoding,omitempty"`
	Data     string `json:"data"`
}
