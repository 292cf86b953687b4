package tools

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/message"
)

// SendEmailTool sends a new email
type SendEmailTool struct {
	manager *email.Manager
}

// NewSendEmailTool creates a new send email tool
func NewSendEmailTool(manager *email.Manager) *SendEmailTool {
	return &SendEmailTool{manager: manager}
}

// Name returns the tool name
func (t *SendEmailTool) Name() string {
	return "send_email"
}

// Description returns the tool description
func (t *SendEmailTool) Description() string {
	return "Send a new email with support for text, HTML, attachments, CC, BCC"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SendEmailTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": stringSchema("Account to send from"),
			"to":           stringSchema("Recipient address(es), comma-separated, e.g. \"Bob <bob@example.com>, carol@example.com\""),
			"cc":           stringSchema("Optional: CC recipients (comma-separated)"),
			"bcc":          stringSchema("Optional: BCC recipients (comma-separated)"),
			"subject":      stringSchema("Email subject"),
			"body_text":    stringSchema("Optional: Plain text body"),
			"body_html":    stringSchema("Optional: HTML body"),
			"attachments": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Optional: Array of local file paths to attach",
			},
			"reply_to":    stringSchema("Optional: Reply-To address"),
			"in_reply_to": stringSchema("Optional: Message-ID being replied to"),
			"references": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Optional: Message-IDs of the thread being replied to",
			},
		},
		"required": []string{"account_name", "to", "subject"},
	}
}

// Execute executes the tool
func (t *SendEmailTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	accountName, err := requiredString(params, "account_name")
	if err != nil {
		return nil, err
	}
	subject, err := requiredString(params, "subject")
	if err != nil {
		return nil, err
	}

	msg := &message.Outgoing{
		Subject:   subject,
		Text:      optionalString(params, "body_text"),
		HTML:      optionalString(params, "body_html"),
		InReplyTo: optionalString(params, "in_reply_to"),
	}

	if msg.To, err = contactList(params, "to"); err != nil {
		return nil, err
	}
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("to is required")
	}
	if msg.Cc, err = contactList(params, "cc"); err != nil {
		return nil, err
	}
	if msg.Bcc, err = contactList(params, "bcc"); err != nil {
		return nil, err
	}

	// Ensure at least one body is set
	if msg.Text == "" && msg.HTML == "" {
		return nil, fmt.Errorf("either body_text or body_html is required")
	}

	replyTo, err := contactList(params, "reply_to")
	if err != nil {
		return nil, err
	}
	if len(replyTo) > 0 {
		msg.ReplyTo = &replyTo[0]
	}

	if refs, ok := params["references"].([]interface{}); ok {
		for _, ref := range refs {
			if s, ok := ref.(string); ok && s != "" {
				msg.References = append(msg.References, s)
			}
		}
	}

	if paths, ok := params["attachments"].([]interface{}); ok {
		for _, p := range paths {
			path, ok := p.(string)
			if !ok || path == "" {
				continue
			}
			attachment, err := readAttachment(path)
			if err != nil {
				return nil, err
			}
			msg.Attachments = append(msg.Attachments, attachment)
		}
	}

	if err := t.manager.Send(ctx, accountName, msg); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"success": true,
		"message": "Email sent successfully",
	}, nil
}

func readAttachment(path string) (message.Attachment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return message.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	return message.Attachment{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Content:     content,
	}, nil
}
