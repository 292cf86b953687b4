package tools

import (
	"context"
	"fmt"

	"github.com/brandon/mailsync/internal/email"
)

// GetEmailTextsTool retrieves the display text of messages
type GetEmailTextsTool struct {
	manager *email.Manager
}

// NewGetEmailTextsTool creates a new get email texts tool
func NewGetEmailTextsTool(manager *email.Manager) *GetEmailTextsTool {
	return &GetEmailTextsTool{manager: manager}
}

// Name returns the tool name
func (t *GetEmailTextsTool) Name() string {
	return "get_email_texts"
}

// Description returns the tool description
func (t *GetEmailTextsTool) Description() string {
	return "Retrieve the HTML or plain text body of messages by UID. Fetching a body marks the message read."
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetEmailTextsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": stringSchema("Account to read from"),
			"folder":       stringSchema("Folder alias or server folder name"),
			"uids":         uidsSchema("Message UIDs"),
		},
		"required": []string{"account_name", "folder", "uids"},
	}
}

// Execute executes the tool
func (t *GetEmailTextsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	accountName, err := requiredString(params, "account_name")
	if err != nil {
		return nil, err
	}
	folder, err := requiredString(params, "folder")
	if err != nil {
		return nil, err
	}
	uids, err := uidList(params, "uids")
	if err != nil {
		return nil, err
	}

	return t.manager.FolderEmailTexts(ctx, accountName, folder, uids)
}

// GetEmailPartTool retrieves one MIME part of a message
type GetEmailPartTool struct {
	manager *email.Manager
}

// NewGetEmailPartTool creates a new get email part tool
func NewGetEmailPartTool(manager *email.Manager) *GetEmailPartTool {
	return &GetEmailPartTool{manager: manager}
}

// Name returns the tool name
func (t *GetEmailPartTool) Name() string {
	return "get_email_part"
}

// Description returns the tool description
func (t *GetEmailPartTool) Description() string {
	return "Retrieve one MIME part of a message, such as an attachment. Binary parts are returned base64 encoded."
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetEmailPartTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": stringSchema("Account to read from"),
			"folder":       stringSchema("Folder alias or server folder name"),
			"uid": map[string]interface{}{
				"type":        "integer",
				"description": "Message UID",
				"minimum":     1,
			},
			"part": stringSchema("Dotted part number from the message's parts, e.g. 2 or 1.2"),
		},
		"required": []string{"account_name", "folder", "uid", "part"},
	}
}

// Execute executes the tool
func (t *GetEmailPartTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	accountName, err := requiredString(params, "account_name")
	if err != nil {
		return nil, err
	}
	folder, err := requiredString(params, "folder")
	if err != nil {
		return nil, err
	}
	part, err := requiredString(params, "part")
	if err != nil {
		return nil, err
	}
	uid, err := optionalInt(params, "uid")
	if err != nil {
		return nil, err
	}
	if uid < 1 {
		return nil, fmt.Errorf("uid is required")
	}

	return t.manager.FolderEmailPart(ctx, accountName, folder, uint32(uid), part)
}
