package tools

import (
	"context"
	"fmt"

	"github.com/brandon/mailsync/internal/email"
)

// FolderActionTool moves, copies, deletes, stars or unstars messages
type FolderActionTool struct {
	manager *email.Manager
}

// NewFolderActionTool creates a new folder action tool
func NewFolderActionTool(manager *email.Manager) *FolderActionTool {
	return &FolderActionTool{manager: manager}
}

// Name returns the tool name
func (t *FolderActionTool) Name() string {
	return "folder_action"
}

// Description returns the tool description
func (t *FolderActionTool) Description() string {
	return "Move, copy, delete, star or unstar messages in a folder. Move and copy create the destination folder if needed."
}

// InputSchema returns the JSON schema for tool inputs
func (t *FolderActionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": stringSchema("Account owning the messages"),
			"folder":       stringSchema("Folder alias or server folder name holding the messages"),
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{
					email.ActionMove,
					email.ActionCopy,
					email.ActionDelete,
					email.ActionStar,
					email.ActionUnstar,
				},
				"description": "Action to apply",
			},
			"uids":        uidsSchema("Message UIDs"),
			"destination": stringSchema("Destination folder alias or name, required for move and copy"),
		},
		"required": []string{"account_name", "folder", "action", "uids"},
	}
}

// Execute executes the tool
func (t *FolderActionTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	accountName, err := requiredString(params, "account_name")
	if err != nil {
		return nil, err
	}
	folder, err := requiredString(params, "folder")
	if err != nil {
		return nil, err
	}
	action, err := requiredString(params, "action")
	if err != nil {
		return nil, err
	}
	uids, err := uidList(params, "uids")
	if err != nil {
		return nil, err
	}

	dest := optionalString(params, "destination")
	if err := t.manager.FolderAction(ctx, accountName, folder, action, uids, dest); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("%s applied to %d messages", action, len(uids)),
	}, nil
}
