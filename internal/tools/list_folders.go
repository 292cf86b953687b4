package tools

import (
	"context"

	"github.com/brandon/mailsync/internal/email"
)

// ListFoldersTool lists the server folders of every account, or of one
type ListFoldersTool struct {
	manager *email.Manager
}

// NewListFoldersTool creates a new list folders tool
func NewListFoldersTool(manager *email.Manager) *ListFoldersTool {
	return &ListFoldersTool{manager: manager}
}

// Name returns the tool name
func (t *ListFoldersTool) Name() string {
	return "list_folders"
}

// Description returns the tool description
func (t *ListFoldersTool) Description() string {
	return "List server folders and configured folder aliases for email accounts"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListFoldersTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": stringSchema("Optional: Specific account name, or all accounts if omitted"),
		},
	}
}

// Execute executes the tool
func (t *ListFoldersTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	accountName := optionalString(params, "account_name")
	if accountName == "" {
		return t.manager.AllFolders(ctx)
	}

	acc, err := t.manager.Account(accountName)
	if err != nil {
		return nil, err
	}
	folders, err := acc.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]email.AccountFolders{
		accountName: {Folders: folders, Aliases: acc.FolderAliases()},
	}, nil
}
