package tools

import (
	"context"

	"github.com/brandon/mailsync/internal/email"
)

// GetEmailsTool pages through a folder, newest first
type GetEmailsTool struct {
	manager *email.Manager
}

// NewGetEmailsTool creates a new get emails tool
func NewGetEmailsTool(manager *email.Manager) *GetEmailsTool {
	return &GetEmailsTool{manager: manager}
}

// Name returns the tool name
func (t *GetEmailsTool) Name() string {
	return "get_emails"
}

// Description returns the tool description
func (t *GetEmailsTool) Description() string {
	return "Return the next page of message headers from a folder, newest first. Repeated calls continue where the last page ended."
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetEmailsTool) InputSchema() map[string]interface{} {
	return pageSchema(false)
}

// Execute executes the tool
func (t *GetEmailsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return fetchPage(ctx, t.manager, params, "")
}

// SyncEmailsTool reconciles a folder with the server
type SyncEmailsTool struct {
	manager *email.Manager
}

// NewSyncEmailsTool creates a new sync emails tool
func NewSyncEmailsTool(manager *email.Manager) *SyncEmailsTool {
	return &SyncEmailsTool{manager: manager}
}

// Name returns the tool name
func (t *SyncEmailsTool) Name() string {
	return "sync_emails"
}

// Description returns the tool description
func (t *SyncEmailsTool) Description() string {
	return "Sync a folder with the server and report new, deleted and newly read messages"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SyncEmailsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": stringSchema("Account to sync"),
			"folder":       stringSchema("Folder alias or server folder name"),
			"query":        stringSchema("Optional: Sync only the messages matching this search"),
			"expected_new": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: Number of messages just moved into the folder",
				"minimum":     1,
			},
			"unread_uids": uidsSchema("Optional: UIDs believed unread; those read elsewhere are reported"),
		},
		"required": []string{"account_name", "folder"},
	}
}

// Execute executes the tool
func (t *SyncEmailsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	accountName, err := requiredString(params, "account_name")
	if err != nil {
		return nil, err
	}
	folder, err := requiredString(params, "folder")
	if err != nil {
		return nil, err
	}

	var opts email.SyncOptions
	if opts.ExpectedUIDCount, err = optionalInt(params, "expected_new"); err != nil {
		return nil, err
	}
	if _, ok := params["unread_uids"]; ok {
		if opts.CheckUnreadUIDs, err = uidList(params, "unread_uids"); err != nil {
			return nil, err
		}
	}

	return t.manager.SyncFolderEmails(ctx, accountName, folder, optionalString(params, "query"), opts)
}
