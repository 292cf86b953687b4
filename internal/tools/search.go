package tools

import (
	"context"
	"fmt"

	"github.com/brandon/mailsync/internal/contacts"
	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/pkg/types"
)

const defaultContactLimit = 20

// emailPage is the response of the paging tools
type emailPage struct {
	Emails []*types.EmailHeaders `json:"emails"`
	Meta   types.FolderMeta      `json:"meta"`
}

func pageSchema(withQuery bool) map[string]interface{} {
	properties := map[string]interface{}{
		"account_name": stringSchema("Account to read from"),
		"folder":       stringSchema("Folder alias (inbox, sent, archive, ...) or server folder name"),
		"reset": map[string]interface{}{
			"type":        "boolean",
			"description": "Optional: Restart from the newest message",
		},
		"batch_size": map[string]interface{}{
			"type":        "integer",
			"description": "Optional: Page size, defaults to the configured batch size",
			"minimum":     1,
		},
	}
	required := []string{"account_name", "folder"}
	if withQuery {
		properties["query"] = stringSchema("Text to search for in subjects and bodies")
		required = append(required, "query")
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func fetchPage(ctx context.Context, manager *email.Manager, params map[string]interface{}, query string) (interface{}, error) {
	accountName, err := requiredString(params, "account_name")
	if err != nil {
		return nil, err
	}
	folder, err := requiredString(params, "folder")
	if err != nil {
		return nil, err
	}
	batchSize, err := optionalInt(params, "batch_size")
	if err != nil {
		return nil, err
	}

	emails, meta, err := manager.FolderEmails(ctx, accountName, folder, query, optionalBool(params, "reset"), batchSize)
	if err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []*types.EmailHeaders{}
	}
	return emailPage{Emails: emails, Meta: meta}, nil
}

// SearchEmailsTool pages through the messages of a folder matching a query
type SearchEmailsTool struct {
	manager *email.Manager
}

// NewSearchEmailsTool creates a new search emails tool
func NewSearchEmailsTool(manager *email.Manager) *SearchEmailsTool {
	return &SearchEmailsTool{manager: manager}
}

// Name returns the tool name
func (t *SearchEmailsTool) Name() string {
	return "search_emails"
}

// Description returns the tool description
func (t *SearchEmailsTool) Description() string {
	return "Search a folder on the server and return the next page of matching messages, newest first"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SearchEmailsTool) InputSchema() map[string]interface{} {
	return pageSchema(true)
}

// Execute executes the tool
func (t *SearchEmailsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	query, err := requiredString(params, "query")
	if err != nil {
		return nil, err
	}
	return fetchPage(ctx, t.manager, params, query)
}

// SearchContactsTool suggests contacts seen in fetched mail
type SearchContactsTool struct {
	contacts *contacts.Store
}

// NewSearchContactsTool creates a new search contacts tool
func NewSearchContactsTool(store *contacts.Store) *SearchContactsTool {
	return &SearchContactsTool{contacts: store}
}

// Name returns the tool name
func (t *SearchContactsTool) Name() string {
	return "search_contacts"
}

// Description returns the tool description
func (t *SearchContactsTool) Description() string {
	return "Find people seen in fetched mail by name or address"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SearchContactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": stringSchema("Part of a name or address"),
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: Result limit (default: 20)",
				"minimum":     1,
			},
		},
		"required": []string{"query"},
	}
}

// Execute executes the tool
func (t *SearchContactsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	query, err := requiredString(params, "query")
	if err != nil {
		return nil, err
	}
	limit, err := optionalInt(params, "limit")
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultContactLimit
	}

	found, err := t.contacts.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search contacts: %w", err)
	}
	return found, nil
}
