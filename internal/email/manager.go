package email

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/cache"
	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/message"
	"github.com/brandon/mailsync/internal/parallel"
	"github.com/brandon/mailsync/pkg/types"
)

// Dependencies are the collaborators shared by every account
type Dependencies struct {
	Cache    *cache.Cache
	Contacts ContactRecorder
	Tokens   TokenSource
	Secrets  SecretStore
	Logger   *logrus.Logger

	// Dial and Sender replace the network transports when set
	Dial   DialFunc
	Sender Sender
}

// AccountFolders is the folder listing of one account
type AccountFolders struct {
	Folders []types.Folder    `json:"folders"`
	Aliases map[string]string `json:"aliases"`
}

// Manager owns the accounts of the current settings
type Manager struct {
	deps   Dependencies
	logger *logrus.Logger

	mu       sync.Mutex
	config   *config.Config
	accounts map[string]*Account
}

// NewManager creates a new email manager; accounts are created on first use
func NewManager(cfg *config.Config, deps Dependencies) *Manager {
	return &Manager{
		deps:     deps,
		logger:   deps.Logger,
		config:   cfg,
		accounts: make(map[string]*Account),
	}
}

// Account returns the named account, creating it on first use
func (m *Manager) Account(name string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, ok := m.accounts[name]; ok {
		return acc, nil
	}

	accCfg, err := m.config.GetAccountByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}

	acc, err := NewAccount(*accCfg, m.config.System, m.deps)
	if err != nil {
		return nil, err
	}
	m.accounts[name] = acc
	return acc, nil
}

// AccountNames returns the configured account names
func (m *Manager) AccountNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.AccountNames()
}

// Reset closes every account and switches to new settings.
// Accounts and their folders are rebuilt on next use.
func (m *Manager) Reset(cfg *config.Config) {
	m.mu.Lock()
	accounts := m.accounts
	m.accounts = make(map[string]*Account)
	m.config = cfg
	m.mu.Unlock()

	for _, acc := range accounts {
		acc.Close()
	}
	m.logger.WithField("accounts", len(cfg.Accounts)).Info("Settings changed, accounts reset")
}

// Close closes all connections
func (m *Manager) Close() {
	m.mu.Lock()
	accounts := m.accounts
	m.accounts = make(map[string]*Account)
	m.mu.Unlock()

	for _, acc := range accounts {
		acc.Close()
	}
}

// AllFolders lists the folders of every account concurrently
func (m *Manager) AllFolders(ctx context.Context) (map[string]AccountFolders, error) {
	names := m.AccountNames()

	listings, err := parallel.Map(names, func(name string) (AccountFolders, error) {
		acc, err := m.Account(name)
		if err != nil {
			return AccountFolders{}, err
		}
		folders, err := acc.ListFolders(ctx)
		if err != nil {
			return AccountFolders{}, err
		}
		return AccountFolders{Folders: folders, Aliases: acc.FolderAliases()}, nil
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string]AccountFolders, len(names))
	for i, name := range names {
		result[name] = listings[i]
	}
	return result, nil
}

func (m *Manager) folder(accountName, alias, query string) (*Folder, error) {
	acc, err := m.Account(accountName)
	if err != nil {
		return nil, err
	}
	return acc.Folder(alias, query), nil
}

// FolderEmails returns the next page of a folder's messages, newest first
func (m *Manager) FolderEmails(ctx context.Context, accountName, alias, query string, reset bool, batchSize int) ([]*types.EmailHeaders, types.FolderMeta, error) {
	folder, err := m.folder(accountName, alias, query)
	if err != nil {
		return nil, types.FolderMeta{}, err
	}

	emails, err := folder.GetEmails(ctx, reset, batchSize)
	if err != nil {
		return nil, types.FolderMeta{}, err
	}
	meta, err := folder.Meta(ctx)
	if err != nil {
		return nil, types.FolderMeta{}, err
	}
	return emails, meta, nil
}

// SyncFolderEmails syncs one folder
func (m *Manager) SyncFolderEmails(ctx context.Context, accountName, alias, query string, opts SyncOptions) (*types.SyncResult, error) {
	folder, err := m.folder(accountName, alias, query)
	if err != nil {
		return nil, err
	}
	return folder.SyncEmails(ctx, opts)
}

// FolderEmailTexts fetches the display text of many messages. Messages are grouped
// by the part holding their text and each distinct part is fetched concurrently.
func (m *Manager) FolderEmailTexts(ctx context.Context, accountName, alias string, uids []uint32) (map[uint32]string, error) {
	folder, err := m.folder(accountName, alias, "")
	if err != nil {
		return nil, err
	}

	meta, err := folder.partMeta(ctx, uids)
	if err != nil {
		return nil, err
	}

	byPart := make(map[string][]uint32)
	for _, uid := range uids {
		headers, ok := meta[uid]
		if !ok {
			continue
		}
		if part := headers.Parts.TextPart(); part != "" {
			byPart[part] = append(byPart[part], uid)
		}
	}

	parts := make([]string, 0, len(byPart))
	for part := range byPart {
		parts = append(parts, part)
	}
	sort.Strings(parts)

	results, err := parallel.Map(parts, func(part string) (map[uint32]string, error) {
		return folder.GetEmailParts(ctx, byPart[part], part)
	})
	if err != nil {
		return nil, err
	}

	texts := make(map[uint32]string, len(uids))
	for _, result := range results {
		for uid, text := range result {
			texts[uid] = text
		}
	}
	return texts, nil
}

// FolderEmailPart fetches one part of one message
func (m *Manager) FolderEmailPart(ctx context.Context, accountName, alias string, uid uint32, part string) (*types.PartContent, error) {
	folder, err := m.folder(accountName, alias, "")
	if err != nil {
		return nil, err
	}
	return folder.GetEmailPart(ctx, uid, part)
}

// Folder actions
const (
	ActionMove   = "move"
	ActionCopy   = "copy"
	ActionDelete = "delete"
	ActionStar   = "star"
	ActionUnstar = "unstar"
)

// FolderAction applies a mutation to messages of a folder. dest is the target
// folder alias of move and copy.
func (m *Manager) FolderAction(ctx context.Context, accountName, alias, action string, uids []uint32, dest string) error {
	if len(uids) == 0 {
		return nil
	}

	folder, err := m.folder(accountName, alias, "")
	if err != nil {
		return err
	}

	if (action == ActionMove || action == ActionCopy) && dest == "" {
		return fmt.Errorf("%s requires a destination folder", action)
	}

	switch action {
	case ActionMove:
		return folder.Move(ctx, uids, dest)
	case ActionCopy:
		return folder.Copy(ctx, uids, dest)
	case ActionDelete:
		return folder.Delete(ctx, uids)
	case ActionStar:
		return folder.Star(ctx, uids)
	case ActionUnstar:
		return folder.Unstar(ctx, uids)
	default:
		return fmt.Errorf("unknown folder action: %s", action)
	}
}

// Send sends a message from an account
func (m *Manager) Send(ctx context.Context, accountName string, msg *message.Outgoing) error {
	acc, err := m.Account(accountName)
	if err != nil {
		return err
	}
	return acc.Send(ctx, msg)
}
