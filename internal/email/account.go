package email

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brandon/mailsync/internal/cache"
	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/message"
	"github.com/brandon/mailsync/internal/secrets"
	"github.com/brandon/mailsync/pkg/types"
)

// ContactRecorder receives the contacts found in fetched envelopes
type ContactRecorder interface {
	Add(ctx context.Context, contacts []types.Contact) error
}

// SecretStore resolves credentials missing from the settings
type SecretStore interface {
	Get(kind secrets.Kind, host, username string) (string, error)
	Set(kind secrets.Kind, host, username, value string) error
}

// DialFunc opens an unauthenticated IMAP session
type DialFunc func(cfg config.ConnectionConfig, timeout time.Duration, logger *logrus.Entry) (Transport, error)

// Sender delivers one raw message
type Sender interface {
	Send(ctx context.Context, from string, recipients []string, raw []byte) error
}

func dialIMAP(cfg config.ConnectionConfig, timeout time.Duration, logger *logrus.Entry) (Transport, error) {
	return DialIMAP(cfg, timeout, logger)
}

// Account owns the connection pool, SMTP sender and folder registries of one account
type Account struct {
	name     string
	cfg      config.AccountConfig
	system   config.SystemConfig
	cache    *cache.Cache
	contacts ContactRecorder
	pool     *ConnectionPool
	sender   Sender
	logger   *logrus.Entry

	capsMu sync.Mutex
	caps   map[string]bool

	foldersMu    sync.Mutex
	folders      map[string]*Folder
	queryFolders map[string]*Folder
}

// NewAccount builds an account; nothing connects until first use
func NewAccount(cfg config.AccountConfig, system config.SystemConfig, deps Dependencies) (*Account, error) {
	logger := deps.Logger.WithFields(logrus.Fields{
		"account": cfg.Name,
		"host":    cfg.IMAP.Host,
	})

	imapCreds, err := resolveCredentials(cfg.Name, cfg.IMAP, deps, logger)
	if err != nil {
		return nil, err
	}
	smtpCreds, err := resolveCredentials(cfg.Name, cfg.SMTP, deps, logger)
	if err != nil {
		return nil, err
	}

	dial := deps.Dial
	if dial == nil {
		dial = dialIMAP
	}

	acc := &Account{
		name:         cfg.Name,
		cfg:          cfg,
		system:       system,
		cache:        deps.Cache,
		contacts:     deps.Contacts,
		logger:       logger,
		folders:      make(map[string]*Folder),
		queryFolders: make(map[string]*Folder),
	}

	acc.sender = deps.Sender
	if acc.sender == nil {
		acc.sender = NewSMTPClient(cfg.SMTP, smtpCreds, system.Timeout(), logger)
	}

	limiter := rate.NewLimiter(rate.Every(system.ReconnectInterval()), max(system.PoolSize, 1))
	connLogger := logger.WithField("component", "imap")
	acc.pool = NewConnectionPool(system.PoolSize, func() *Connection {
		dialer := func() (Transport, error) {
			return dial(cfg.IMAP, system.Timeout(), connLogger)
		}
		return newConnection(cfg.Name, dialer, imapCreds, system.MaxAttempts, limiter, connLogger)
	}, logger)

	return acc, nil
}

// resolveCredentials fills a password or refresh token missing from settings from the secret store
func resolveCredentials(account string, conn config.ConnectionConfig, deps Dependencies, logger *logrus.Entry) (*credentials, error) {
	creds := &credentials{
		account:      account,
		host:         conn.Host,
		username:     conn.Username,
		password:     conn.Password,
		provider:     conn.OAuthProvider,
		tokens:       deps.Tokens,
		refreshToken: conn.OAuthRefreshToken,
	}

	if deps.Secrets == nil {
		return creds, nil
	}

	var err error
	if creds.usesOAuth() {
		if creds.refreshToken == "" {
			creds.refreshToken, err = deps.Secrets.Get(secrets.KindOAuth, conn.Host, conn.Username)
		}
		creds.onRotate = func(refreshToken string) {
			if err := deps.Secrets.Set(secrets.KindOAuth, conn.Host, conn.Username, refreshToken); err != nil {
				logger.WithError(err).Error("Failed to store rotated refresh token")
			}
		}
	} else if creds.password == "" {
		creds.password, err = deps.Secrets.Get(secrets.KindAccount, conn.Host, conn.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials for %s: %w", conn.Host, err)
	}
	return creds, nil
}

// Name returns the account's display name
func (a *Account) Name() string {
	return a.name
}

// FolderAliases returns the alias to server folder map
func (a *Account) FolderAliases() map[string]string {
	return a.cfg.Folders
}

// Capabilities returns the server capabilities, fetched once per account lifetime
func (a *Account) Capabilities(ctx context.Context) (map[string]bool, error) {
	a.capsMu.Lock()
	defer a.capsMu.Unlock()

	if a.caps != nil {
		return a.caps, nil
	}

	var caps map[string]bool
	err := a.pool.WithConnection(ctx, "", func(conn *Connection) (err error) {
		caps, err = conn.Capabilities(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get capabilities: %w", err)
	}

	a.caps = caps
	a.logger.WithField("capabilities", len(caps)).Debug("Loaded server capabilities")
	return caps, nil
}

// HasCapability reports whether the server advertises capability; lookup failures count as absent
func (a *Account) HasCapability(ctx context.Context, capability string) bool {
	caps, err := a.Capabilities(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to check capability")
		return false
	}
	return caps[capability]
}

// Folder returns the folder for an alias or server name, narrowed by query when given.
// Query folders share header storage with their base folder.
func (a *Account) Folder(alias, query string) *Folder {
	name := a.cfg.FolderName(alias)

	a.foldersMu.Lock()
	defer a.foldersMu.Unlock()

	base, ok := a.folders[name]
	if !ok {
		base = newFolder(a, name, alias, "", a.cache.Folder(a.cfg.Identity(), name))
		a.folders[name] = base
	}
	if query == "" {
		return base
	}

	key := name + "\x00" + query
	folder, ok := a.queryFolders[key]
	if !ok {
		folder = newFolder(a, name, alias, query, base.cache.WithScope(query))
		a.queryFolders[key] = folder
	}
	return folder
}

// ListFolders lists the server's folders
func (a *Account) ListFolders(ctx context.Context) ([]types.Folder, error) {
	var folders []types.Folder
	err := a.pool.WithConnection(ctx, "", func(conn *Connection) (err error) {
		folders, err = conn.ListFolders(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

// EnsureFolderExists creates the folder behind alias if the server lacks it and
// returns its server name
func (a *Account) EnsureFolderExists(ctx context.Context, alias string) (string, error) {
	folder := a.Folder(alias, "")

	exists, err := folder.Exists(ctx)
	if err != nil {
		return "", err
	}
	if exists {
		return folder.name, nil
	}

	a.logger.WithField("folder", folder.name).Info("Creating folder")
	err = a.pool.WithConnection(ctx, "", func(conn *Connection) error {
		return conn.CreateFolder(ctx, folder.name)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", folder.name, err)
	}

	if err := folder.Reload(ctx); err != nil {
		return "", err
	}
	return folder.name, nil
}

// AppendMessage stores a raw message in the folder behind alias
func (a *Account) AppendMessage(ctx context.Context, alias string, raw []byte, flags ...string) error {
	name, err := a.EnsureFolderExists(ctx, alias)
	if err != nil {
		return err
	}

	return a.pool.WithConnection(ctx, "", func(conn *Connection) error {
		return conn.Append(ctx, name, flags, time.Now(), raw)
	})
}

// Send delivers a message over SMTP, filing a copy in the sent folder when the
// provider does not do so itself
func (a *Account) Send(ctx context.Context, msg *message.Outgoing) error {
	if msg.From.Address == "" {
		msg.From = types.Contact{Name: a.name, Address: a.cfg.SMTP.Username}
	}

	raw, err := msg.Build(time.Now())
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	if err := a.sender.Send(ctx, msg.From.Address, msg.Recipients(), raw); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	a.logger.WithField("recipients", len(msg.Recipients())).Info("Sent email")

	if a.cfg.SaveSentCopies {
		if err := a.AppendMessage(ctx, "sent", raw, imap.SeenFlag); err != nil {
			return fmt.Errorf("failed to save sent copy: %w", err)
		}
	}
	return nil
}

// Close logs out of every pooled connection
func (a *Account) Close() {
	a.pool.Close()
}
