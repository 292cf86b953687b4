package email

import (
	"context"
	"errors"
	"time"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/brandon/mailsync/pkg/types"
)

// Connection wraps one IMAP session, reconnecting and retrying when it breaks.
// A Connection is used by one goroutine at a time.
type Connection struct {
	account     string
	dial        Dialer
	creds       *credentials
	maxAttempts int
	limiter     *rate.Limiter
	logger      *logrus.Entry

	transport Transport
	selected  string
	status    *FolderStatus
}

func newConnection(account string, dial Dialer, creds *credentials, maxAttempts int, limiter *rate.Limiter, logger *logrus.Entry) *Connection {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Connection{
		account:     account,
		dial:        dial,
		creds:       creds,
		maxAttempts: maxAttempts,
		limiter:     limiter,
		logger:      logger,
	}
}

// isPermanent reports errors that no reconnect can fix
func isPermanent(err error) bool {
	var settingsErr *SettingsError
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &settingsErr) ||
		errors.As(err, &retrieveErr) ||
		errors.Is(err, ErrFolderNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// connect establishes, authenticates and re-selects a session if there is none
func (c *Connection) connect(ctx context.Context) error {
	if c.transport != nil {
		return nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	t, err := c.dial()
	if err != nil {
		return err
	}

	if err := c.creds.login(ctx, t); err != nil {
		t.Logout() //nolint:errcheck
		return err
	}

	if c.selected != "" {
		status, err := t.Select(c.selected)
		if err != nil {
			t.Logout() //nolint:errcheck
			return err
		}
		c.status = status
	}

	c.transport = t
	c.logger.WithFields(logrus.Fields{
		"selected": c.selected,
		"duration": time.Since(start),
	}).Debug("Connected to IMAP server")
	return nil
}

// reset drops the current session
func (c *Connection) reset() {
	if c.transport == nil {
		return
	}
	c.transport.Logout() //nolint:errcheck
	c.transport = nil
}

// do runs fn against a live session, reconnecting after transient failures.
// Failing to connect counts as an attempt.
func (c *Connection) do(ctx context.Context, op string, fn func(Transport) error) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.connect(ctx)
		if err == nil {
			err = fn(c.transport)
			if err == nil {
				return nil
			}
			if !isTransient(err) || isPermanent(err) {
				return err
			}
			c.reset()
		} else if isPermanent(err) {
			return err
		}

		lastErr = err
		c.logger.WithError(err).WithFields(logrus.Fields{
			"op":       op,
			"attempt":  attempt,
			"attempts": c.maxAttempts,
		}).Warn("IMAP operation failed, reconnecting")
	}

	return &ConnectionError{
		Account:  c.account,
		Op:       op,
		Attempts: c.maxAttempts,
		Err:      lastErr,
	}
}

// Close logs out of the current session
func (c *Connection) Close() {
	c.reset()
	c.selected = ""
	c.status = nil
}

// Selected returns the selected folder name, or ""
func (c *Connection) Selected() string {
	return c.selected
}

// Status returns the status reported by the last SELECT
func (c *Connection) Status() *FolderStatus {
	return c.status
}

// Capabilities returns the server capabilities
func (c *Connection) Capabilities(ctx context.Context) (map[string]bool, error) {
	var caps map[string]bool
	err := c.do(ctx, "capability", func(t Transport) (err error) {
		caps, err = t.Capabilities()
		return err
	})
	return caps, err
}

// ListFolders lists server folders
func (c *Connection) ListFolders(ctx context.Context) ([]types.Folder, error) {
	var folders []types.Folder
	err := c.do(ctx, "list", func(t Transport) (err error) {
		folders, err = t.ListFolders()
		return err
	})
	return folders, err
}

// FolderStatus returns STATUS for a folder
func (c *Connection) FolderStatus(ctx context.Context, name string) (*FolderStatus, error) {
	var status *FolderStatus
	err := c.do(ctx, "status", func(t Transport) (err error) {
		status, err = t.FolderStatus(name)
		return err
	})
	return status, err
}

// CreateFolder creates a folder
func (c *Connection) CreateFolder(ctx context.Context, name string) error {
	return c.do(ctx, "create", func(t Transport) error {
		return t.CreateFolder(name)
	})
}

// Select selects a folder; it is re-selected after any reconnect
func (c *Connection) Select(ctx context.Context, name string) (*FolderStatus, error) {
	var status *FolderStatus
	err := c.do(ctx, "select", func(t Transport) (err error) {
		status, err = t.Select(name)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.selected = name
	c.status = status
	return status, nil
}

// Unselect leaves the selected folder with a single attempt.
// A broken session is dropped rather than retried.
func (c *Connection) Unselect() error {
	if c.selected == "" {
		return nil
	}
	c.selected = ""
	c.status = nil

	if c.transport == nil {
		return nil
	}
	err := c.transport.Unselect()
	if err != nil {
		c.reset()
	}
	return err
}

// Search searches the selected folder
func (c *Connection) Search(ctx context.Context, query SearchQuery) ([]uint32, error) {
	var uids []uint32
	err := c.do(ctx, "search", func(t Transport) (err error) {
		uids, err = t.Search(query)
		return err
	})
	return uids, err
}

// Fetch fetches items for UIDs in the selected folder
func (c *Connection) Fetch(ctx context.Context, uids []uint32, items []imap.FetchItem) ([]*FetchedMessage, error) {
	var messages []*FetchedMessage
	err := c.do(ctx, "fetch", func(t Transport) (err error) {
		messages, err = t.Fetch(uids, items)
		return err
	})
	return messages, err
}

// AddFlags adds flags to UIDs in the selected folder
func (c *Connection) AddFlags(ctx context.Context, uids []uint32, flags ...string) error {
	return c.do(ctx, "store", func(t Transport) error {
		return t.AddFlags(uids, flags)
	})
}

// RemoveFlags removes flags from UIDs in the selected folder
func (c *Connection) RemoveFlags(ctx context.Context, uids []uint32, flags ...string) error {
	return c.do(ctx, "store", func(t Transport) error {
		return t.RemoveFlags(uids, flags)
	})
}

// Copy copies UIDs to another folder
func (c *Connection) Copy(ctx context.Context, uids []uint32, folder string) error {
	return c.do(ctx, "copy", func(t Transport) error {
		return t.Copy(uids, folder)
	})
}

// Move moves UIDs to another folder
func (c *Connection) Move(ctx context.Context, uids []uint32, folder string) error {
	return c.do(ctx, "move", func(t Transport) error {
		return t.Move(uids, folder)
	})
}

// Expunge expunges the selected folder
func (c *Connection) Expunge(ctx context.Context) error {
	return c.do(ctx, "expunge", func(t Transport) error {
		return t.Expunge()
	})
}

// Append stores a raw message in a folder
func (c *Connection) Append(ctx context.Context, folder string, flags []string, date time.Time, raw []byte) error {
	return c.do(ctx, "append", func(t Transport) error {
		return t.Append(folder, flags, date, raw)
	})
}
