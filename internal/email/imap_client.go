package email

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/commands"
	"github.com/emersion/go-imap/responses"
	"github.com/emersion/go-sasl"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/pkg/types"
)

// IMAPClient is the go-imap backed Transport
type IMAPClient struct {
	client *client.Client
	logger *logrus.Entry
}

// DialIMAP connects to the server described by cfg without authenticating
func DialIMAP(cfg config.ConnectionConfig, timeout time.Duration, logger *logrus.Entry) (*IMAPClient, error) {
	dialer := &net.Dialer{Timeout: timeout}
	tlsConfig := &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	var (
		cl  *client.Client
		err error
	)
	// Connect to server
	if cfg.SSL {
		cl, err = client.DialWithDialerTLS(dialer, cfg.Address(), tlsConfig)
	} else {
		cl, err = client.DialWithDialer(dialer, cfg.Address())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	cl.Timeout = timeout
	cl.ErrorLog = logger

	if cfg.TLS && !cfg.SSL {
		if err := cl.StartTLS(tlsConfig); err != nil {
			cl.Logout() //nolint:errcheck
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	return &IMAPClient{client: cl, logger: logger}, nil
}

// Login authenticates with a password
func (c *IMAPClient) Login(username, password string) error {
	return c.client.Login(username, password)
}

// Authenticate authenticates with a SASL mechanism
func (c *IMAPClient) Authenticate(auth sasl.Client) error {
	return c.client.Authenticate(auth)
}

// Capabilities returns the capabilities advertised in the current state
func (c *IMAPClient) Capabilities() (map[string]bool, error) {
	return c.client.Capability()
}

// Logout closes the session
func (c *IMAPClient) Logout() error {
	err := c.client.Logout()
	if errors.Is(err, client.ErrAlreadyLoggedOut) {
		return nil
	}
	return err
}

// ListFolders lists all mailboxes/folders
func (c *IMAPClient) ListFolders() ([]types.Folder, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.List("", "*", mailboxes)
	}()

	var folders []types.Folder
	for m := range mailboxes {
		folders = append(folders, types.Folder{
			Name:       m.Name,
			Delimiter:  m.Delimiter,
			Attributes: m.Attributes,
		})
	}

	if err := <-done; err != nil {
		return nil, err
	}
	return folders, nil
}

// FolderStatus returns STATUS for a folder without selecting it
func (c *IMAPClient) FolderStatus(name string) (*FolderStatus, error) {
	status, err := c.client.Status(name, []imap.StatusItem{
		imap.StatusMessages, imap.StatusUnseen, imap.StatusUidValidity,
	})
	if err != nil {
		if isMissingFolder(err) {
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, name)
		}
		return nil, err
	}
	return mailboxStatus(status), nil
}

// CreateFolder creates a mailbox
func (c *IMAPClient) CreateFolder(name string) error {
	return c.client.Create(name)
}

// Select selects a folder read-write
func (c *IMAPClient) Select(name string) (*FolderStatus, error) {
	status, err := c.client.Select(name, false)
	if err != nil {
		if isMissingFolder(err) {
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, name)
		}
		return nil, err
	}
	return mailboxStatus(status), nil
}

// Unselect leaves the selected folder without expunging. Servers lacking UNSELECT
// keep the folder selected until the next SELECT.
func (c *IMAPClient) Unselect() error {
	err := c.client.Unselect()
	if errors.Is(err, client.ErrExtensionUnsupported) || errors.Is(err, client.ErrNoMailboxSelected) {
		return nil
	}
	return err
}

// Search returns matching UIDs in the selected folder
func (c *IMAPClient) Search(query SearchQuery) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	if !query.Since.IsZero() {
		criteria.Since = query.Since
	}

	if query.Text != "" && query.GmailRaw {
		return c.gmailSearch(criteria, query.Text)
	}

	if query.Text != "" {
		subject := imap.NewSearchCriteria()
		subject.Header.Add("Subject", query.Text)
		body := imap.NewSearchCriteria()
		body.Body = []string{query.Text}
		criteria.Or = [][2]*imap.SearchCriteria{{subject, body}}
	}

	return c.client.UidSearch(criteria)
}

// gmailSearch runs UID SEARCH with the X-GM-RAW extension
func (c *IMAPClient) gmailSearch(criteria *imap.SearchCriteria, text string) ([]uint32, error) {
	var args []interface{}
	if !criteria.Since.IsZero() {
		args = criteria.Format()
	}
	args = append(args, imap.RawString("X-GM-RAW"), text)

	cmd := &commands.Uid{Cmd: &imap.Command{Name: "SEARCH", Arguments: args}}
	res := new(responses.Search)

	status, err := c.client.Execute(cmd, res)
	if err != nil {
		return nil, err
	}
	if err := status.Err(); err != nil {
		return nil, err
	}
	return res.Ids, nil
}

// Fetch fetches items for the given UIDs in the selected folder
func (c *IMAPClient) Fetch(uids []uint32, items []imap.FetchItem) ([]*FetchedMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	sections := make(map[imap.FetchItem]*imap.BodySectionName)
	for _, item := range items {
		if section, err := imap.ParseBodySectionName(item); err == nil {
			sections[item] = section
		}
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(uidSet(uids), items, messages)
	}()

	var fetched []*FetchedMessage
	for msg := range messages {
		fm := &FetchedMessage{
			UID:           msg.Uid,
			SeqNum:        msg.SeqNum,
			Flags:         msg.Flags,
			Size:          msg.Size,
			Envelope:      msg.Envelope,
			BodyStructure: msg.BodyStructure,
			Sections:      make(map[imap.FetchItem][]byte, len(sections)),
		}
		for item, section := range sections {
			literal := msg.GetBody(section)
			if literal == nil {
				continue
			}
			data, err := io.ReadAll(literal)
			if err != nil {
				c.logger.WithError(err).WithField("uid", msg.Uid).Debug("Error reading literal")
				continue
			}
			fm.Sections[item] = data
		}
		fetched = append(fetched, fm)
	}

	if err := <-done; err != nil {
		return nil, err
	}
	return fetched, nil
}

// AddFlags adds flags to the given UIDs
func (c *IMAPClient) AddFlags(uids []uint32, flags []string) error {
	return c.storeFlags(imap.AddFlags, uids, flags)
}

// RemoveFlags removes flags from the given UIDs
func (c *IMAPClient) RemoveFlags(uids []uint32, flags []string) error {
	return c.storeFlags(imap.RemoveFlags, uids, flags)
}

func (c *IMAPClient) storeFlags(op imap.FlagsOp, uids []uint32, flags []string) error {
	values := make([]interface{}, len(flags))
	for i, flag := range flags {
		values[i] = flag
	}
	return c.client.UidStore(uidSet(uids), imap.FormatFlagsOp(op, true), values, nil)
}

// Copy copies UIDs to another folder
func (c *IMAPClient) Copy(uids []uint32, folder string) error {
	return c.client.UidCopy(uidSet(uids), folder)
}

// Move moves UIDs to another folder with UID MOVE
func (c *IMAPClient) Move(uids []uint32, folder string) error {
	return c.client.UidMove(uidSet(uids), folder)
}

// Expunge removes \Deleted messages from the selected folder
func (c *IMAPClient) Expunge() error {
	return c.client.Expunge(nil)
}

// Append stores a raw message in a folder
func (c *IMAPClient) Append(folder string, flags []string, date time.Time, raw []byte) error {
	return c.client.Append(folder, flags, date, bytes.NewBuffer(raw))
}

func uidSet(uids []uint32) *imap.SeqSet {
	set := new(imap.SeqSet)
	set.AddNum(uids...)
	return set
}

func mailboxStatus(status *imap.MailboxStatus) *FolderStatus {
	return &FolderStatus{
		UIDValidity: strconv.FormatUint(uint64(status.UidValidity), 10),
		Messages:    status.Messages,
		Unseen:      status.Unseen,
	}
}

func isMissingFolder(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"nonexistent", "doesn't exist", "does not exist", "no such mailbox", "unknown mailbox", "not found"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
