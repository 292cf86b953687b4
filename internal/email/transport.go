package email

import (
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-sasl"

	"github.com/brandon/mailsync/pkg/types"
)

// FolderStatus is the subset of STATUS the sync algorithm needs
type FolderStatus struct {
	UIDValidity string
	Messages    uint32
	Unseen      uint32
}

// SearchQuery selects UIDs in the selected folder. A zero Since means no date bound;
// an empty Text matches everything.
type SearchQuery struct {
	Since    time.Time
	Text     string
	GmailRaw bool
}

// FetchedMessage is one FETCH response. Sections holds the bytes returned for each
// requested body section item, keyed by the item as requested.
type FetchedMessage struct {
	UID           uint32
	SeqNum        uint32
	Flags         []string
	Size          uint32
	Envelope      *imap.Envelope
	BodyStructure *imap.BodyStructure
	Sections      map[imap.FetchItem][]byte
}

// Transport is one authenticated IMAP session
type Transport interface {
	Login(username, password string) error
	Authenticate(auth sasl.Client) error
	Capabilities() (map[string]bool, error)
	Logout() error

	ListFolders() ([]types.Folder, error)
	FolderStatus(name string) (*FolderStatus, error)
	CreateFolder(name string) error
	Select(name string) (*FolderStatus, error)
	Unselect() error

	Search(query SearchQuery) ([]uint32, error)
	Fetch(uids []uint32, items []imap.FetchItem) ([]*FetchedMessage, error)
	AddFlags(uids []uint32, flags []string) error
	RemoveFlags(uids []uint32, flags []string) error
	Copy(uids []uint32, folder string) error
	Move(uids []uint32, folder string) error
	Expunge() error
	Append(folder string, flags []string, date time.Time, raw []byte) error
}

// Dialer opens a new unauthenticated Transport
type Dialer func() (Transport, error)
