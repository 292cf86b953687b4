package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-sasl"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/internal/cache"
	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/pkg/types"
)

type fakeMessage struct {
	subject string
	flags   []string
	html    bool
	parts   map[string]string
}

type fakeMailbox struct {
	validity string
	nextUID  uint32
	messages map[uint32]*fakeMessage
	// hidden UIDs exist but never match a search
	hidden map[uint32]bool
}

// fakeServer is an in-memory IMAP server shared by every transport dialed from it
type fakeServer struct {
	mu sync.Mutex

	password string
	caps     map[string]bool
	folders  map[string]*fakeMailbox

	failures    map[string]int
	dropParts   map[uint32]int
	rejectAuth  bool
	unselectErr error

	dials       int
	selects     []string
	authStarts  []string
	partFetches [][]uint32
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		password:  "secret",
		caps:      map[string]bool{"IMAP4rev1": true},
		folders:   map[string]*fakeMailbox{},
		failures:  map[string]int{},
		dropParts: map[uint32]int{},
	}
}

func (s *fakeServer) addFolder(name, validity string, uids ...uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	box := &fakeMailbox{validity: validity, messages: map[uint32]*fakeMessage{}, hidden: map[uint32]bool{}}
	for _, uid := range uids {
		box.messages[uid] = newFakeMessage(fmt.Sprintf("Message %d", uid))
		box.nextUID = max(box.nextUID, uid)
	}
	s.folders[name] = box
}

func newFakeMessage(subject string) *fakeMessage {
	return &fakeMessage{
		subject: subject,
		parts:   map[string]string{"1": "Body of " + subject},
	}
}

func (s *fakeServer) addMessage(folder string, uid uint32, msg *fakeMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	box := s.folders[folder]
	box.messages[uid] = msg
	box.nextUID = max(box.nextUID, uid)
}

func (s *fakeServer) removeMessages(folder string, uids ...uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range uids {
		delete(s.folders[folder].messages, uid)
	}
}

func (s *fakeServer) failNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
}

func (s *fakeServer) flags(folder string, uid uint32) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.folders[folder].messages[uid].flags...)
}

func (s *fakeServer) uids(folder string) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedUIDs(s.folders[folder].messages)
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *fakeServer) dial() (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if err := s.failLocked("dial"); err != nil {
		return nil, err
	}
	return &fakeTransport{server: s}, nil
}

// failLocked consumes one injected failure for op
func (s *fakeServer) failLocked(op string) error {
	if s.failures[op] > 0 {
		s.failures[op]--
		return io.EOF
	}
	return nil
}

func sortedUIDs(messages map[uint32]*fakeMessage) []uint32 {
	uids := make([]uint32, 0, len(messages))
	for uid := range messages {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

type fakeTransport struct {
	server   *fakeServer
	selected string
	loggedIn bool
	closed   bool
}

func (t *fakeTransport) lock(op string) (func(), error) {
	t.server.mu.Lock()
	unlock := t.server.mu.Unlock
	if t.closed {
		unlock()
		return nil, errors.New("imap: connection closed")
	}
	if err := t.server.failLocked(op); err != nil {
		t.closed = true
		unlock()
		return nil, err
	}
	return unlock, nil
}

func (t *fakeTransport) mailbox() (*fakeMailbox, error) {
	box, ok := t.server.folders[t.selected]
	if t.selected == "" || !ok {
		return nil, errors.New("No mailbox selected")
	}
	return box, nil
}

func (t *fakeTransport) Login(username, password string) error {
	unlock, err := t.lock("login")
	if err != nil {
		return err
	}
	defer unlock()
	if password != t.server.password {
		return errors.New("Invalid credentials")
	}
	t.loggedIn = true
	return nil
}

func (t *fakeTransport) Authenticate(auth sasl.Client) error {
	unlock, err := t.lock("login")
	if err != nil {
		return err
	}
	defer unlock()

	mech, ir, err := auth.Start()
	if err != nil {
		return err
	}
	t.server.authStarts = append(t.server.authStarts, mech+" "+string(ir))
	if t.server.rejectAuth {
		return errors.New("AUTHENTICATE failed")
	}
	t.loggedIn = true
	return nil
}

func (t *fakeTransport) Capabilities() (map[string]bool, error) {
	unlock, err := t.lock("capability")
	if err != nil {
		return nil, err
	}
	defer unlock()

	caps := make(map[string]bool, len(t.server.caps))
	for name, ok := range t.server.caps {
		caps[name] = ok
	}
	return caps, nil
}

func (t *fakeTransport) Logout() error {
	t.server.mu.Lock()
	defer t.server.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) ListFolders() ([]types.Folder, error) {
	unlock, err := t.lock("list")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var folders []types.Folder
	for name := range t.server.folders {
		folders = append(folders, types.Folder{Name: name, Delimiter: "/"})
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

func (t *fakeTransport) status(name string) (*FolderStatus, error) {
	box, ok := t.server.folders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, name)
	}
	return &FolderStatus{UIDValidity: box.validity, Messages: uint32(len(box.messages))}, nil
}

func (t *fakeTransport) FolderStatus(name string) (*FolderStatus, error) {
	unlock, err := t.lock("status")
	if err != nil {
		return nil, err
	}
	defer unlock()
	return t.status(name)
}

func (t *fakeTransport) CreateFolder(name string) error {
	unlock, err := t.lock("create")
	if err != nil {
		return err
	}
	defer unlock()
	t.server.folders[name] = &fakeMailbox{validity: "1", messages: map[uint32]*fakeMessage{}, hidden: map[uint32]bool{}}
	return nil
}

func (t *fakeTransport) Select(name string) (*FolderStatus, error) {
	unlock, err := t.lock("select")
	if err != nil {
		return nil, err
	}
	defer unlock()

	status, err := t.status(name)
	if err != nil {
		return nil, err
	}
	t.selected = name
	t.server.selects = append(t.server.selects, name)
	return status, nil
}

func (t *fakeTransport) Unselect() error {
	unlock, err := t.lock("unselect")
	if err != nil {
		return err
	}
	defer unlock()
	t.selected = ""
	return t.server.unselectErr
}

func (t *fakeTransport) Search(query SearchQuery) ([]uint32, error) {
	unlock, err := t.lock("search")
	if err != nil {
		return nil, err
	}
	defer unlock()

	box, err := t.mailbox()
	if err != nil {
		return nil, err
	}
	var uids []uint32
	for _, uid := range sortedUIDs(box.messages) {
		if box.hidden[uid] {
			continue
		}
		msg := box.messages[uid]
		if query.Text != "" && !strings.Contains(strings.ToLower(msg.subject), strings.ToLower(query.Text)) {
			continue
		}
		uids = append(uids, uid)
	}
	return uids, nil
}

func (m *fakeMessage) bodyStructure() *imap.BodyStructure {
	plain := &imap.BodyStructure{
		MIMEType:    "text",
		MIMESubType: "plain",
		Params:      map[string]string{"charset": "utf-8"},
		Encoding:    "7bit",
		Size:        uint32(len(m.parts["1"])),
	}
	if !m.html {
		return plain
	}
	return &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "alternative",
		Parts: []*imap.BodyStructure{
			plain,
			{
				MIMEType:    "text",
				MIMESubType: "html",
				Params:      map[string]string{"charset": "utf-8"},
				Encoding:    "7bit",
				Size:        uint32(len(m.parts["2"])),
			},
		},
	}
}

func (t *fakeTransport) Fetch(uids []uint32, items []imap.FetchItem) ([]*FetchedMessage, error) {
	unlock, err := t.lock("fetch")
	if err != nil {
		return nil, err
	}
	defer unlock()

	box, err := t.mailbox()
	if err != nil {
		return nil, err
	}

	requested := append([]uint32(nil), uids...)
	sort.Slice(requested, func(i, j int) bool { return requested[i] < requested[j] })

	var messages []*FetchedMessage
	recorded := false
	for i, uid := range requested {
		msg, ok := box.messages[uid]
		if !ok {
			continue
		}
		fetched := &FetchedMessage{UID: uid, SeqNum: uint32(i + 1), Sections: map[imap.FetchItem][]byte{}}

		for _, item := range items {
			name := string(item)
			switch {
			case item == imap.FetchFlags:
				fetched.Flags = append([]string(nil), msg.flags...)
			case item == imap.FetchEnvelope:
				fetched.Envelope = &imap.Envelope{
					Date:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
					Subject:   msg.subject,
					From:      []*imap.Address{{PersonalName: "Alice Example", MailboxName: "alice", HostName: "example.com"}},
					To:        []*imap.Address{{PersonalName: "Me", MailboxName: "me", HostName: "example.com"}},
					MessageId: fmt.Sprintf("<%d@example.com>", uid),
				}
			case item == imap.FetchRFC822Size:
				fetched.Size = uint32(len(msg.parts["1"]))
			case item == imap.FetchBodyStructure:
				fetched.BodyStructure = msg.bodyStructure()
			case item == excerptItem:
				fetched.Sections[item] = []byte(msg.parts["1"])
			case item == headerFieldsItem:
				fetched.Sections[item] = []byte("References: <parent@example.com>\r\n\r\n")
			case strings.HasPrefix(name, "BODY["):
				if !recorded {
					t.server.partFetches = append(t.server.partFetches, requested)
					recorded = true
				}
				if t.server.dropParts[uid] > 0 {
					t.server.dropParts[uid]--
					continue
				}
				part := strings.TrimSuffix(strings.TrimPrefix(name, "BODY["), "]")
				fetched.Sections[item] = []byte(msg.parts[part])
				if !containsFlag(msg.flags, imap.SeenFlag) {
					msg.flags = append(msg.flags, imap.SeenFlag)
				}
			}
		}
		messages = append(messages, fetched)
	}
	return messages, nil
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

func (t *fakeTransport) storeFlags(uids []uint32, flags []string, add bool) error {
	box, err := t.mailbox()
	if err != nil {
		return err
	}
	for _, uid := range uids {
		msg, ok := box.messages[uid]
		if !ok {
			continue
		}
		for _, flag := range flags {
			has := containsFlag(msg.flags, flag)
			switch {
			case add && !has:
				msg.flags = append(msg.flags, flag)
			case !add && has:
				kept := msg.flags[:0]
				for _, f := range msg.flags {
					if f != flag {
						kept = append(kept, f)
					}
				}
				msg.flags = kept
			}
		}
	}
	return nil
}

func (t *fakeTransport) AddFlags(uids []uint32, flags []string) error {
	unlock, err := t.lock("store")
	if err != nil {
		return err
	}
	defer unlock()
	return t.storeFlags(uids, flags, true)
}

func (t *fakeTransport) RemoveFlags(uids []uint32, flags []string) error {
	unlock, err := t.lock("store")
	if err != nil {
		return err
	}
	defer unlock()
	return t.storeFlags(uids, flags, false)
}

func (t *fakeTransport) copyLocked(uids []uint32, folder string) error {
	box, err := t.mailbox()
	if err != nil {
		return err
	}
	dest, ok := t.server.folders[folder]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFolderNotFound, folder)
	}
	for _, uid := range uids {
		msg, ok := box.messages[uid]
		if !ok {
			continue
		}
		dest.nextUID++
		clone := *msg
		clone.flags = append([]string(nil), msg.flags...)
		dest.messages[dest.nextUID] = &clone
	}
	return nil
}

func (t *fakeTransport) Copy(uids []uint32, folder string) error {
	unlock, err := t.lock("copy")
	if err != nil {
		return err
	}
	defer unlock()
	return t.copyLocked(uids, folder)
}

func (t *fakeTransport) Move(uids []uint32, folder string) error {
	unlock, err := t.lock("move")
	if err != nil {
		return err
	}
	defer unlock()

	if err := t.copyLocked(uids, folder); err != nil {
		return err
	}
	box, _ := t.mailbox()
	for _, uid := range uids {
		delete(box.messages, uid)
	}
	return nil
}

func (t *fakeTransport) Expunge() error {
	unlock, err := t.lock("expunge")
	if err != nil {
		return err
	}
	defer unlock()

	box, err := t.mailbox()
	if err != nil {
		return err
	}
	for uid, msg := range box.messages {
		if containsFlag(msg.flags, imap.DeletedFlag) {
			delete(box.messages, uid)
		}
	}
	return nil
}

func (t *fakeTransport) Append(folder string, flags []string, date time.Time, raw []byte) error {
	unlock, err := t.lock("append")
	if err != nil {
		return err
	}
	defer unlock()

	box, ok := t.server.folders[folder]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFolderNotFound, folder)
	}
	box.nextUID++
	box.messages[box.nextUID] = &fakeMessage{
		subject: "appended",
		flags:   append([]string(nil), flags...),
		parts:   map[string]string{"1": string(raw)},
	}
	return nil
}

// fakeSender records sent messages
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	from       string
	recipients []string
	raw        []byte
}

func (s *fakeSender) Send(ctx context.Context, from string, recipients []string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{from: from, recipients: recipients, raw: raw})
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testAccountConfig(name string) config.AccountConfig {
	return config.AccountConfig{
		Name: name,
		IMAP: config.ConnectionConfig{
			Host:     "imap.example.com",
			Port:     993,
			Username: name + "@example.com",
			Password: "secret",
			SSL:      true,
		},
		SMTP: config.ConnectionConfig{
			Host:     "smtp.example.com",
			Port:     465,
			Username: name + "@example.com",
			Password: "secret",
			SSL:      true,
		},
		Folders: map[string]string{
			"inbox":   "INBOX",
			"archive": "Archive",
			"sent":    "Sent",
		},
	}
}

func testSystemConfig() config.SystemConfig {
	return config.SystemConfig{
		BatchSize:      5,
		InitialBatches: 1,
		PoolSize:       2,
		MaxAttempts:    3,
		TimeoutSeconds: 5,
		PartAttempts:   3,
	}
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.NewCache(cache.MemoryPath, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testDependencies(t *testing.T, srv *fakeServer) Dependencies {
	return Dependencies{
		Cache:  newTestCache(t),
		Logger: testLogger(),
		Dial: func(cfg config.ConnectionConfig, timeout time.Duration, logger *logrus.Entry) (Transport, error) {
			return srv.dial()
		},
		Sender: &fakeSender{},
	}
}

type accountOption func(*config.AccountConfig, *config.SystemConfig, *Dependencies)

func newTestAccount(t *testing.T, srv *fakeServer, opts ...accountOption) *Account {
	t.Helper()

	accCfg := testAccountConfig("work")
	system := testSystemConfig()
	deps := testDependencies(t, srv)
	for _, opt := range opts {
		opt(&accCfg, &system, &deps)
	}

	acc, err := NewAccount(accCfg, system, deps)
	require.NoError(t, err)
	t.Cleanup(acc.Close)
	return acc
}

func uidsOf(emails []*types.EmailHeaders) []uint32 {
	uids := make([]uint32, len(emails))
	for i, email := range emails {
		uids[i] = email.UID
	}
	return uids
}

func uidRange(from, to uint32) []uint32 {
	var uids []uint32
	for uid := from; uid <= to; uid++ {
		uids = append(uids, uid)
	}
	return uids
}
