package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/cache"
	"github.com/brandon/mailsync/internal/message"
	"github.com/brandon/mailsync/pkg/types"
)

const (
	excerptItem      imap.FetchItem = "BODY.PEEK[1]<0.500>"
	headerFieldsItem imap.FetchItem = "BODY.PEEK[HEADER.FIELDS (REFERENCES CONTENT-TRANSFER-ENCODING)]"
)

var headerItems = []imap.FetchItem{
	imap.FetchUid,
	imap.FetchFlags,
	imap.FetchEnvelope,
	imap.FetchRFC822Size,
	imap.FetchBodyStructure,
	excerptItem,
	headerFieldsItem,
}

type existence int

const (
	existenceUnknown existence = iota
	existenceYes
	existenceNo
)

// SyncOptions tunes a sync. ExpectedUIDCount enables the missing UID fixup;
// CheckUnreadUIDs are UIDs the caller believes unread.
type SyncOptions struct {
	ExpectedUIDCount int
	CheckUnreadUIDs  []uint32
}

// Folder tracks one server folder, optionally narrowed by a search query.
// Methods ending in Locked expect mu to be held.
type Folder struct {
	account *Account
	name    string
	alias   string
	query   string
	cache   *cache.FolderCache
	logger  *logrus.Entry

	mu       sync.Mutex
	loaded   bool
	exists   existence
	validity string
	uids     map[uint32]struct{}
	seen     map[uint32]struct{}
}

func newFolder(account *Account, name, alias, query string, folderCache *cache.FolderCache) *Folder {
	logger := account.logger.WithField("folder", name)
	if query != "" {
		logger = logger.WithField("query", query)
	}
	return &Folder{
		account: account,
		name:    name,
		alias:   alias,
		query:   query,
		cache:   folderCache,
		logger:  logger,
		uids:    map[uint32]struct{}{},
		seen:    map[uint32]struct{}{},
	}
}

// Name returns the server folder name
func (f *Folder) Name() string {
	return f.name
}

// Exists reports whether the folder exists on the server, checking if not yet known
func (f *Folder) Exists(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.loadLocked(ctx); err != nil {
		return false, err
	}
	return f.exists == existenceYes, nil
}

// Reload forgets the UID snapshot and existence state and loads them again
func (f *Folder) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loaded = false
	f.exists = existenceUnknown
	return f.loadLocked(ctx)
}

// loadLocked resolves existence and the UID snapshot, using the cached snapshot
// when its UID validity still matches the server
func (f *Folder) loadLocked(ctx context.Context) error {
	if f.loaded {
		return nil
	}

	var status *FolderStatus
	err := f.account.pool.WithConnection(ctx, "", func(conn *Connection) (err error) {
		status, err = conn.FolderStatus(ctx, f.name)
		return err
	})
	if errors.Is(err, ErrFolderNotFound) {
		f.logger.Warn("Folder does not exist on the server")
		f.exists = existenceNo
		f.uids = map[uint32]struct{}{}
		f.validity = ""
		f.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get folder status: %w", err)
	}
	f.exists = existenceYes

	valid, err := f.checkValidity(ctx, status.UIDValidity)
	if err != nil {
		return err
	}

	if valid {
		cached, ok, err := f.cache.GetUIDs(ctx)
		if err != nil {
			return err
		}
		if ok {
			f.uids = toSet(cached)
			f.validity = status.UIDValidity
			f.loaded = true
			f.logger.WithField("count", len(cached)).Debug("Loaded UIDs from cache")
			return nil
		}
	}

	query := f.searchQuery(ctx)
	var uids []uint32
	err = f.account.pool.WithConnection(ctx, f.name, func(conn *Connection) (err error) {
		uids, err = conn.Search(ctx, query)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to search folder: %w", err)
	}
	if err := f.cache.SetUIDs(ctx, uids); err != nil {
		return err
	}

	f.uids = toSet(uids)
	f.validity = status.UIDValidity
	f.loaded = true
	f.logger.WithField("count", len(uids)).Info("Fetched folder UIDs")
	return nil
}

// checkValidity compares the server UID validity with the cached token. On a
// mismatch every cached entry of the folder is purged before the new token is stored.
func (f *Folder) checkValidity(ctx context.Context, serverValidity string) (bool, error) {
	cachedValidity, err := f.cache.GetUIDValidity(ctx)
	if err != nil {
		return false, err
	}
	if cachedValidity == serverValidity {
		return true, nil
	}

	if cachedValidity != "" {
		f.logger.WithFields(logrus.Fields{
			"cached": cachedValidity,
			"server": serverValidity,
		}).Warn("UID validity changed, purging folder cache")
	}
	if err := f.cache.Bust(ctx); err != nil {
		return false, err
	}
	if err := f.cache.SetUIDValidity(ctx, serverValidity); err != nil {
		return false, err
	}
	return false, nil
}

// searchQuery must not be called while holding a pooled connection
func (f *Folder) searchQuery(ctx context.Context) SearchQuery {
	query := SearchQuery{Text: f.query}
	if days := f.account.system.SyncDays; days > 0 {
		query.Since = time.Now().AddDate(0, 0, -days)
	}
	if f.query != "" {
		query.GmailRaw = f.account.HasCapability(ctx, "X-GM-EXT-1")
	}
	return query
}

// SyncEmails reconciles the UID snapshot with the server and returns what changed
func (f *Folder) SyncEmails(ctx context.Context, opts SyncOptions) (*types.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	if err := f.loadLocked(ctx); err != nil {
		return nil, err
	}

	if f.exists != existenceYes {
		f.loaded = false
		if err := f.loadLocked(ctx); err != nil {
			return nil, err
		}
		if f.exists != existenceYes {
			return &types.SyncResult{Meta: f.metaLocked()}, nil
		}
	}

	query := f.searchQuery(ctx)
	var (
		status *FolderStatus
		uids   []uint32
	)
	err := f.account.pool.WithConnection(ctx, f.name, func(conn *Connection) (err error) {
		uids, err = conn.Search(ctx, query)
		status = conn.Status()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search folder: %w", err)
	}
	if status == nil {
		return nil, fmt.Errorf("no status for selected folder %s", f.name)
	}

	cacheValid, err := f.checkValidity(ctx, status.UIDValidity)
	if err != nil {
		return nil, err
	}
	valid := cacheValid && f.validity == status.UIDValidity

	server := toSet(uids)
	var newUIDs, deleted []uint32

	if valid {
		for uid := range server {
			if _, ok := f.uids[uid]; !ok {
				newUIDs = append(newUIDs, uid)
			}
		}
		for uid := range f.uids {
			if _, ok := server[uid]; !ok {
				deleted = append(deleted, uid)
			}
		}
	} else {
		// Known UIDs are meaningless now; resync only the newest batch
		for uid := range f.uids {
			deleted = append(deleted, uid)
		}
		newUIDs = newestUIDs(uids, f.account.system.BatchSize)
		f.seen = map[uint32]struct{}{}
	}

	f.validity = status.UIDValidity
	f.uids = server
	if err := f.cache.SetUIDs(ctx, uids); err != nil {
		return nil, err
	}

	if len(deleted) > 0 {
		if err := f.cache.BatchDeleteHeaders(ctx, deleted); err != nil {
			return nil, err
		}
		for _, uid := range deleted {
			delete(f.seen, uid)
		}
	}

	if opts.ExpectedUIDCount > 0 && len(newUIDs) < opts.ExpectedUIDCount {
		newUIDs = FixMissingUIDs(opts.ExpectedUIDCount, newUIDs)
	}

	newEmails, err := f.fetchHeadersLocked(ctx, newUIDs)
	if err != nil {
		return nil, err
	}
	for _, email := range newEmails {
		f.seen[email.UID] = struct{}{}
	}

	var read []uint32
	if len(opts.CheckUnreadUIDs) > 0 {
		read, err = f.checkReadLocked(ctx, opts.CheckUnreadUIDs)
		if err != nil {
			return nil, err
		}
	}

	slices.Sort(deleted)
	f.logger.WithFields(logrus.Fields{
		"new":      len(newEmails),
		"deleted":  len(deleted),
		"read":     len(read),
		"duration": time.Since(start),
	}).Info("Synced folder")

	return &types.SyncResult{
		New:     newEmails,
		Deleted: deleted,
		Read:    read,
		Meta:    f.metaLocked(),
	}, nil
}

// checkReadLocked fetches only flags for UIDs believed unread and returns those now seen
func (f *Folder) checkReadLocked(ctx context.Context, candidates []uint32) ([]uint32, error) {
	var present []uint32
	for _, uid := range candidates {
		if _, ok := f.uids[uid]; ok {
			present = append(present, uid)
		}
	}
	if len(present) == 0 {
		return nil, nil
	}

	var messages []*FetchedMessage
	err := f.account.pool.WithConnection(ctx, f.name, func(conn *Connection) (err error) {
		messages, err = conn.Fetch(ctx, present, []imap.FetchItem{imap.FetchUid, imap.FetchFlags})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch flags: %w", err)
	}

	var read []uint32
	for _, msg := range messages {
		if slices.Contains(msg.Flags, imap.SeenFlag) {
			read = append(read, msg.UID)
		}
	}
	slices.Sort(read)

	if err := f.updateCachedFlagsLocked(ctx, read, imap.SeenFlag, true); err != nil {
		return nil, err
	}
	return read, nil
}

// GetEmails returns the next batch of not yet returned messages, newest first.
// reset restarts from the newest message. A batchSize of zero uses the configured
// batch size, multiplied by the initial batch count on the first page.
func (f *Folder) GetEmails(ctx context.Context, reset bool, batchSize int) ([]*types.EmailHeaders, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.loadLocked(ctx); err != nil {
		return nil, err
	}
	if f.exists != existenceYes {
		return nil, nil
	}

	if reset {
		f.seen = map[uint32]struct{}{}
	}

	if batchSize <= 0 {
		batchSize = f.account.system.BatchSize
		if len(f.seen) == 0 && f.account.system.InitialBatches > 1 {
			batchSize *= f.account.system.InitialBatches
		}
	}

	var unseen []uint32
	for uid := range f.uids {
		if _, ok := f.seen[uid]; !ok {
			unseen = append(unseen, uid)
		}
	}
	batch := newestUIDs(unseen, batchSize)
	if len(batch) == 0 {
		return nil, nil
	}

	emails, err := f.fetchHeadersLocked(ctx, batch)
	if err != nil {
		return nil, err
	}
	for _, uid := range batch {
		f.seen[uid] = struct{}{}
	}
	return emails, nil
}

// fetchHeadersLocked returns header records for uids, cache first, newest first
func (f *Folder) fetchHeadersLocked(ctx context.Context, uids []uint32) ([]*types.EmailHeaders, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	blobs, err := f.cache.BatchGetHeaders(ctx, uids)
	if err != nil {
		return nil, err
	}

	emails := make([]*types.EmailHeaders, 0, len(uids))
	var missing []uint32
	for _, uid := range uids {
		blob, ok := blobs[uid]
		if !ok {
			missing = append(missing, uid)
			continue
		}
		var headers types.EmailHeaders
		if err := json.Unmarshal(blob, &headers); err != nil {
			f.logger.WithError(err).WithField("uid", uid).Warn("Discarding unreadable cached headers")
			missing = append(missing, uid)
			continue
		}
		emails = append(emails, &headers)
	}

	f.logger.WithFields(logrus.Fields{
		"fetch":  len(missing),
		"cached": len(emails),
	}).Info("Fetching message headers")

	if len(missing) > 0 {
		fetched, err := f.fetchFromServer(ctx, missing)
		if err != nil {
			return nil, err
		}
		emails = append(emails, fetched...)
	}

	slices.SortFunc(emails, func(a, b *types.EmailHeaders) int {
		switch {
		case a.UID > b.UID:
			return -1
		case a.UID < b.UID:
			return 1
		}
		return 0
	})
	return emails, nil
}

func (f *Folder) fetchFromServer(ctx context.Context, uids []uint32) ([]*types.EmailHeaders, error) {
	var messages []*FetchedMessage
	err := f.account.pool.WithConnection(ctx, f.name, func(conn *Connection) (err error) {
		messages, err = conn.Fetch(ctx, uids, headerItems)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch headers: %w", err)
	}

	fixes, err := FixEmailUIDs(uids, fetchedUIDs(messages))
	if err != nil {
		return nil, err
	}

	emails := make([]*types.EmailHeaders, 0, len(messages))
	blobs := make(map[uint32][]byte, len(messages))
	var contacts []types.Contact

	for _, msg := range messages {
		uid := fixes[msg.UID]
		headers := message.BuildHeaders(message.HeaderInput{
			UID:           uid,
			SeqNum:        msg.SeqNum,
			Flags:         msg.Flags,
			Size:          msg.Size,
			Envelope:      msg.Envelope,
			BodyStructure: msg.BodyStructure,
			ExcerptData:   msg.Sections[excerptItem],
			HeaderFields:  msg.Sections[headerFieldsItem],
			AccountName:   f.account.name,
			ServerFolder:  f.name,
			FolderName:    f.alias,
		}, f.logger)

		blob, err := json.Marshal(headers)
		if err != nil {
			return nil, fmt.Errorf("failed to encode headers: %w", err)
		}
		blobs[uid] = blob
		emails = append(emails, headers)

		contacts = append(contacts, headers.From...)
		contacts = append(contacts, headers.To...)
		contacts = append(contacts, headers.Cc...)
	}

	if err := f.cache.BatchSetHeaders(ctx, blobs); err != nil {
		return nil, err
	}

	if f.account.contacts != nil && len(contacts) > 0 {
		if err := f.account.contacts.Add(ctx, contacts); err != nil {
			f.logger.WithError(err).Warn("Failed to save contacts")
		}
	}
	return emails, nil
}

// partResult is one fetch of a body part; Missing lists UIDs the server sent nothing for
type partResult struct {
	Data    map[uint32][]byte
	Missing []uint32
}

func (f *Folder) fetchPart(ctx context.Context, uids []uint32, part string) (*partResult, error) {
	item := imap.FetchItem(fmt.Sprintf("BODY[%s]", part))

	var messages []*FetchedMessage
	err := f.account.pool.WithConnection(ctx, f.name, func(conn *Connection) (err error) {
		messages, err = conn.Fetch(ctx, uids, []imap.FetchItem{imap.FetchUid, item})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch part %s: %w", part, err)
	}

	var returned []*FetchedMessage
	for _, msg := range messages {
		if _, ok := msg.Sections[item]; ok {
			returned = append(returned, msg)
		}
	}

	// Dropped parts are retried, so the UID fixup only runs on foreign UIDs
	wanted := toSet(uids)
	stale := slices.ContainsFunc(returned, func(msg *FetchedMessage) bool {
		_, ok := wanted[msg.UID]
		return !ok
	})

	result := &partResult{Data: make(map[uint32][]byte, len(returned))}
	if stale {
		fixes, err := FixEmailUIDs(uids, fetchedUIDs(returned))
		if err != nil {
			return nil, err
		}
		for _, msg := range returned {
			result.Data[fixes[msg.UID]] = msg.Sections[item]
		}
	} else {
		for _, msg := range returned {
			result.Data[msg.UID] = msg.Sections[item]
		}
	}

	for _, uid := range uids {
		if _, ok := result.Data[uid]; !ok {
			result.Missing = append(result.Missing, uid)
		}
	}
	return result, nil
}

// fetchPartData fetches the same body part of many messages, refetching any the
// server drops up to the configured number of attempts
func (f *Folder) fetchPartData(ctx context.Context, uids []uint32, part string) (map[uint32][]byte, error) {
	data := make(map[uint32][]byte, len(uids))
	missing := uids

	attempts := max(f.account.system.PartAttempts, 1)
	for attempt := 1; attempt <= attempts && len(missing) > 0; attempt++ {
		result, err := f.fetchPart(ctx, missing, part)
		if err != nil {
			return nil, err
		}
		for uid, body := range result.Data {
			data[uid] = body
		}
		missing = result.Missing

		if len(missing) > 0 {
			f.logger.WithFields(logrus.Fields{
				"part":    part,
				"missing": missing,
				"attempt": attempt,
			}).Warn("Server omitted message parts")
		}
	}

	if len(missing) > 0 {
		return nil, &MissingPartsError{Part: part, UIDs: missing}
	}
	return data, nil
}

// partMeta returns cached header records for uids, fetching any not cached
func (f *Folder) partMeta(ctx context.Context, uids []uint32) (map[uint32]*types.EmailHeaders, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	emails, err := f.fetchHeadersLocked(ctx, uids)
	if err != nil {
		return nil, err
	}
	meta := make(map[uint32]*types.EmailHeaders, len(emails))
	for _, email := range emails {
		meta[email.UID] = email
	}
	return meta, nil
}

// GetEmailParts fetches and decodes one text part of many messages.
// The messages are marked seen.
func (f *Folder) GetEmailParts(ctx context.Context, uids []uint32, part string) (map[uint32]string, error) {
	f.logger.WithFields(logrus.Fields{"count": len(uids), "part": part}).Info("Fetching message parts")

	meta, err := f.partMeta(ctx, uids)
	if err != nil {
		return nil, err
	}

	data, err := f.fetchPartData(ctx, uids, part)
	if err != nil {
		return nil, err
	}

	texts := make(map[uint32]string, len(data))
	for uid, body := range data {
		var partInfo types.Part
		if headers, ok := meta[uid]; ok {
			partInfo = headers.Parts.Parts[part]
		}
		texts[uid] = message.DecodeString(body, partInfo.Encoding, partInfo.Charset)
	}

	if err := f.markSeen(ctx, uids); err != nil {
		return nil, err
	}
	return texts, nil
}

// GetEmailPart fetches one part of one message; non-text parts are returned base64 encoded
func (f *Folder) GetEmailPart(ctx context.Context, uid uint32, part string) (*types.PartContent, error) {
	meta, err := f.partMeta(ctx, []uint32{uid})
	if err != nil {
		return nil, err
	}
	headers, ok := meta[uid]
	if !ok {
		return nil, fmt.Errorf("message %d not found in %s", uid, f.name)
	}
	partInfo, ok := headers.Parts.Parts[part]
	if !ok {
		return nil, fmt.Errorf("message %d has no part %s", uid, part)
	}

	data, err := f.fetchPartData(ctx, []uint32{uid}, part)
	if err != nil {
		return nil, err
	}

	content := &types.PartContent{
		UID:         uid,
		Part:        part,
		ContentType: partInfo.ContentType(),
		Filename:    partInfo.Name,
	}
	if partInfo.Type == "text" {
		content.Data = message.DecodeString(data[uid], partInfo.Encoding, partInfo.Charset)
	} else {
		content.Encoding = "base64"
		content.Data = base64.StdEncoding.EncodeToString(message.DecodeTransfer(data[uid], partInfo.Encoding))
	}

	if err := f.markSeen(ctx, []uint32{uid}); err != nil {
		return nil, err
	}
	return content, nil
}

func (f *Folder) markSeen(ctx context.Context, uids []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCachedFlagsLocked(ctx, uids, imap.SeenFlag, true)
}

// updateCachedFlagsLocked adds or removes a flag on cached header records
func (f *Folder) updateCachedFlagsLocked(ctx context.Context, uids []uint32, flag string, add bool) error {
	if len(uids) == 0 {
		return nil
	}

	blobs, err := f.cache.BatchGetHeaders(ctx, uids)
	if err != nil {
		return err
	}

	updated := make(map[uint32][]byte, len(blobs))
	for uid, blob := range blobs {
		var headers types.EmailHeaders
		if err := json.Unmarshal(blob, &headers); err != nil {
			continue
		}

		has := headers.HasFlag(flag)
		switch {
		case add && !has:
			headers.Flags = append(headers.Flags, flag)
		case !add && has:
			headers.Flags = slices.DeleteFunc(headers.Flags, func(f string) bool { return f == flag })
		default:
			continue
		}

		blob, err := json.Marshal(&headers)
		if err != nil {
			return fmt.Errorf("failed to encode headers: %w", err)
		}
		updated[uid] = blob
	}
	return f.cache.BatchSetHeaders(ctx, updated)
}

// Move moves messages to another folder, using MOVE when the server supports it.
// The UID snapshot is reconciled by the next sync.
func (f *Folder) Move(ctx context.Context, uids []uint32, destAlias string) error {
	dest, err := f.account.EnsureFolderExists(ctx, destAlias)
	if err != nil {
		return err
	}

	f.logger.WithFields(logrus.Fields{"count": len(uids), "to": dest}).Info("Moving messages")

	useMove := f.account.HasCapability(ctx, "MOVE")
	return f.account.pool.WithConnection(ctx, f.name, func(conn *Connection) error {
		if useMove {
			return conn.Move(ctx, uids, dest)
		}
		if err := conn.Copy(ctx, uids, dest); err != nil {
			return err
		}
		if err := conn.AddFlags(ctx, uids, imap.DeletedFlag); err != nil {
			return err
		}
		return conn.Expunge(ctx)
	})
}

// Copy copies messages to another folder
func (f *Folder) Copy(ctx context.Context, uids []uint32, destAlias string) error {
	dest, err := f.account.EnsureFolderExists(ctx, destAlias)
	if err != nil {
		return err
	}

	f.logger.WithFields(logrus.Fields{"count": len(uids), "to": dest}).Info("Copying messages")
	return f.account.pool.WithConnection(ctx, f.name, func(conn *Connection) error {
		return conn.Copy(ctx, uids, dest)
	})
}

// Delete flags messages deleted and expunges them.
// The UID snapshot is reconciled by the next sync.
func (f *Folder) Delete(ctx context.Context, uids []uint32) error {
	f.logger.WithField("count", len(uids)).Info("Deleting messages")
	return f.account.pool.WithConnection(ctx, f.name, func(conn *Connection) error {
		if err := conn.AddFlags(ctx, uids, imap.DeletedFlag); err != nil {
			return err
		}
		return conn.Expunge(ctx)
	})
}

// Star flags messages and updates their cached flags
func (f *Folder) Star(ctx context.Context, uids []uint32) error {
	return f.setFlag(ctx, uids, imap.FlaggedFlag, true)
}

// Unstar unflags messages and updates their cached flags
func (f *Folder) Unstar(ctx context.Context, uids []uint32) error {
	return f.setFlag(ctx, uids, imap.FlaggedFlag, false)
}

func (f *Folder) setFlag(ctx context.Context, uids []uint32, flag string, add bool) error {
	err := f.account.pool.WithConnection(ctx, f.name, func(conn *Connection) error {
		if add {
			return conn.AddFlags(ctx, uids, flag)
		}
		return conn.RemoveFlags(ctx, uids, flag)
	})
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCachedFlagsLocked(ctx, uids, flag, add)
}

// Meta summarizes the folder's local state
func (f *Folder) Meta(ctx context.Context) (types.FolderMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.loadLocked(ctx); err != nil {
		return types.FolderMeta{}, err
	}
	return f.metaLocked(), nil
}

func (f *Folder) metaLocked() types.FolderMeta {
	return types.FolderMeta{
		Exists:      f.exists == existenceYes,
		Count:       len(f.uids),
		SeenCount:   len(f.seen),
		UIDValidity: f.validity,
	}
}

func toSet(uids []uint32) map[uint32]struct{} {
	set := make(map[uint32]struct{}, len(uids))
	for _, uid := range uids {
		set[uid] = struct{}{}
	}
	return set
}

// newestUIDs returns up to n of the highest UIDs in descending order
func newestUIDs(uids []uint32, n int) []uint32 {
	sorted := slices.Clone(uids)
	slices.SortFunc(sorted, func(a, b uint32) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func fetchedUIDs(messages []*FetchedMessage) []uint32 {
	uids := make([]uint32, len(messages))
	for i, msg := range messages {
		uids[i] = msg.UID
	}
	return uids
}
