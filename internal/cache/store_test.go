package cache

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/pkg/types"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c, err := NewCache(MemoryPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFolderCacheUIDValidity(t *testing.T) {
	ctx := context.Background()
	fc := newTestCache(t).Folder("me@imap.example.com", "INBOX")

	validity, err := fc.GetUIDValidity(ctx)
	require.NoError(t, err)
	assert.Empty(t, validity)

	require.NoError(t, fc.SetUIDValidity(ctx, "v1"))
	require.NoError(t, fc.SetUIDValidity(ctx, "v2"))

	validity, err = fc.GetUIDValidity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", validity)
}

func TestFolderCacheUIDScopes(t *testing.T) {
	ctx := context.Background()
	fc := newTestCache(t).Folder("me@imap.example.com", "INBOX")
	scoped := fc.WithScope("invoice")

	_, ok, err := fc.GetUIDs(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fc.SetUIDs(ctx, []uint32{1, 2, 3}))
	require.NoError(t, scoped.SetUIDs(ctx, []uint32{2}))

	uids, ok, err := fc.GetUIDs(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []uint32{1, 2, 3}, uids)

	uids, ok, err = scoped.GetUIDs(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []uint32{2}, uids)

	// Headers are shared between scopes
	require.NoError(t, scoped.SetHeaders(ctx, 2, []byte(`{"uid":2}`)))
	blob, err := fc.GetHeaders(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"uid":2}`), blob)
}

func TestFolderCacheBatchHeaders(t *testing.T) {
	ctx := context.Background()
	fc := newTestCache(t).Folder("me@imap.example.com", "INBOX")

	blobs := make(map[uint32][]byte)
	var uids []uint32
	for uid := uint32(1); uid <= 1200; uid++ {
		blobs[uid] = []byte{byte(uid % 251)}
		uids = append(uids, uid)
	}
	require.NoError(t, fc.BatchSetHeaders(ctx, blobs))

	found, err := fc.BatchGetHeaders(ctx, append(uids, 5000))
	require.NoError(t, err)
	assert.Len(t, found, 1200)
	assert.Equal(t, []byte{byte(700 % 251)}, found[700])

	require.NoError(t, fc.BatchDeleteHeaders(ctx, uids[:600]))
	found, err = fc.BatchGetHeaders(ctx, uids)
	require.NoError(t, err)
	assert.Len(t, found, 600)

	require.NoError(t, fc.DeleteHeaders(ctx, 1200))
	blob, err := fc.GetHeaders(ctx, 1200)
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestFolderCacheBustIsolatedPerFolder(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	inbox := c.Folder("me@imap.example.com", "INBOX")
	sent := c.Folder("me@imap.example.com", "Sent")

	for _, fc := range []*FolderCache{inbox, sent} {
		require.NoError(t, fc.SetUIDValidity(ctx, "v1"))
		require.NoError(t, fc.SetUIDs(ctx, []uint32{7}))
		require.NoError(t, fc.WithScope("q").SetUIDs(ctx, []uint32{7}))
		require.NoError(t, fc.SetHeaders(ctx, 7, []byte("x")))
	}

	require.NoError(t, inbox.Bust(ctx))

	validity, err := inbox.GetUIDValidity(ctx)
	require.NoError(t, err)
	assert.Empty(t, validity)
	_, ok, err := inbox.WithScope("q").GetUIDs(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	blob, err := inbox.GetHeaders(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, blob)

	blob, err = sent.GetHeaders(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), blob)
}

func TestContactsSearch(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	contacts := []types.Contact{
		{Name: "Ada Lovelace", Address: "ada@example.com"},
		{Name: "Alan Turing", Address: "alan@example.org"},
	}
	require.NoError(t, c.AddContacts(ctx, contacts))
	require.NoError(t, c.AddContacts(ctx, contacts[:1]))

	all, err := c.SearchContacts(ctx, ContactSearch{})
	require.NoError(t, err)
	assert.Equal(t, contacts, all)

	domain := "example.org"
	found, err := c.SearchContacts(ctx, ContactSearch{Address: &domain})
	require.NoError(t, err)
	assert.Equal(t, contacts[1:], found)

	require.NoError(t, c.DeleteContact(ctx, contacts[0]))
	all, err = c.SearchContacts(ctx, ContactSearch{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, contacts[1:], all)
}
