package contacts

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/internal/cache"
	"github.com/brandon/mailsync/pkg/types"
)

func newTestStore(t *testing.T) (*Store, *cache.Cache) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c, err := cache.NewCache(cache.MemoryPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	store, err := NewStore(c, logger)
	require.NoError(t, err)
	return store, c
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		contact types.Contact
		valid   bool
	}{
		{types.Contact{Name: "Alice", Address: "alice@example.com"}, true},
		{types.Contact{Name: "", Address: "alice@example.com"}, false},
		{types.Contact{Name: "Shop", Address: "noreply@shop.com"}, false},
		{types.Contact{Name: "Shop", Address: "orders-no-reply@shop.com"}, false},
		{types.Contact{Name: "Bank", Address: "donotreply@bank.com"}, false},
		{types.Contact{Name: "Forum", Address: "reply+abc@forum.com"}, false},
		{types.Contact{Name: "List", Address: "bounces-123@list.org"}, false},
		{types.Contact{Name: "Bob via Docs", Address: "docs@example.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.contact.Address, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValid(tt.contact))
		})
	}
}

func TestAddSkipsInvalidAndKeepsViewFresh(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, store.Add(ctx, []types.Contact{
		{Name: "Alice", Address: "alice@example.com"},
		{Name: "Alerts", Address: "noreply@example.com"},
	}))
	require.NoError(t, store.Add(ctx, []types.Contact{
		{Name: "Alice", Address: "alice@example.com"},
	}))

	all, err = store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Contact{{Name: "Alice", Address: "alice@example.com"}}, all)

	matches, err := store.Search(ctx, "ALI", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestInvalidateRereadsDatabase(t *testing.T) {
	store, c := newTestStore(t)
	ctx := context.Background()

	_, err := store.All(ctx)
	require.NoError(t, err)

	// Written behind the store's back
	require.NoError(t, c.AddContacts(ctx, []types.Contact{{Name: "Carol", Address: "carol@example.com"}}))

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	store.Invalidate()
	all, err = store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.Delete(ctx, types.Contact{Name: "Carol", Address: "carol@example.com"}))
	all, err = store.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
