package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/pkg/types"
)

func TestUIDList(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    []uint32
		wantErr string
	}{
		{name: "numbers", value: []interface{}{float64(3), float64(1)}, want: []uint32{3, 1}},
		{name: "quoted", value: []interface{}{"7", float64(8)}, want: []uint32{7, 8}},
		{name: "empty", value: []interface{}{}, want: []uint32{}},
		{name: "missing", value: nil, wantErr: "uids is required"},
		{name: "zero", value: []interface{}{float64(0)}, wantErr: "invalid uid in uids"},
		{name: "fraction", value: []interface{}{float64(1.5)}, wantErr: "invalid uid in uids"},
		{name: "word", value: []interface{}{"seven"}, wantErr: "invalid uid in uids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := map[string]interface{}{}
			if tt.value != nil {
				params["uids"] = tt.value
			}
			got, err := uidList(params, "uids")
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionalInt(t *testing.T) {
	n, err := optionalInt(map[string]interface{}{"limit": float64(25)}, "limit")
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = optionalInt(map[string]interface{}{"limit": "10"}, "limit")
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = optionalInt(map[string]interface{}{}, "limit")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = optionalInt(map[string]interface{}{"limit": "ten"}, "limit")
	assert.ErrorContains(t, err, "invalid limit")

	_, err = optionalInt(map[string]interface{}{"limit": true}, "limit")
	assert.EqualError(t, err, "invalid limit")
}

func TestContactList(t *testing.T) {
	got, err := contactList(map[string]interface{}{
		"to": `Bob Smith <bob@example.com>, carol@example.com`,
	}, "to")
	require.NoError(t, err)
	assert.Equal(t, []types.Contact{
		{Name: "Bob Smith", Address: "bob@example.com"},
		{Address: "carol@example.com"},
	}, got)

	got, err = contactList(map[string]interface{}{"cc": "  "}, "cc")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = contactList(map[string]interface{}{"to": "not an address"}, "to")
	assert.ErrorContains(t, err, "invalid to")
}

func TestOptionalBool(t *testing.T) {
	assert.True(t, optionalBool(map[string]interface{}{"reset": true}, "reset"))
	assert.True(t, optionalBool(map[string]interface{}{"reset": "true"}, "reset"))
	assert.False(t, optionalBool(map[string]interface{}{"reset": "nope"}, "reset"))
	assert.False(t, optionalBool(map[string]interface{}{}, "reset"))
}
