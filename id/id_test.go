package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/factor/id"
)

func TestGeneratedPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() id.ID
		parse  func(string) (id.ID, error)
		prefix id.Prefix
	}{
		{"event", id.NewEventID, id.ParseEventID, id.PrefixEvent},
		{"transfer", id.NewTransferID, id.ParseTransferID, id.PrefixTransfer},
		{"audit", id.NewAuditID, id.ParseAuditID, id.PrefixAudit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generated := tt.gen()
			assert.False(t, generated.IsNil())
			assert.Equal(t, tt.prefix, generated.Prefix())
			assert.True(t, strings.HasPrefix(generated.String(), string(tt.prefix)+"_"))

			parsed, err := tt.parse(generated.String())
			require.NoError(t, err)
			assert.Equal(t, generated.String(), parsed.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		parse func(string) (id.ID, error)
	}{
		{"empty", "", id.Parse},
		{"garbage", "not-an-id", id.Parse},
		{"transfer as event", id.NewTransferID().String(), id.ParseEventID},
		{"event as audit", id.NewEventID().String(), id.ParseAuditID},
		{"audit as transfer", id.NewAuditID().String(), id.ParseTransferID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parse(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, id.ErrInvalid))
		})
	}
}

func TestNil(t *testing.T) {
	var zero id.ID
	assert.True(t, zero.IsNil())
	assert.Empty(t, zero.String())
	assert.Empty(t, zero.Prefix())

	val, err := zero.Value()
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestIDInJSON(t *testing.T) {
	type record struct {
		ID     id.EventID `json:"id"`
		Parent id.ID      `json:"parent"`
	}

	in := record{ID: id.NewEventID()}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"parent":""`)

	var out record
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in.ID.String(), out.ID.String())
	assert.True(t, out.Parent.IsNil())
}

func TestScan(t *testing.T) {
	transfer := id.NewTransferID()

	for _, src := range []any{transfer.String(), []byte(transfer.String())} {
		var scanned id.ID
		require.NoError(t, scanned.Scan(src))
		assert.Equal(t, transfer.String(), scanned.String())
	}

	var scanned id.ID
	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsNil())

	assert.Error(t, scanned.Scan(42))
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for range 100 {
		next := id.NewEventID().String()
		_, dup := seen[next]
		require.False(t, dup, "duplicate id %s", next)
		seen[next] = struct{}{}
	}
}
