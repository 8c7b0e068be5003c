package net

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	c, err := NewCBORCodec()
	require.NoError(t, err)

	data, err := c.Encode([]any{uint64(4), map[string]any{
		"id":   []any{uint64(1), uint64(0)},
		"name": "cube",
		"pos":  []any{1.5, -2.0, 0.0},
	}})
	require.NoError(t, err)

	v, err := c.Decode(data)
	require.NoError(t, err)
	items, ok := v.AsList()
	require.True(t, ok)
	require.Len(t, items, 2)

	id, _ := items[0].AsUint()
	assert.Equal(t, uint64(4), id)
	rec, ok := items[1].AsMap()
	require.True(t, ok)
	assert.Equal(t, "cube", rec.StringOr("name", ""))
	assert.True(t, value.Equal(value.FromAny([]any{1, 0}), mustGet(t, rec, "id")))
}

func TestCodecUnwrapsTags(t *testing.T) {
	c, err := NewCBORCodec()
	require.NoError(t, err)

	// Tag 85 marks a float32 typed array; the payload stays a byte string.
	raw := []byte{0, 0, 128, 63}
	data, err := cbor.Marshal([]any{cbor.Tag{Number: 85, Content: raw}})
	require.NoError(t, err)

	v, err := c.Decode(data)
	require.NoError(t, err)
	items, ok := v.AsList()
	require.True(t, ok)
	b, ok := items[0].AsBytes()
	require.True(t, ok)
	assert.Equal(t, raw, b)
}

func TestCodecRejectsGarbage(t *testing.T) {
	c, err := NewCBORCodec()
	require.NoError(t, err)
	_, err = c.Decode([]byte{0xff})
	assert.Error(t, err)
}

func mustGet(t *testing.T, rec *value.Record, key string) value.Value {
	t.Helper()
	v, ok := rec.Get(key)
	require.True(t, ok, key)
	return v
}
