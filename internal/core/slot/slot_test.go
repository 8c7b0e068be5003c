package slot

import (
	"testing"

	"github.com/noodles/ramen/internal/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingHooks struct {
	calls []string
}

func (h *recordingHooks) OnCreate(rec *value.Record) {
	h.calls = append(h.calls, "create "+rec.StringOr("name", ""))
}

func (h *recordingHooks) OnUpdate(rec, partial *value.Record) {
	h.calls = append(h.calls, "update "+rec.StringOr("name", "")+" "+partial.String())
}

func (h *recordingHooks) OnDelete(rec *value.Record) {
	h.calls = append(h.calls, "delete "+rec.StringOr("name", ""))
}

func rec(index, gen uint32, kv ...any) *value.Record {
	r := value.RecordOf(kv...)
	r.Set(KeyID, New(index, gen).Value())
	return r
}

func TestIDFromValue(t *testing.T) {
	id, ok := FromValue(value.FromAny([]any{4, 2}))
	require.True(t, ok)
	assert.Equal(t, New(4, 2), id)
	assert.Equal(t, "4/2", id.String())

	id, ok = FromValue(value.FromAny([]any{uint64(1) << 40, 0}))
	require.True(t, ok)
	assert.True(t, id.IsNull())
	assert.Equal(t, "null", id.String())

	for _, bad := range []any{nil, "x", []any{1}, []any{1, 2, 3}, []any{-1, 0}, []any{"a", 0}} {
		_, ok := FromValue(value.FromAny(bad))
		assert.False(t, ok, "%v", bad)
	}
}

func TestIDRoundTrip(t *testing.T) {
	id := New(9, 3)
	back, ok := FromValue(id.Value())
	require.True(t, ok)
	assert.True(t, id.Equal(back))
	assert.True(t, Null.IsNull())
	assert.True(t, New(1, nullComponent).IsNull())
	assert.True(t, New(nullComponent, 1).IsNull())
}

func TestIsNullRef(t *testing.T) {
	assert.True(t, IsNullRef(value.Null()))
	assert.True(t, IsNullRef(Null.Value()))
	assert.True(t, IsNullRef(value.Uint(nullComponent)))
	assert.True(t, IsNullRef(value.String("root")))
	assert.False(t, IsNullRef(New(0, 0).Value()))
	assert.False(t, IsNullRef(value.Uint(7)))
}

func TestStoreLifecycle(t *testing.T) {
	hooks := &recordingHooks{}
	s := NewStore("entity", hooks, zaptest.NewLogger(t))

	require.NoError(t, s.Create(rec(1, 0, "name", "a")))
	require.True(t, s.Update(New(1, 0), value.RecordOf("name", "b")))
	got, ok := s.Get(New(1, 0))
	require.True(t, ok)
	assert.Equal(t, "b", got.StringOr("name", ""))

	require.True(t, s.Delete(New(1, 0)))
	assert.Zero(t, s.Len())
	assert.Equal(t, []string{
		"create a",
		`update b {name: "b"}`,
		"delete b",
	}, hooks.calls)
}

func TestStoreMissingAndNull(t *testing.T) {
	hooks := &recordingHooks{}
	s := NewStore("plot", hooks, zaptest.NewLogger(t))

	assert.False(t, s.Update(New(3, 0), value.RecordOf("x", 1)))
	assert.False(t, s.Delete(New(3, 0)))
	assert.ErrorIs(t, s.Create(value.RecordOf("name", "no id")), ErrMissingID)
	assert.ErrorIs(t, s.Create(rec(nullComponent, nullComponent)), ErrNullID)

	_, ok := s.Get(Null)
	assert.False(t, ok)
	_, ok = s.GetIndex(nullComponent)
	assert.False(t, ok)
	assert.Empty(t, hooks.calls)
}

func TestStoreKeyedByIndex(t *testing.T) {
	s := NewStore("buffer", nil, zaptest.NewLogger(t))
	require.NoError(t, s.Create(rec(2, 0, "name", "old")))
	require.NoError(t, s.Create(rec(2, 1, "name", "new")))
	assert.Equal(t, 1, s.Len())

	// A stale generation still addresses the slot.
	got, ok := s.Get(New(2, 0))
	require.True(t, ok)
	assert.Equal(t, "new", got.StringOr("name", ""))

	got, ok = s.Lookup(value.Uint(2))
	require.True(t, ok)
	assert.Equal(t, "new", got.StringOr("name", ""))
	_, ok = s.Lookup(value.String("2"))
	assert.False(t, ok)
}

func TestStoreEachAscending(t *testing.T) {
	s := NewStore("method", nil, zaptest.NewLogger(t))
	for _, i := range []uint32{5, 1, 3} {
		require.NoError(t, s.Create(rec(i, 0)))
	}
	var seen []uint32
	s.Each(func(r *value.Record) {
		id, _ := IDOf(r)
		seen = append(seen, id.Index)
	})
	assert.Equal(t, []uint32{1, 3, 5}, seen)

	s.Reset()
	assert.Zero(t, s.Len())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	hooks := &recordingHooks{}
	r.Register(Descriptor{Name: "entity", Create: 4, Delete: 6, Update: 5, HasUpdate: true}, nil)
	r.Register(Descriptor{Name: "buffer", Create: 10, Delete: 11}, nil)

	assert.Equal(t, []string{"entity", "buffer"}, r.Names())
	assert.Equal(t, 2, r.Len())
	assert.Nil(t, r.Store("missing"))
	assert.False(t, r.SetHooks("missing", hooks))
	require.True(t, r.SetHooks("entity", hooks))

	require.NoError(t, r.Store("entity").Create(rec(0, 0, "name", "e")))
	require.NoError(t, r.Store("buffer").Create(rec(0, 0)))
	r.ResetAll()
	assert.Zero(t, r.Store("entity").Len())
	assert.Zero(t, r.Store("buffer").Len())

	require.NoError(t, r.Store("entity").Create(rec(1, 0, "name", "f")))
	assert.Equal(t, []string{"create e", "create f"}, hooks.calls)
}

func TestRegistryRejectsAmbiguousRouting(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	r.Register(Descriptor{Name: "entity", Create: 4, Delete: 6}, nil)

	assert.Panics(t, func() { r.Register(Descriptor{Name: "entity", Create: 40, Delete: 60}, nil) })
	assert.Panics(t, func() { r.Register(Descriptor{Name: "plot", Create: 7, Delete: 4}, nil) })
	assert.Panics(t, func() { r.Register(Descriptor{Create: 1, Delete: 2}, nil) })

	// Update ids only count when present.
	assert.NotPanics(t, func() { r.Register(Descriptor{Name: "plot", Create: 7, Delete: 9, Update: 4}, nil) })
}

func TestDescriptorMessageIDs(t *testing.T) {
	assert.Equal(t, []uint64{4, 6, 5}, Descriptor{Create: 4, Delete: 6, Update: 5, HasUpdate: true}.MessageIDs())
	assert.Equal(t, []uint64{0, 1}, Descriptor{Create: 0, Delete: 1}.MessageIDs())
}
