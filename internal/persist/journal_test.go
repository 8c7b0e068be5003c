package persist

import (
	"context"
	"errors"
	"testing"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/value"
	rnet "github.com/noodles/ramen/internal/net"
	"github.com/noodles/ramen/internal/net/packet"
	"github.com/noodles/ramen/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	batches [][]JournalEntry
	fail    bool
}

func (w *fakeWriter) Append(_ context.Context, entries []JournalEntry) error {
	if w.fail {
		return errors.New("db down")
	}
	w.batches = append(w.batches, append([]JournalEntry(nil), entries...))
	return nil
}

func msg(id uint64, payload map[string]any) packet.Message {
	return packet.Message{ID: id, Payload: value.FromAny(payload)}
}

func TestJournalRecordsLifecycle(t *testing.T) {
	codec, err := rnet.NewCBORCodec()
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	j := NewJournal("session-1", codec, 2, log)

	c := client.New(client.Options{Delegates: j.Delegates([]string{"entity"}), Log: log})
	c.HandleMessages([]packet.Message{
		msg(packet.MsgEntityCreate, map[string]any{"id": []any{5, 2}, "name": "a"}),
		msg(packet.MsgEntityUpdate, map[string]any{"id": []any{5, 2}, "visible": false}),
		msg(packet.MsgEntityDelete, map[string]any{"id": []any{5, 2}}),
		msg(packet.MsgMethodCreate, map[string]any{"id": []any{0, 0}}),
	})
	require.Equal(t, 3, j.Pending())

	w := &fakeWriter{}
	require.NoError(t, j.Flush(context.Background(), w))
	assert.Zero(t, j.Pending())
	require.Len(t, w.batches, 2)
	assert.Len(t, w.batches[0], 2)
	assert.Len(t, w.batches[1], 1)

	create := w.batches[0][0]
	assert.Equal(t, "session-1", create.Session)
	assert.Equal(t, "entity", create.Collection)
	assert.Equal(t, OpCreate, create.Op)
	assert.Equal(t, uint32(5), create.Index)
	assert.Equal(t, uint32(2), create.Generation)
	assert.Equal(t, resource.Digest(create.Payload), create.Digest)

	update := w.batches[0][1]
	assert.Equal(t, OpUpdate, update.Op)
	decoded, err := codec.Decode(update.Payload)
	require.NoError(t, err)
	partial, ok := decoded.AsMap()
	require.True(t, ok)
	assert.True(t, partial.Has("visible"))
	assert.False(t, partial.Has("name"), "updates journal the partial only")

	assert.Equal(t, OpDelete, w.batches[1][0].Op)
}

func TestJournalKeepsEntriesOnFailure(t *testing.T) {
	codec, err := rnet.NewCBORCodec()
	require.NoError(t, err)
	j := NewJournal("s", codec, 10, zaptest.NewLogger(t))
	d := j.Delegate("buffer")
	d.OnCreate(nil, value.RecordOf("id", []any{uint64(1), uint64(0)}))

	w := &fakeWriter{fail: true}
	assert.Error(t, j.Flush(context.Background(), w))
	assert.Equal(t, 1, j.Pending())

	w.fail = false
	require.NoError(t, j.Flush(context.Background(), w))
	assert.Zero(t, j.Pending())
	assert.Len(t, w.batches, 1)
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := MigrationFiles()
	require.NoError(t, err)
	assert.Contains(t, names, "00001_journal.sql")
}
