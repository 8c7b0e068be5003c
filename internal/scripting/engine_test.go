package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/net/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap/zaptest"
)

const hooks = `
created = {}
function entity_on_create(rec)
  created[#created + 1] = rec.name
  ramen.log("created " .. rec.name)
end
function entity_on_update(rec, partial)
  last_visible = partial.visible
  last_name = rec.name
end
function entity_on_delete(rec)
  deleted_index = rec.id[1]
end
function method_on_create(rec)
  error("broken hook")
end
function document_on_update(doc, partial)
  doc_title = doc.title
end
`

func newTestEngine(t *testing.T, files map[string]string) *Engine {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	e, err := NewEngine(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func msg(id uint64, payload map[string]any) packet.Message {
	return packet.Message{ID: id, Payload: value.FromAny(payload)}
}

func TestLuaDelegates(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"hooks.lua":    hooks,
		"lib/util.lua": `UTIL_LOADED = true`,
		"notes.txt":    `not lua`,
	})
	assert.Equal(t, lua.LTrue, e.vm.GetGlobal("UTIL_LOADED"))

	delegates := e.Delegates([]string{"entity", "method", "buffer"})
	assert.Contains(t, delegates, "entity")
	assert.Contains(t, delegates, "method")
	assert.Contains(t, delegates, client.DocumentDelegate)
	assert.NotContains(t, delegates, "buffer")

	c := client.New(client.Options{Delegates: delegates, Log: zaptest.NewLogger(t)})
	c.HandleMessages([]packet.Message{
		msg(packet.MsgMethodCreate, map[string]any{"id": []any{0, 0}, "name": "m"}),
		msg(packet.MsgEntityCreate, map[string]any{"id": []any{3, 0}, "name": "cube"}),
		msg(packet.MsgEntityUpdate, map[string]any{"id": []any{3, 0}, "visible": false}),
		msg(packet.MsgEntityDelete, map[string]any{"id": []any{3, 0}}),
		msg(packet.MsgDocumentUpdate, map[string]any{"title": "demo"}),
	})

	// the failing method hook did not stop later messages
	assert.Equal(t, 1, c.Methods().Len())

	created := e.vm.GetGlobal("created").(*lua.LTable)
	assert.Equal(t, 1, created.Len())
	assert.Equal(t, lua.LString("cube"), created.RawGetInt(1))
	assert.Equal(t, lua.LFalse, e.vm.GetGlobal("last_visible"))
	assert.Equal(t, lua.LString("cube"), e.vm.GetGlobal("last_name"))
	assert.Equal(t, lua.LNumber(3), e.vm.GetGlobal("deleted_index"))
	assert.Equal(t, lua.LString("demo"), e.vm.GetGlobal("doc_title"))
}

func TestLoadErrorFailsEngine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.lua"), []byte("function ("), 0o644))
	_, err := NewEngine(dir, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestMissingDirIsEmpty(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "none"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()
	assert.Empty(t, e.Delegates([]string{"entity"}))
}

func TestListNullKeepsPositions(t *testing.T) {
	e := newTestEngine(t, nil)
	v := value.FromAny([]any{1, nil, "three", nil})

	tbl, ok := e.toLua(v).(*lua.LTable)
	require.True(t, ok)
	assert.Equal(t, lua.LNumber(1), tbl.RawGetInt(1))
	assert.Equal(t, lua.LNil, tbl.RawGetInt(2))
	assert.Equal(t, lua.LString("three"), tbl.RawGetInt(3))
	assert.Equal(t, lua.LNil, tbl.RawGetInt(4))
}
