package resource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noodles/ramen/internal/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestFetcher(t *testing.T, cache int) *Fetcher {
	t.Helper()
	f, err := NewFetcher(Options{Timeout: time.Second, CacheEntries: cache, Log: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return f
}

func waitBytes(t *testing.T, f interface {
	Wait(context.Context) ([]byte, error)
}) ([]byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestFetchInline(t *testing.T) {
	f := newTestFetcher(t, 0)
	fut := f.Fetch(context.Background(), value.RecordOf("inline_bytes", []byte{1, 2, 3}))
	assert.True(t, fut.Settled())
	b, err := waitBytes(t, fut)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
}

func TestFetchNoSource(t *testing.T) {
	f := newTestFetcher(t, 0)
	_, err := waitBytes(t, f.Fetch(context.Background(), value.RecordOf("size", 3)))
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestFetchURIAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/buf":
			w.Write([]byte("payload"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, 4)
	rec := value.RecordOf("uri_bytes", srv.URL+"/buf")

	b, err := waitBytes(t, f.Fetch(context.Background(), rec))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), b)

	b, err = waitBytes(t, f.Fetch(context.Background(), rec))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), b)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, f.CacheLen())

	_, err = waitBytes(t, f.FetchURI(context.Background(), srv.URL+"/missing"))
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.Equal(t, 1, f.CacheLen(), "failures are not cached")
}

func TestDigest(t *testing.T) {
	assert.Len(t, Digest([]byte("abc")), 64)
	assert.Equal(t, Digest([]byte("abc")), Digest([]byte("abc")))
	assert.NotEqual(t, Digest([]byte("abc")), Digest([]byte("abd")))
}

func TestViewSlice(t *testing.T) {
	buf := []byte{0, 1, 2, 3, 4, 5}

	b, err := View{Offset: 2, Length: 3}.Slice(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4}, b)

	b, err = View{Offset: 4}.Slice(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, b)

	_, err = View{Offset: 4, Length: 3}.Slice(buf)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = View{Offset: 7}.Slice(buf)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestViewOf(t *testing.T) {
	v, err := ViewOf(value.RecordOf("source_buffer", []any{uint64(1), uint64(0)}, "offset", 8, "length", 16))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), v.Offset)
	assert.Equal(t, uint64(16), v.Length)

	_, err = ViewOf(value.RecordOf("offset", 0))
	assert.ErrorIs(t, err, ErrNoBuffer)
}
