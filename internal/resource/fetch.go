// Package resource resolves the bytes behind buffer records, either inline
// or by HTTP GET, and slices buffer views out of them.
package resource

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/noodles/ramen/internal/core/future"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNoSource  = errors.New("buffer has neither inline_bytes nor uri_bytes")
	ErrBadStatus = errors.New("buffer not found")
)

type Options struct {
	Timeout      time.Duration
	CacheEntries int          // 0 disables caching
	HTTPClient   *http.Client // nil builds one from Timeout
	Metrics      *metrics.Metrics
	Log          *zap.Logger
}

// Fetcher resolves buffer bytes. Failed fetches are reported once and never
// retried; retry policy belongs to the caller.
type Fetcher struct {
	http    *http.Client
	cache   *lru.Cache[string, []byte]
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewFetcher(opts Options) (*Fetcher, error) {
	f := &Fetcher{
		http:    opts.HTTPClient,
		metrics: opts.Metrics,
		log:     opts.Log,
	}
	if f.http == nil {
		f.http = &http.Client{Timeout: opts.Timeout}
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	if opts.CacheEntries > 0 {
		cache, err := lru.New[string, []byte](opts.CacheEntries)
		if err != nil {
			return nil, fmt.Errorf("fetch cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// Fetch starts resolving the bytes of a buffer record. Inline bytes resolve
// immediately; a URI is downloaded on its own goroutine.
func (f *Fetcher) Fetch(ctx context.Context, rec *value.Record) *future.Future[[]byte] {
	if b, ok := rec.Bytes("inline_bytes"); ok {
		f.metrics.Fetch("inline", "ok")
		return future.Resolved(b)
	}
	if uri, ok := rec.Str("uri_bytes"); ok && uri != "" {
		return f.FetchURI(ctx, uri)
	}
	f.metrics.Fetch("none", "error")
	return future.Failed[[]byte](ErrNoSource)
}

// FetchURI downloads uri, serving repeated requests from the cache.
func (f *Fetcher) FetchURI(ctx context.Context, uri string) *future.Future[[]byte] {
	if f.cache != nil {
		if b, ok := f.cache.Get(uri); ok {
			f.metrics.Fetch("cache", "ok")
			return future.Resolved(b)
		}
	}
	out := future.New[[]byte]()
	go func() {
		start := time.Now()
		b, err := f.get(ctx, uri)
		if err != nil {
			f.metrics.Fetch("uri", "error")
			f.log.Warn("buffer fetch failed", zap.String("uri", uri), zap.Error(err))
			out.Reject(err)
			return
		}
		if f.cache != nil {
			f.cache.Add(uri, b)
		}
		f.metrics.Fetch("uri", "ok")
		f.log.Debug("buffer fetched",
			zap.String("uri", uri),
			zap.Int("bytes", len(b)),
			zap.String("digest", Digest(b)),
			zap.Duration("took", time.Since(start)),
		)
		out.Resolve(b)
	}()
	return out
}

func (f *Fetcher) get(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrBadStatus, uri, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	return b, nil
}

// CacheLen returns the number of cached downloads.
func (f *Fetcher) CacheLen() int {
	if f.cache == nil {
		return 0
	}
	return f.cache.Len()
}

// Digest returns the hex BLAKE2b-256 of b.
func Digest(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}
