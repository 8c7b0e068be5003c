package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/net/packet"
	"github.com/noodles/ramen/internal/resource"
	"go.uber.org/zap"
)

// Op is the lifecycle event a journal entry records.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// JournalEntry records one applied message. Payload is the encoded record
// for creates and deletes and the encoded partial for updates.
type JournalEntry struct {
	Session    string
	Collection string
	Op         Op
	Index      uint32
	Generation uint32
	Payload    []byte
	Digest     string
	At         time.Time
}

// JournalWriter persists a batch of entries.
type JournalWriter interface {
	Append(ctx context.Context, entries []JournalEntry) error
}

// Journal buffers entries produced by its delegates until Flush.
type Journal struct {
	session   string
	enc       packet.Encoder
	flushSize int
	log       *zap.Logger

	mu      sync.Mutex
	pending []JournalEntry
}

func NewJournal(session string, enc packet.Encoder, flushSize int, log *zap.Logger) *Journal {
	if flushSize <= 0 {
		flushSize = 256
	}
	return &Journal{
		session:   session,
		enc:       enc,
		flushSize: flushSize,
		log:       log,
	}
}

// Delegate records every lifecycle event of one collection.
func (j *Journal) Delegate(collection string) client.Delegate {
	return client.Delegate{
		OnCreate: func(_ *client.Client, rec *value.Record) {
			j.record(collection, OpCreate, rec, rec)
		},
		OnUpdate: func(_ *client.Client, rec, partial *value.Record) {
			j.record(collection, OpUpdate, rec, partial)
		},
		OnDelete: func(_ *client.Client, rec *value.Record) {
			j.record(collection, OpDelete, rec, rec)
		},
	}
}

// Delegates returns a journaling delegate for each collection.
func (j *Journal) Delegates(collections []string) map[string]client.Delegate {
	out := make(map[string]client.Delegate, len(collections))
	for _, name := range collections {
		out[name] = j.Delegate(name)
	}
	return out
}

func (j *Journal) record(collection string, op Op, rec, body *value.Record) {
	id, _ := slot.IDOf(rec)
	payload, err := j.enc.Encode(body.Any())
	if err != nil {
		j.log.Warn("journal encode failed",
			zap.String("collection", collection), zap.Stringer("id", id), zap.Error(err))
		return
	}
	j.mu.Lock()
	j.pending = append(j.pending, JournalEntry{
		Session:    j.session,
		Collection: collection,
		Op:         op,
		Index:      id.Index,
		Generation: id.Generation,
		Payload:    payload,
		Digest:     resource.Digest(payload),
		At:         time.Now(),
	})
	j.mu.Unlock()
}

// Pending returns the number of buffered entries.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Flush writes buffered entries in batches of the flush size. Entries of a
// failed batch stay buffered for the next flush.
func (j *Journal) Flush(ctx context.Context, w JournalWriter) error {
	j.mu.Lock()
	entries := j.pending
	j.pending = nil
	j.mu.Unlock()

	for start := 0; start < len(entries); start += j.flushSize {
		end := min(start+j.flushSize, len(entries))
		if err := w.Append(ctx, entries[start:end]); err != nil {
			j.mu.Lock()
			j.pending = append(entries[start:], j.pending...)
			j.mu.Unlock()
			return fmt.Errorf("journal flush: %w", err)
		}
	}
	if len(entries) > 0 {
		j.log.Debug("journal flushed", zap.Int("entries", len(entries)))
	}
	return nil
}
