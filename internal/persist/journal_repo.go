package persist

import (
	"context"
	"fmt"
)

// JournalRepo stores journal entries in Postgres.
type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Append writes a batch of entries in a single transaction.
func (r *JournalRepo) Append(ctx context.Context, entries []JournalEntry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO record_journal (session_id, collection, op, slot_index, generation, payload, digest, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.Session, e.Collection, string(e.Op), int64(e.Index), int64(e.Generation), e.Payload, e.Digest, e.At,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Count returns the number of entries recorded for a session.
func (r *JournalRepo) Count(ctx context.Context, session string) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM record_journal WHERE session_id = $1`, session,
	).Scan(&n)
	return n, err
}

// Entries returns every entry of a session in insertion order.
func (r *JournalRepo) Entries(ctx context.Context, session string) ([]JournalEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT session_id, collection, op, slot_index, generation, payload, digest, recorded_at
		 FROM record_journal WHERE session_id = $1 ORDER BY id`, session,
	)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e        JournalEntry
			op       string
			idx, gen int64
		)
		if err := rows.Scan(&e.Session, &e.Collection, &op, &idx, &gen, &e.Payload, &e.Digest, &e.At); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.Op = Op(op)
		e.Index, e.Generation = uint32(idx), uint32(gen)
		out = append(out, e)
	}
	return out, rows.Err()
}
