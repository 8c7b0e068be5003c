package slot

import (
	"errors"
	"maps"
	"slices"

	"github.com/noodles/ramen/internal/core/value"
	"go.uber.org/zap"
)

var (
	ErrMissingID = errors.New("record has no slot id")
	ErrNullID    = errors.New("record carries the null slot id")
)

// Hooks receives lifecycle notifications for one collection. Calls happen
// synchronously on the dispatch goroutine.
type Hooks interface {
	// OnCreate runs after the record is stored.
	OnCreate(rec *value.Record)
	// OnUpdate runs after partial has been merged into rec.
	OnUpdate(rec, partial *value.Record)
	// OnDelete runs before the record is removed. rec must not be retained.
	OnDelete(rec *value.Record)
}

// NopHooks ignores every notification.
type NopHooks struct{}

func (NopHooks) OnCreate(*value.Record) {}
func (NopHooks) OnUpdate(_, _ *value.Record) {}
func (NopHooks) OnDelete(*value.Record) {}

// Store maps slot indices to the current record of one collection.
// Records are keyed by index only; the generation travels inside the record.
// Single-goroutine access only (dispatch loop).
type Store struct {
	name  string
	data  map[uint32]*value.Record
	hooks Hooks
	log   *zap.Logger
}

func NewStore(name string, hooks Hooks, log *zap.Logger) *Store {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Store{
		name:  name,
		data:  make(map[uint32]*value.Record, 64),
		hooks: hooks,
		log:   log.With(zap.String("collection", name)),
	}
}

func (s *Store) Name() string { return s.name }

// SetHooks replaces the installed hooks. nil installs NopHooks.
func (s *Store) SetHooks(h Hooks) {
	if h == nil {
		h = NopHooks{}
	}
	s.hooks = h
}

// Create stores rec under its index, replacing any previous occupant
// without notice, then calls OnCreate.
func (s *Store) Create(rec *value.Record) error {
	id, ok := IDOf(rec)
	if !ok {
		return ErrMissingID
	}
	if id.IsNull() {
		return ErrNullID
	}
	if _, exists := s.data[id.Index]; exists {
		s.log.Debug("create overwrites live slot", zap.Stringer("id", id))
	}
	s.data[id.Index] = rec
	s.hooks.OnCreate(rec)
	return nil
}

// Update merges partial into the record at id's index and calls OnUpdate.
// It returns false when no record lives at that index.
func (s *Store) Update(id ID, partial *value.Record) bool {
	rec, ok := s.Get(id)
	if !ok {
		s.log.Debug("update for missing slot", zap.Stringer("id", id))
		return false
	}
	s.checkGeneration(rec, id, "update")
	rec.Merge(partial)
	s.hooks.OnUpdate(rec, partial)
	return true
}

// Delete hands the record to OnDelete and then drops it. It returns false
// when no record lives at that index.
func (s *Store) Delete(id ID) bool {
	rec, ok := s.Get(id)
	if !ok {
		s.log.Debug("delete for missing slot", zap.Stringer("id", id))
		return false
	}
	s.checkGeneration(rec, id, "delete")
	s.hooks.OnDelete(rec)
	delete(s.data, id.Index)
	return true
}

func (s *Store) checkGeneration(rec *value.Record, id ID, op string) {
	cur, ok := IDOf(rec)
	if ok && cur.Generation != id.Generation {
		s.log.Warn("generation mismatch",
			zap.String("op", op),
			zap.Stringer("stored", cur),
			zap.Stringer("message", id),
		)
	}
}

// Get returns the record at id's index. Null ids are never looked up.
func (s *Store) Get(id ID) (*value.Record, bool) {
	if id.IsNull() {
		return nil, false
	}
	rec, ok := s.data[id.Index]
	return rec, ok
}

func (s *Store) GetIndex(index uint32) (*value.Record, bool) {
	if index == nullComponent {
		return nil, false
	}
	rec, ok := s.data[index]
	return rec, ok
}

// Lookup accepts either a wire id (two element list) or a bare index.
func (s *Store) Lookup(ref value.Value) (*value.Record, bool) {
	if id, ok := FromValue(ref); ok {
		return s.Get(id)
	}
	if idx, ok := ref.AsUint(); ok && idx < nullComponent {
		return s.GetIndex(uint32(idx))
	}
	return nil, false
}

// Reset drops every record without calling hooks.
func (s *Store) Reset() {
	clear(s.data)
}

func (s *Store) Len() int { return len(s.data) }

// Each visits records in ascending index order.
func (s *Store) Each(fn func(*value.Record)) {
	for _, idx := range slices.Sorted(maps.Keys(s.data)) {
		fn(s.data[idx])
	}
}
