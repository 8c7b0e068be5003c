package slot

import (
	"fmt"

	"go.uber.org/zap"
)

// Descriptor is the static routing configuration of one collection.
type Descriptor struct {
	Name      string
	Create    uint64
	Delete    uint64
	Update    uint64
	HasUpdate bool
}

// MessageIDs lists the message identifiers the collection owns.
func (d Descriptor) MessageIDs() []uint64 {
	ids := []uint64{d.Create, d.Delete}
	if d.HasUpdate {
		ids = append(ids, d.Update)
	}
	return ids
}

// Collection pairs a descriptor with its store.
type Collection struct {
	Descriptor
	Store *Store
}

// Registry owns one Store per collection and supports bulk reset.
type Registry struct {
	byName  map[string]*Collection
	order   []*Collection
	claimed map[uint64]string
	log     *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		byName:  make(map[string]*Collection, 16),
		order:   make([]*Collection, 0, 16),
		claimed: make(map[uint64]string, 48),
		log:     log,
	}
}

// Register creates the store for desc. A repeated name or a message id that
// another collection already owns makes routing ambiguous and panics.
func (r *Registry) Register(desc Descriptor, hooks Hooks) *Collection {
	if desc.Name == "" {
		panic("slot: collection registered without a name")
	}
	if _, dup := r.byName[desc.Name]; dup {
		panic(fmt.Sprintf("slot: collection %q registered twice", desc.Name))
	}
	for _, id := range desc.MessageIDs() {
		if owner, taken := r.claimed[id]; taken {
			panic(fmt.Sprintf("slot: message id %d of %q already owned by %q", id, desc.Name, owner))
		}
	}
	for _, id := range desc.MessageIDs() {
		r.claimed[id] = desc.Name
	}
	c := &Collection{Descriptor: desc, Store: NewStore(desc.Name, hooks, r.log)}
	r.byName[desc.Name] = c
	r.order = append(r.order, c)
	return c
}

func (r *Registry) Collection(name string) (*Collection, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Store returns the named store or nil.
func (r *Registry) Store(name string) *Store {
	if c, ok := r.byName[name]; ok {
		return c.Store
	}
	return nil
}

// SetHooks reinstalls the hooks of a registered collection.
func (r *Registry) SetHooks(name string, hooks Hooks) bool {
	c, ok := r.byName[name]
	if !ok {
		return false
	}
	c.Store.SetHooks(hooks)
	return true
}

// Each visits collections in registration order.
func (r *Registry) Each(fn func(*Collection)) {
	for _, c := range r.order {
		fn(c)
	}
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, c := range r.order {
		names[i] = c.Name
	}
	return names
}

func (r *Registry) Len() int { return len(r.order) }

// ResetAll clears every store. Descriptors and hooks stay installed.
func (r *Registry) ResetAll() {
	for _, c := range r.order {
		c.Store.Reset()
	}
}
