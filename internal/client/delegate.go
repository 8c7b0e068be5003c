package client

import "github.com/noodles/ramen/internal/core/value"

// DocumentDelegate is the Delegates key whose OnUpdate observes document
// root updates.
const DocumentDelegate = "document"

// Delegate is the optional lifecycle hook set a collaborator supplies for
// one collection. Omitted funcs are no-ops.
type Delegate struct {
	OnCreate func(c *Client, rec *value.Record)
	OnUpdate func(c *Client, rec, partial *value.Record)
	OnDelete func(c *Client, rec *value.Record)
}

// IsZero reports whether no hook is set.
func (d Delegate) IsZero() bool {
	return d.OnCreate == nil && d.OnUpdate == nil && d.OnDelete == nil
}

// Chain runs several delegates in order for every event.
func Chain(ds ...Delegate) Delegate {
	var out Delegate
	for _, d := range ds {
		if d.OnCreate != nil {
			prev, fn := out.OnCreate, d.OnCreate
			out.OnCreate = func(c *Client, rec *value.Record) {
				if prev != nil {
					prev(c, rec)
				}
				fn(c, rec)
			}
		}
		if d.OnUpdate != nil {
			prev, fn := out.OnUpdate, d.OnUpdate
			out.OnUpdate = func(c *Client, rec, partial *value.Record) {
				if prev != nil {
					prev(c, rec, partial)
				}
				fn(c, rec, partial)
			}
		}
		if d.OnDelete != nil {
			prev, fn := out.OnDelete, d.OnDelete
			out.OnDelete = func(c *Client, rec *value.Record) {
				if prev != nil {
					prev(c, rec)
				}
				fn(c, rec)
			}
		}
	}
	return out
}

// delegateHooks adapts a Delegate to slot.Hooks.
type delegateHooks struct {
	c *Client
	d Delegate
}

func (h delegateHooks) OnCreate(rec *value.Record) {
	if h.d.OnCreate != nil {
		h.d.OnCreate(h.c, rec)
	}
}

func (h delegateHooks) OnUpdate(rec, partial *value.Record) {
	if h.d.OnUpdate != nil {
		h.d.OnUpdate(h.c, rec, partial)
	}
}

func (h delegateHooks) OnDelete(rec *value.Record) {
	if h.d.OnDelete != nil {
		h.d.OnDelete(h.c, rec)
	}
}

// MergeDelegates chains the delegates of several sets per collection name,
// earlier sets first.
func MergeDelegates(sets ...map[string]Delegate) map[string]Delegate {
	chains := make(map[string][]Delegate)
	for _, set := range sets {
		for name, d := range set {
			chains[name] = append(chains[name], d)
		}
	}
	out := make(map[string]Delegate, len(chains))
	for name, ds := range chains {
		out[name] = Chain(ds...)
	}
	return out
}
