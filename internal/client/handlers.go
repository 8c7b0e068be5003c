package client

import (
	"fmt"

	"github.com/noodles/ramen/internal/core/event"
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/net/packet"
)

func (c *Client) registerCollection(col *slot.Collection) {
	store := col.Store
	name := col.Name

	c.dispatch.Register(col.Create, name+"_create", func(payload value.Value) error {
		rec, ok := payload.AsMap()
		if !ok {
			return fmt.Errorf("%w: %s create payload is %s", ErrMalformedRecord, name, payload.Kind())
		}
		if err := store.Create(rec); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
		}
		return nil
	})

	c.dispatch.Register(col.Delete, name+"_delete", func(payload value.Value) error {
		id, err := payloadID(name, payload)
		if err != nil {
			return err
		}
		if !store.Delete(id) {
			return fmt.Errorf("%w: %s %s", ErrMissingSlot, name, id)
		}
		return nil
	})

	if !col.HasUpdate {
		return
	}
	c.dispatch.Register(col.Update, name+"_update", func(payload value.Value) error {
		partial, ok := payload.AsMap()
		if !ok {
			return fmt.Errorf("%w: %s update payload is %s", ErrMalformedRecord, name, payload.Kind())
		}
		id, ok := slot.IDOf(partial)
		if !ok || id.IsNull() {
			return fmt.Errorf("%w: %s update without a usable id", ErrMalformedRecord, name)
		}
		if !store.Update(id, partial) {
			return fmt.Errorf("%w: %s %s", ErrMissingSlot, name, id)
		}
		return nil
	})
}

func payloadID(collection string, payload value.Value) (slot.ID, error) {
	rec, ok := payload.AsMap()
	if !ok {
		return slot.ID{}, fmt.Errorf("%w: %s payload is %s", ErrMalformedRecord, collection, payload.Kind())
	}
	id, ok := slot.IDOf(rec)
	if !ok || id.IsNull() {
		return slot.ID{}, fmt.Errorf("%w: %s payload without a usable id", ErrMalformedRecord, collection)
	}
	return id, nil
}

func (c *Client) registerDocument() {
	c.dispatch.Register(packet.MsgDocumentUpdate, "document_update", c.onDocumentUpdate)
	c.dispatch.Register(packet.MsgDocumentReset, "document_reset", c.onDocumentReset)
	c.dispatch.Register(packet.MsgSignalInvoke, "signal_invoke", c.onSignalInvoke)
	c.dispatch.Register(packet.MsgMethodReply, "method_reply", c.onMethodReply)
	c.dispatch.Register(packet.MsgDocumentInitialized, "document_initialized", c.onInitialized)
}

func (c *Client) onDocumentUpdate(payload value.Value) error {
	partial, ok := payload.AsMap()
	if !ok {
		return fmt.Errorf("%w: document update payload is %s", ErrMalformedRecord, payload.Kind())
	}
	c.doc.Merge(partial)
	if c.docHooks.OnUpdate != nil {
		c.docHooks.OnUpdate(c, c.doc, partial)
	}
	return nil
}

// onDocumentReset clears every store without delete hooks. Descriptors,
// hooks and the document root survive.
func (c *Client) onDocumentReset(value.Value) error {
	c.stores.ResetAll()
	c.setPhase(PhaseUnsynchronized)
	for _, fn := range c.onReset {
		fn()
	}
	event.Emit(c.bus, event.DocumentReset{})
	return nil
}

func (c *Client) onInitialized(value.Value) error {
	c.setPhase(PhaseSynchronized)
	return nil
}

// SignalInvocation is one signal-invoked message.
type SignalInvocation struct {
	Signal  slot.ID
	Context *value.Record // nil when the signal fired on the document
	Args    []value.Value
}

func (c *Client) onSignalInvoke(payload value.Value) error {
	rec, ok := payload.AsMap()
	if !ok {
		return fmt.Errorf("%w: signal payload is %s", ErrMalformedRecord, payload.Kind())
	}
	id, ok := slot.IDOf(rec)
	if !ok {
		return fmt.Errorf("%w: signal without id", ErrMalformedRecord)
	}
	inv := SignalInvocation{Signal: id}
	inv.Context, _ = rec.Map("context")
	inv.Args, _ = rec.List("signal_data")

	if c.onSignal != nil {
		c.onSignal(inv)
	}
	event.Emit(c.bus, event.SignalInvoked{Signal: inv.Signal, Context: inv.Context, Args: inv.Args})
	return nil
}

func (c *Client) onMethodReply(payload value.Value) error {
	rec, ok := payload.AsMap()
	if !ok {
		return fmt.Errorf("%w: reply payload is %s", ErrMalformedRecord, payload.Kind())
	}
	invokeID, ok := rec.Str("invoke_id")
	if !ok {
		return fmt.Errorf("%w: reply without invoke_id", ErrMalformedRecord)
	}
	reply := Reply{InvokeID: invokeID}
	reply.Result, _ = rec.Get("result")
	if exc, ok := rec.Map("method_exception"); ok {
		reply.Exception = methodErrorFrom(exc)
	}

	if c.onReply != nil {
		c.onReply(reply)
	}
	event.Emit(c.bus, event.MethodReplied{InvokeID: invokeID, Failed: reply.Exception != nil})

	f, pending := c.invokes[invokeID]
	if !pending {
		return fmt.Errorf("%w: %q", ErrUnknownInvoke, invokeID)
	}
	delete(c.invokes, invokeID)
	if reply.Exception != nil {
		f.Reject(reply.Exception)
	} else {
		f.Resolve(reply.Result)
	}
	return nil
}
