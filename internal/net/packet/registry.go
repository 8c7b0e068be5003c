package packet

import (
	"errors"
	"fmt"

	"github.com/noodles/ramen/internal/core/value"
	"go.uber.org/zap"
)

var (
	ErrUnknownMessage = errors.New("unknown message id")
	ErrHandlerPanic   = errors.New("handler panic")
)

// HandlerFunc processes the payload of one message.
type HandlerFunc func(payload value.Value) error

type handlerEntry struct {
	name string
	fn   HandlerFunc
}

// Registry maps message identifiers to handlers.
type Registry struct {
	handlers map[uint64]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[uint64]*handlerEntry, 48),
		log:      log,
	}
}

// Register maps a message id to a handler. name is used in logs.
// Registering an id twice panics.
func (reg *Registry) Register(id uint64, name string, fn HandlerFunc) {
	if prev, dup := reg.handlers[id]; dup {
		panic(fmt.Sprintf("packet: message id %d registered for %q and %q", id, prev.name, name))
	}
	reg.handlers[id] = &handlerEntry{name: name, fn: fn}
}

func (reg *Registry) Has(id uint64) bool {
	_, ok := reg.handlers[id]
	return ok
}

// Name returns the handler name for id, or "" if unknown.
func (reg *Registry) Name(id uint64) string {
	if e, ok := reg.handlers[id]; ok {
		return e.name
	}
	return ""
}

func (reg *Registry) Len() int { return len(reg.handlers) }

// Dispatch calls the handler registered for m.ID. Unknown ids are dropped
// and reported with ErrUnknownMessage.
func (reg *Registry) Dispatch(m Message) error {
	entry, ok := reg.handlers[m.ID]
	if !ok {
		reg.log.Debug("unknown message id", zap.Uint64("id", m.ID))
		return fmt.Errorf("%w: %d", ErrUnknownMessage, m.ID)
	}
	if ce := reg.log.Check(zap.DebugLevel, "dispatch"); ce != nil {
		ce.Write(zap.Uint64("id", m.ID), zap.String("handler", entry.name))
	}
	if err := reg.safeCall(entry, m); err != nil {
		return fmt.Errorf("%s: %w", entry.name, err)
	}
	return nil
}

// safeCall executes a handler with panic recovery so one bad object cannot
// abort the rest of the frame.
func (reg *Registry) safeCall(entry *handlerEntry, m Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.Uint64("id", m.ID),
				zap.String("handler", entry.name),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return entry.fn(m.Payload)
}
