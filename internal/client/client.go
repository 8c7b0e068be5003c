// Package client mirrors the state of a scene server. It routes every
// inbound message to its collection store or document handler, keeps the
// synchronization phase, and queues outbound messages.
package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noodles/ramen/internal/core/event"
	"github.com/noodles/ramen/internal/core/future"
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/data"
	"github.com/noodles/ramen/internal/metrics"
	"github.com/noodles/ramen/internal/net/packet"
	"go.uber.org/zap"
)

var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrMissingSlot     = errors.New("no record at slot")
	ErrUnknownInvoke   = errors.New("reply for unknown invoke id")
	ErrUnknownMethod   = errors.New("unknown method")
)

// Phase is the synchronization state of the mirror.
type Phase int

const (
	PhaseUnsynchronized Phase = iota
	PhaseSynchronized
)

func (p Phase) String() string {
	switch p {
	case PhaseUnsynchronized:
		return "unsynchronized"
	case PhaseSynchronized:
		return "synchronized"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Codec decodes inbound frames and encodes outbound ones.
type Codec interface {
	packet.Decoder
	packet.Encoder
}

// Sender delivers one encoded frame to the server.
type Sender interface {
	Send(frame []byte)
}

type Options struct {
	Name      string              // client_name sent in the introduction
	Table     *data.ProtocolTable // nil uses the built-in table
	Delegates map[string]Delegate // per collection name, plus DocumentDelegate
	Codec     Codec               // required for HandleFrame and FlushOutput
	Bus       *event.Bus          // optional
	Metrics   *metrics.Metrics    // optional
	Log       *zap.Logger         // nil uses a no-op logger
	OnSignal  func(SignalInvocation)
	OnReply   func(Reply)
}

// Client owns the collection stores, the dispatch table and the document
// root. Everything except Post runs on the dispatch goroutine.
type Client struct {
	name     string
	stores   *slot.Registry
	dispatch *packet.Registry
	doc      *value.Record
	docHooks Delegate
	phase    Phase

	codec   Codec
	bus     *event.Bus
	metrics *metrics.Metrics
	log     *zap.Logger

	onSignal func(SignalInvocation)
	onReply  func(Reply)
	onReset  []func()

	out        *packet.Writer
	introduced bool
	nextInvoke uint64
	invokes    map[string]*future.Future[value.Value]

	taskMu sync.Mutex
	tasks  []func()
}

// New builds the stores from the protocol table and registers a handler for
// every collection message and the five document messages.
func New(opts Options) *Client {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	table := opts.Table
	if table == nil {
		table = data.DefaultProtocolTable()
	}
	c := &Client{
		name:     opts.Name,
		stores:   slot.NewRegistry(log),
		dispatch: packet.NewRegistry(log),
		doc:      value.NewRecord(),
		phase:    PhaseUnsynchronized,
		codec:    opts.Codec,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		log:      log,
		onSignal: opts.OnSignal,
		onReply:  opts.OnReply,
		out:      packet.NewWriter(),
		invokes:  make(map[string]*future.Future[value.Value]),
	}

	for _, desc := range table.Descriptors() {
		d := opts.Delegates[desc.Name]
		col := c.stores.Register(desc, delegateHooks{c: c, d: d})
		c.registerCollection(col)
		if d.IsZero() {
			log.Debug("no delegates", zap.String("collection", desc.Name))
		} else {
			log.Debug("delegates installed", zap.String("collection", desc.Name))
		}
	}
	for name, d := range opts.Delegates {
		if name == DocumentDelegate {
			c.docHooks = d
			continue
		}
		if _, ok := c.stores.Collection(name); !ok {
			log.Warn("delegate for unknown collection ignored", zap.String("collection", name))
		}
	}
	c.registerDocument()
	return c
}

// Name returns the client name sent in the introduction.
func (c *Client) Name() string { return c.name }

func (c *Client) Phase() Phase { return c.phase }

// Synchronized reports whether the server finished the initial sync.
func (c *Client) Synchronized() bool { return c.phase == PhaseSynchronized }

// Document returns the document root. Callers may read it; the dispatch
// loop owns mutation.
func (c *Client) Document() *value.Record { return c.doc }

// Collection returns the store of the named collection, or nil.
func (c *Client) Collection(name string) *slot.Store { return c.stores.Store(name) }

// Collections returns the registry holding every store.
func (c *Client) Collections() *slot.Registry { return c.stores }

// Dispatcher returns the message dispatch table.
func (c *Client) Dispatcher() *packet.Registry { return c.dispatch }

// InstallDelegate replaces the hooks of a registered collection.
func (c *Client) InstallDelegate(collection string, d Delegate) bool {
	if collection == DocumentDelegate {
		c.docHooks = d
		return true
	}
	return c.stores.SetHooks(collection, delegateHooks{c: c, d: d})
}

// OnReset registers fn to run synchronously after a document reset has
// cleared the stores.
func (c *Client) OnReset(fn func()) {
	c.onReset = append(c.onReset, fn)
}

func (c *Client) Methods() *slot.Store { return c.Collection(packet.CollectionMethod) }
func (c *Client) Signals() *slot.Store { return c.Collection(packet.CollectionSignal) }
func (c *Client) Entities() *slot.Store { return c.Collection(packet.CollectionEntity) }
func (c *Client) Plots() *slot.Store { return c.Collection(packet.CollectionPlot) }
func (c *Client) Buffers() *slot.Store { return c.Collection(packet.CollectionBuffer) }
func (c *Client) BufferViews() *slot.Store { return c.Collection(packet.CollectionBufferView) }
func (c *Client) Materials() *slot.Store { return c.Collection(packet.CollectionMaterial) }
func (c *Client) Images() *slot.Store { return c.Collection(packet.CollectionImage) }
func (c *Client) Textures() *slot.Store { return c.Collection(packet.CollectionTexture) }
func (c *Client) Samplers() *slot.Store { return c.Collection(packet.CollectionSampler) }
func (c *Client) Lights() *slot.Store { return c.Collection(packet.CollectionLight) }
func (c *Client) Geometries() *slot.Store { return c.Collection(packet.CollectionGeometry) }
func (c *Client) Tables() *slot.Store { return c.Collection(packet.CollectionTable) }

// HandleFrame decodes one frame and applies its messages in order. Only a
// frame that cannot be decoded is returned as an error; problems with
// individual messages are reported as anomalies.
func (c *Client) HandleFrame(data []byte) error {
	start := time.Now()
	r, err := packet.DecodeFrame(c.codec, data)
	if err != nil {
		c.anomaly(event.AnomalyMalformedFrame, 0, "", err)
		c.metrics.Frame("rejected", time.Since(start))
		return err
	}
	for r.Next() {
		m, err := r.Message()
		if err != nil {
			c.anomaly(event.AnomalyMalformedID, 0, "", err)
			continue
		}
		c.handle(m)
	}
	c.metrics.Frame("ok", time.Since(start))
	return nil
}

// HandleMessages applies already decoded messages in order.
func (c *Client) HandleMessages(msgs []packet.Message) {
	for _, m := range msgs {
		c.handle(m)
	}
}

func (c *Client) handle(m packet.Message) {
	err := c.dispatch.Dispatch(m)
	name := c.dispatch.Name(m.ID)
	if name != "" {
		c.metrics.Message(name)
	}
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, packet.ErrUnknownMessage):
		c.anomaly(event.AnomalyUnknownMessage, m.ID, name, err)
	case errors.Is(err, packet.ErrHandlerPanic):
		c.anomaly(event.AnomalyHandlerPanic, m.ID, name, err)
	case errors.Is(err, ErrMissingSlot):
		c.anomaly(event.AnomalyMissingSlot, m.ID, name, err)
	case errors.Is(err, ErrUnknownInvoke):
		c.anomaly(event.AnomalyUnknownInvoke, m.ID, name, err)
	default:
		c.anomaly(event.AnomalyMalformedRecord, m.ID, name, err)
	}
}

func (c *Client) anomaly(kind event.AnomalyKind, id uint64, handler string, err error) {
	switch kind {
	case event.AnomalyUnknownMessage, event.AnomalyMissingSlot:
		c.log.Debug("message dropped",
			zap.String("kind", string(kind)), zap.Uint64("id", id), zap.Error(err))
	case event.AnomalyHandlerPanic:
		// already logged at error level by the dispatcher
	default:
		c.log.Warn("protocol anomaly",
			zap.String("kind", string(kind)), zap.Uint64("id", id),
			zap.String("handler", handler), zap.Error(err))
	}
	c.metrics.Anomaly(string(kind))
	event.Emit(c.bus, event.Anomaly{Kind: kind, MessageID: id, Handler: handler, Err: err})
}

func (c *Client) setPhase(p Phase) {
	if c.phase == p {
		return
	}
	from := c.phase
	c.phase = p
	c.log.Info("phase changed", zap.Stringer("from", from), zap.Stringer("to", p))
	event.Emit(c.bus, event.PhaseChanged{From: from.String(), To: p.String()})
}

// FindMethodByName returns the first method record whose name matches.
func (c *Client) FindMethodByName(name string) (*value.Record, bool) {
	methods := c.Methods()
	if methods == nil {
		return nil, false
	}
	var found *value.Record
	methods.Each(func(rec *value.Record) {
		if found != nil {
			return
		}
		if n, ok := rec.Str("name"); ok && n == name {
			found = rec
		}
	})
	return found, found != nil
}

func (c *Client) HasMethod(name string) bool {
	_, ok := c.FindMethodByName(name)
	return ok
}

// MethodAttached reports whether id appears in the document's methods_list.
func (c *Client) MethodAttached(id slot.ID) bool {
	return listContains(c.doc, "methods_list", id)
}

// SignalAttached reports whether id appears in the document's signals_list.
func (c *Client) SignalAttached(id slot.ID) bool {
	return listContains(c.doc, "signals_list", id)
}

func listContains(rec *value.Record, key string, id slot.ID) bool {
	if id.IsNull() {
		return false
	}
	list, ok := rec.List(key)
	if !ok {
		return false
	}
	for _, v := range list {
		if other, ok := slot.FromValue(v); ok && other.Equal(id) {
			return true
		}
	}
	return false
}

// Resolve follows a reference into a collection. Null references resolve to
// nothing without touching the store.
func (c *Client) Resolve(collection string, ref value.Value) (*value.Record, bool) {
	if slot.IsNullRef(ref) {
		return nil, false
	}
	s := c.Collection(collection)
	if s == nil {
		return nil, false
	}
	return s.Lookup(ref)
}

// Post schedules fn on the dispatch goroutine. Safe from any goroutine;
// asynchronous completions use it to touch records.
func (c *Client) Post(fn func()) {
	c.taskMu.Lock()
	c.tasks = append(c.tasks, fn)
	c.taskMu.Unlock()
}

// RunTasks runs every posted task and returns how many ran. A panicking
// task is logged and skipped.
func (c *Client) RunTasks() int {
	c.taskMu.Lock()
	tasks := c.tasks
	c.tasks = nil
	c.taskMu.Unlock()

	for _, fn := range tasks {
		c.runTask(fn)
	}
	return len(tasks)
}

func (c *Client) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("task panic recovered", zap.Any("panic", r))
		}
	}()
	fn()
}
