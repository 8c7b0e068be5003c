package client

import (
	"fmt"
	"strconv"

	"github.com/noodles/ramen/internal/core/future"
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Reply is one method-reply message.
type Reply struct {
	InvokeID  string
	Result    value.Value
	Exception *MethodError
}

// MethodError is the exception a server attached to a reply.
type MethodError struct {
	Code    int64
	Message string
	Data    value.Value
}

func (e *MethodError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("method exception %d", e.Code)
	}
	return fmt.Sprintf("method exception %d: %s", e.Code, e.Message)
}

func methodErrorFrom(rec *value.Record) *MethodError {
	e := &MethodError{}
	e.Code, _ = rec.Int("code")
	e.Message = rec.StringOr("message", "")
	e.Data, _ = rec.Get("data")
	return e
}

// InvokeContext names the object a method is invoked on. The zero value
// targets the document.
type InvokeContext struct {
	key string
	id  slot.ID
}

func OnDocument() InvokeContext { return InvokeContext{} }
func OnEntity(id slot.ID) InvokeContext { return InvokeContext{key: "entity", id: id} }
func OnTable(id slot.ID) InvokeContext { return InvokeContext{key: "table", id: id} }
func OnPlot(id slot.ID) InvokeContext { return InvokeContext{key: "plot", id: id} }

func (ic InvokeContext) record() *value.Record {
	if ic.key == "" {
		return nil
	}
	return value.RecordOf(ic.key, ic.id.Value())
}

// Introduce queues the introduction message. Only the first call has any
// effect; it returns false afterwards.
func (c *Client) Introduce() bool {
	if c.introduced {
		return false
	}
	c.introduced = true
	c.out.Write(packet.MsgIntroduction, value.RecordOf("client_name", norm.NFC.String(c.name)))
	return true
}

// Invoke queues an invocation of method on ictx. The returned future
// resolves with the reply's result or rejects with a *MethodError.
func (c *Client) Invoke(method slot.ID, ictx InvokeContext, args ...value.Value) (*future.Future[value.Value], error) {
	methods := c.Methods()
	if methods == nil || method.IsNull() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	if _, ok := methods.Get(method); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	if ictx.key != "" && ictx.id.IsNull() {
		return nil, fmt.Errorf("invoke %s: null %s context", method, ictx.key)
	}

	c.nextInvoke++
	invokeID := strconv.FormatUint(c.nextInvoke, 10)

	msg := value.NewRecord()
	msg.Set("method", method.Value())
	if ctx := ictx.record(); ctx != nil {
		msg.Set("context", value.Map(ctx))
	}
	msg.Set("invoke_id", value.String(invokeID))
	if args == nil {
		args = []value.Value{}
	}
	msg.Set("args", value.List(args...))
	c.out.Write(packet.MsgInvokeMethod, msg)

	f := future.New[value.Value]()
	c.invokes[invokeID] = f
	c.log.Debug("invoke queued", zap.String("invoke_id", invokeID), zap.Stringer("method", method))
	return f, nil
}

// InvokeByName resolves the method by name and invokes it.
func (c *Client) InvokeByName(name string, ictx InvokeContext, args ...value.Value) (*future.Future[value.Value], error) {
	rec, ok := c.FindMethodByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	id, _ := slot.IDOf(rec)
	return c.Invoke(id, ictx, args...)
}

// PendingInvocations returns the number of invocations awaiting a reply.
func (c *Client) PendingInvocations() int { return len(c.invokes) }

// FlushOutput encodes every queued message as one frame and hands it to s.
func (c *Client) FlushOutput(s Sender) error {
	if c.out.Len() == 0 {
		return nil
	}
	frame, err := c.out.Bytes(c.codec)
	c.out.Reset()
	if err != nil {
		return fmt.Errorf("encode outbound frame: %w", err)
	}
	s.Send(frame)
	return nil
}
