package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/event"
	coresys "github.com/noodles/ramen/internal/core/system"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/metrics"
	rnet "github.com/noodles/ramen/internal/net"
	"github.com/noodles/ramen/internal/net/packet"
	"github.com/noodles/ramen/internal/persist"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type loop struct {
	client  *client.Client
	codec   *rnet.CBORCodec
	bus     *event.Bus
	metrics *metrics.Metrics
	in      chan []byte
	runner  *coresys.Runner
}

func newLoop(t *testing.T, delegates map[string]client.Delegate) *loop {
	t.Helper()
	codec, err := rnet.NewCBORCodec()
	require.NoError(t, err)
	l := &loop{
		codec:   codec,
		bus:     event.NewBus(),
		metrics: metrics.New(),
		in:      make(chan []byte, 16),
		runner:  coresys.NewRunner(),
	}
	l.client = client.New(client.Options{
		Name:      "loop",
		Delegates: delegates,
		Codec:     codec,
		Bus:       l.bus,
		Metrics:   l.metrics,
		Log:       zaptest.NewLogger(t),
	})
	return l
}

func (l *loop) push(t *testing.T, items ...any) {
	t.Helper()
	data, err := l.codec.Encode(items)
	require.NoError(t, err)
	l.in <- data
}

type fakeOutbound struct {
	frames  [][]byte
	flushes int
}

func (o *fakeOutbound) Send(frame []byte) { o.frames = append(o.frames, frame) }
func (o *fakeOutbound) FlushOutput() { o.flushes++ }

type fakeWriter struct {
	written int
	fail    bool
}

func (w *fakeWriter) Append(_ context.Context, entries []persist.JournalEntry) error {
	if w.fail {
		return errors.New("unavailable")
	}
	w.written += len(entries)
	return nil
}

func TestInputRespectsFrameBudget(t *testing.T) {
	l := newLoop(t, nil)
	l.runner.Register(NewInputSystem(l.in, l.client, 2, zaptest.NewLogger(t)))

	for i := uint32(0); i < 3; i++ {
		l.push(t, packet.MsgEntityCreate, map[string]any{"id": []any{i, 0}})
	}

	l.runner.Tick(50 * time.Millisecond)
	assert.Equal(t, 2, l.client.Entities().Len())
	l.runner.Tick(50 * time.Millisecond)
	assert.Equal(t, 3, l.client.Entities().Len())
}

func TestInputSurvivesMalformedFrame(t *testing.T) {
	l := newLoop(t, nil)
	l.runner.Register(NewInputSystem(l.in, l.client, 8, zaptest.NewLogger(t)))

	l.in <- []byte{0xff, 0x00}
	l.push(t, packet.MsgSignalCreate, map[string]any{"id": []any{1, 0}})
	l.runner.Tick(time.Millisecond)

	assert.Equal(t, 1, l.client.Signals().Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.Anomalies.WithLabelValues(string(event.AnomalyMalformedFrame))))
}

func TestEventsDeliveredAfterInput(t *testing.T) {
	l := newLoop(t, nil)
	var phases []event.PhaseChanged
	event.Subscribe(l.bus, func(e event.PhaseChanged) { phases = append(phases, e) })

	l.runner.Register(NewEventSystem(l.bus))
	l.runner.Register(NewInputSystem(l.in, l.client, 8, zaptest.NewLogger(t)))

	l.push(t, packet.MsgDocumentInitialized, map[string]any{})
	l.runner.Tick(time.Millisecond)

	require.Len(t, phases, 1)
	assert.Equal(t, client.PhaseSynchronized.String(), phases[0].To)
	assert.True(t, l.client.Synchronized())
}

func TestTaskSystemRunsPosted(t *testing.T) {
	l := newLoop(t, nil)
	ts := NewTaskSystem(l.client)
	l.runner.Register(ts)

	hit := 0
	l.client.Post(func() { hit++ })
	l.client.Post(func() { hit++ })
	l.runner.Tick(time.Millisecond)

	assert.Equal(t, 2, hit)
	assert.Equal(t, 2, ts.Ran())
}

func TestGaugeSystemPublishesCounts(t *testing.T) {
	l := newLoop(t, nil)
	l.runner.Register(NewInputSystem(l.in, l.client, 8, zaptest.NewLogger(t)))
	l.runner.Register(NewGaugeSystem(l.client, l.metrics, 2))

	l.push(t,
		packet.MsgBufferCreate, map[string]any{"id": []any{0, 0}},
		packet.MsgBufferCreate, map[string]any{"id": []any{1, 0}},
	)
	l.runner.Tick(time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(l.metrics.Records.WithLabelValues(packet.CollectionBuffer)))

	l.runner.Tick(time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(l.metrics.Records.WithLabelValues(packet.CollectionBuffer)))
}

func TestOutputSendsIntroduction(t *testing.T) {
	l := newLoop(t, nil)
	out := &fakeOutbound{}
	l.runner.Register(NewOutputSystem(l.client, out, zaptest.NewLogger(t)))

	l.runner.Tick(time.Millisecond)
	assert.Empty(t, out.frames)
	assert.Equal(t, 1, out.flushes)

	require.True(t, l.client.Introduce())
	l.runner.Tick(time.Millisecond)
	require.Len(t, out.frames, 1)

	v, err := l.codec.Decode(out.frames[0])
	require.NoError(t, err)
	items, ok := v.AsList()
	require.True(t, ok)
	require.Len(t, items, 2)
	msgID, _ := items[0].AsUint()
	assert.Equal(t, packet.MsgIntroduction, msgID)
}

func TestJournalSystemFlushesOnInterval(t *testing.T) {
	codec, err := rnet.NewCBORCodec()
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	j := persist.NewJournal("s", codec, 16, log)

	l := newLoop(t, j.Delegates([]string{packet.CollectionLight}))
	w := &fakeWriter{}
	l.runner.Register(NewInputSystem(l.in, l.client, 8, log))
	l.runner.Register(NewJournalSystem(j, w, 2, log))

	l.push(t, packet.MsgLightCreate, map[string]any{"id": []any{3, 1}})
	l.runner.Tick(time.Millisecond)
	assert.Equal(t, 1, j.Pending())
	assert.Zero(t, w.written)

	l.runner.Tick(time.Millisecond)
	assert.Zero(t, j.Pending())
	assert.Equal(t, 1, w.written)
}

func TestJournalSystemKeepsEntriesWhenWriterFails(t *testing.T) {
	codec, err := rnet.NewCBORCodec()
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	j := persist.NewJournal("s", codec, 16, log)
	j.Delegate(packet.CollectionTable).OnDelete(nil, value.RecordOf("id", []any{2, 0}))

	w := &fakeWriter{fail: true}
	NewJournalSystem(j, w, 1, log).Flush()
	assert.Equal(t, 1, j.Pending())
}
