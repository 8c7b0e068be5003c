package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// echoServer upgrades one connection and hands it to serve.
func echoServer(t *testing.T, serve func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testSettings() Settings {
	s := DefaultSettings()
	s.InQueueSize = 4
	s.OutQueueSize = 4
	return s
}

func TestSessionEcho(t *testing.T) {
	url := echoServer(t, func(conn *websocket.Conn) {
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ignored")); err != nil {
				return
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess, err := Dial(ctx, url, testSettings(), zaptest.NewLogger(t))
	require.NoError(t, err)
	sess.Start(ctx)
	defer sess.Close()

	sess.Send([]byte{1, 2, 3})
	assert.Empty(t, sess.OutQueue, "Send buffers until FlushOutput")
	sess.FlushOutput()

	select {
	case got := <-sess.InQueue:
		assert.Equal(t, []byte{1, 2, 3}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}
	assert.False(t, sess.IsClosed())
}

func TestSessionClosedByServer(t *testing.T) {
	url := echoServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess, err := Dial(ctx, url, testSettings(), zaptest.NewLogger(t))
	require.NoError(t, err)
	sess.Start(ctx)

	select {
	case <-sess.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
	assert.True(t, sess.IsClosed())
	assert.NoError(t, sess.Err())

	// Frames sent after close are dropped.
	sess.Send([]byte{9})
	sess.FlushOutput()
	assert.Empty(t, sess.OutQueue)
}

func TestSessionAbnormalDisconnectSetsErr(t *testing.T) {
	for i := 0; i < 20; i++ {
		url := echoServer(t, func(conn *websocket.Conn) {
			conn.UnderlyingConn().Close()
		})

		ctx, cancel := context.WithCancel(context.Background())
		// the supervisor may still log after the test returns
		sess, err := Dial(ctx, url, testSettings(), zap.NewNop())
		require.NoError(t, err)
		sess.Start(ctx)

		select {
		case <-sess.Closed():
		case <-time.After(2 * time.Second):
			t.Fatal("session did not close")
		}
		require.Error(t, sess.Err(), "Err must be visible once Closed fires")
		cancel()
	}
}

func TestSessionClosesOnContextCancel(t *testing.T) {
	url := echoServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := Dial(ctx, url, testSettings(), zaptest.NewLogger(t))
	require.NoError(t, err)
	sess.Start(ctx)
	cancel()

	select {
	case <-sess.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1", testSettings(), zaptest.NewLogger(t))
	assert.Error(t, err)
}
